package panodecode

import "strings"

// channelSelection names the channel indexes feeding the R, G and B outputs.
// A grayscale source uses the same index three times.
type channelSelection struct {
	layer   string
	r, g, b int
	gray    bool
}

type exrLayer struct {
	name    string
	r, g, b int
	y       int
}

func (l *exrLayer) hasRGB() bool { return l.r >= 0 && l.g >= 0 && l.b >= 0 }

// splitChannelName splits "layer.sub.R" into ("layer.sub", "R").
func splitChannelName(name string) (layer, component string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

// selectChannels picks which channels to decode. Preference order: RGB of the
// default layer, RGB of any layer, Y of the default layer, Y of any layer, and
// finally channel 0 replicated as gray.
func selectChannels(names []string) channelSelection {
	var layers []*exrLayer
	byName := map[string]*exrLayer{}
	for i, n := range names {
		ln, comp := splitChannelName(n)
		l := byName[ln]
		if l == nil {
			l = &exrLayer{name: ln, r: -1, g: -1, b: -1, y: -1}
			byName[ln] = l
			layers = append(layers, l)
		}
		switch strings.ToUpper(comp) {
		case "R":
			l.r = i
		case "G":
			l.g = i
		case "B":
			l.b = i
		case "Y":
			l.y = i
		}
	}

	rgb := func(l *exrLayer) channelSelection {
		return channelSelection{layer: l.name, r: l.r, g: l.g, b: l.b}
	}
	gray := func(l *exrLayer) channelSelection {
		return channelSelection{layer: l.name, r: l.y, g: l.y, b: l.y, gray: true}
	}

	def := byName[""]
	if def != nil && def.hasRGB() {
		return rgb(def)
	}
	for _, l := range layers {
		if l.hasRGB() {
			return rgb(l)
		}
	}
	if def != nil && def.y >= 0 {
		return gray(def)
	}
	for _, l := range layers {
		if l.y >= 0 {
			return gray(l)
		}
	}

	var layer string
	if len(names) > 0 {
		layer, _ = splitChannelName(names[0])
	}
	return channelSelection{layer: layer, r: 0, g: 0, b: 0, gray: true}
}
