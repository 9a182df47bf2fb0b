package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vearutop/panodecode"
	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "panotool",
		Short:         "Inspect and decode HDR/EXR panoramas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, v)
		},
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./panotool.yaml if present)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	_ = v.BindPFlag("config", pf.Lookup("config"))

	root.AddCommand(newInfoCmd(v), newValidateCmd(), newDecodeCmd(v))
	return root
}

func readInput(path string) (panodecode.Format, []byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return panodecode.FormatUnknown, nil, err
	}
	format := panodecode.FormatFromPath(path)
	if format == panodecode.FormatUnknown {
		if format, err = panodecode.Sniff(bytes.NewReader(data)); err != nil {
			return panodecode.FormatUnknown, nil, err
		}
	}
	if format == panodecode.FormatUnknown {
		return panodecode.FormatUnknown, nil, fmt.Errorf("%s: unrecognized panorama format", path)
	}
	return format, data, nil
}

type fileInfo struct {
	File                string `json:"file" yaml:"file"`
	panodecode.Metadata `yaml:",inline"`
}

func newInfoCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info FILE...",
		Short: "Print panorama dimensions without decoding pixels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]fileInfo, 0, len(args))
			for _, path := range args {
				format, data, err := readInput(path)
				if err != nil {
					return err
				}
				meta, err := panodecode.ReadMetadata(format, data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				infos = append(infos, fileInfo{File: path, Metadata: meta})
			}
			return printInfo(cmd.OutOrStdout(), v.GetString("output"), infos)
		},
	}
	cmd.Flags().StringP("output", "O", "json", "output format: json or yaml")
	return cmd
}

func printInfo(w io.Writer, format string, infos []fileInfo) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(infos)
	case "json", "":
		payload, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check signatures and headers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := validateFile(path); err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(args))
			}
			return nil
		},
	}
}

func validateFile(path string) error {
	format, data, err := readInput(path)
	if err != nil {
		return err
	}
	if err := panodecode.Validate(format, data); err != nil {
		return err
	}
	_, err = panodecode.ReadMetadata(format, data)
	return err
}

func newDecodeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode a panorama to png, jpeg, tiff or Radiance hdr",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd, v, args[0])
		},
	}
	f := cmd.Flags()
	f.StringP("out", "o", "", "output image (.png, .jpg, .tif, .hdr)")
	f.String("quality", "medium", "decode quality: low, medium, high")
	f.Int("max-texture", 0, "maximum texture dimension, 0 for no limit")
	f.String("target", "rgba8", "decode target: rgba8 or rgb16f")
	f.Float32("exposure", 0, "exposure in stops")
	f.String("tone-mapping", "aces", "tone mapping: linear, reinhard, aces")
	f.Float32("gamma", 2.2, "display gamma")
	f.Uint("thumb", 0, "scale output to fit a square of this size, 0 to keep decode size")
	f.Int("jpeg-quality", 90, "jpeg output quality")
	return cmd
}

func runDecode(cmd *cobra.Command, v *viper.Viper, path string) error {
	out := v.GetString("out")
	if out == "" {
		return errors.New("missing -o output path")
	}
	quality, err := panodecode.ParseQuality(v.GetString("quality"))
	if err != nil {
		return err
	}
	tm, err := panodecode.ParseToneMapping(v.GetString("tone-mapping"))
	if err != nil {
		return err
	}
	target := panodecode.Target{
		Kind:        panodecode.TargetRGBA8,
		Exposure:    float32(v.GetFloat64("exposure")),
		ToneMapping: tm,
		Gamma:       float32(v.GetFloat64("gamma")),
	}
	switch strings.ToLower(v.GetString("target")) {
	case "rgba8":
	case "rgb16f":
		target.Kind = panodecode.TargetRGB16F
	default:
		return fmt.Errorf("unknown target %q", v.GetString("target"))
	}
	radiance := strings.EqualFold(filepath.Ext(out), ".hdr")
	if radiance {
		if v.GetUint("thumb") > 0 {
			return errors.New("--thumb is not supported for .hdr output")
		}
		target.Kind = panodecode.TargetRGB16F
	}

	format, data, err := readInput(path)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), v.GetString("log-level"), v.GetString("log-format"))
	orc, err := panodecode.New(func(o *panodecode.Options) {
		o.Logger = logger
	})
	if err != nil {
		return err
	}
	defer orc.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := orc.Decode(ctx, panodecode.DecodeRequest{
		ID:             path,
		Format:         format,
		Data:           data,
		Quality:        quality,
		MaxTextureSize: v.GetInt("max-texture"),
		Target:         target,
	})
	if err != nil {
		return err
	}
	logger.Info("decoded", "file", path, "width", res.Width, "height", res.Height,
		"decode_width", res.DecodeWidth, "decode_height", res.DecodeHeight)
	if radiance {
		return writeRadiance(out, res)
	}

	var img image.Image
	if thumb := v.GetUint("thumb"); thumb > 0 {
		img, err = res.Thumbnail(thumb, thumb, target)
	} else {
		img, err = res.Image(target)
	}
	if err != nil {
		return err
	}
	return writeImage(out, img, v.GetInt("jpeg-quality"))
}

func writeImage(path string, img image.Image, jpegQuality int) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return err
		}
		if err := tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		return imaging.Save(img, filepath.Clean(path), imaging.JPEGQuality(jpegQuality))
	}
}
