package panodecode

const (
	hdrFormat32BitRLE = "32-bit_rle_rgbe"
	hdrSignature      = "#?RADIANCE"
	hdrSniffWindow    = 4096
)

const (
	minDecodeDim    = 256
	maxDimLow       = 1024
	maxDimMedium    = 2048
	maxDimHigh      = 4096
	defaultGamma    = 2.2
	maxPlausibleVal = 65504.0 // largest finite binary16
)

const (
	acesA = 2.51
	acesB = 0.03
	acesC = 2.43
	acesD = 0.59
	acesE = 0.14
)
