package panodecode

import "errors"

// These errors classify decode failures. Returned errors wrap one of them.
var (
	ErrInvalidSignature       = errors.New("panodecode: invalid signature")
	ErrInvalidFormat          = errors.New("panodecode: invalid format")
	ErrInvalidHeader          = errors.New("panodecode: invalid header")
	ErrInvalidResolution      = errors.New("panodecode: invalid resolution")
	ErrUnsupportedCompression = errors.New("panodecode: unsupported compression")
	ErrTiledUnsupported       = errors.New("panodecode: tiled images are not supported")
	ErrInvalidChunkSize       = errors.New("panodecode: invalid chunk size")
	ErrUnexpectedEOF          = errors.New("panodecode: unexpected end of data")

	// ErrTextureUploadFailed is reserved for renderers that upload decode results;
	// nothing in this package returns it.
	ErrTextureUploadFailed = errors.New("panodecode: texture upload failed")

	// ErrSuperseded is returned for a request replaced by a newer one with the same ID.
	ErrSuperseded = errors.New("panodecode: request superseded")
	// ErrTerminated is returned for requests outstanding when the orchestrator closed.
	ErrTerminated = errors.New("panodecode: orchestrator terminated")
)

// DecodeError correlates a failure with the request that caused it.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	return "decode " + e.ID + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Message returns the failure text without the request ID.
func (e *DecodeError) Message() string { return e.Err.Error() }
