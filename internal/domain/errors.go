package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a window-level failure.
type ErrorKind string

const (
	// KindConnectivity covers timeouts, refused connections and missing
	// remote files.
	KindConnectivity ErrorKind = "connectivity"
	// KindDecoding means the artifact could not be opened as a raster.
	KindDecoding ErrorKind = "decoding"
	// KindSampling means a pixel read failed for a station, usually
	// because the station lies outside the raster.
	KindSampling ErrorKind = "sampling"
)

// SampleError is recorded for every window whose contribution is missing
// from a day's totals. It is never dropped silently.
type SampleError struct {
	Window  string // image name of the window
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SampleError) Error() string {
	return e.Message
}

func (e *SampleError) Unwrap() error {
	return e.Err
}

// NewSampleError builds a SampleError whose message is prefixed with what
// was being accessed, e.g. the redacted URL or cache path.
func NewSampleError(window string, kind ErrorKind, target string, err error) *SampleError {
	return &SampleError{
		Window:  window,
		Kind:    kind,
		Message: fmt.Sprintf("Url '%s': %v", target, err),
		Err:     err,
	}
}

// KindOf returns the kind of a SampleError anywhere in err's chain, or ""
// if err is not classified.
func KindOf(err error) ErrorKind {
	var se *SampleError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
