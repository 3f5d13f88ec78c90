package ico

import "errors"

// Sentinels for errors.Is. Every *FormatError matches ErrFormat and every
// *UnsupportedFormatError matches ErrUnsupported.
var (
	ErrFormat      = errors.New("ico: invalid format")
	ErrUnsupported = errors.New("ico: unsupported format")
)

// FormatError reports input that is not a well-formed ICO: a short buffer,
// a bad signature or a truncated payload.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "ico: invalid format: " + e.Reason }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// UnsupportedFormatError reports a well-formed ICO whose selected image uses
// a variant this decoder does not handle.
type UnsupportedFormatError struct {
	Reason string
}

func (e *UnsupportedFormatError) Error() string { return "ico: unsupported format: " + e.Reason }

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupported }

func formatErr(reason string) error { return &FormatError{Reason: reason} }

func unsupportedErr(reason string) error { return &UnsupportedFormatError{Reason: reason} }
