package packify

import (
	"errors"
	"fmt"
)

var (
	ErrSerialization = errors.New("packify: value is not serializable")
	ErrMalformedData = errors.New("packify: malformed data")
	ErrUsage         = errors.New("packify: usage error")
)

// SerializationError is returned by Pack when a value cannot be encoded.
type SerializationError struct {
	// Type is the Go type of the offending value.
	Type   string
	Reason string
	Err    error
}

func (e *SerializationError) Error() string {
	msg := "packify: " + e.Type + " is not serializable"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// MalformedDataError is returned by Unpack when the input is not a valid encoding.
type MalformedDataError struct {
	// Offset is the position in the input where decoding failed.
	Offset int
	Reason string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("packify: malformed data at offset %d: %s", e.Offset, e.Reason)
}

func (e *MalformedDataError) Is(target error) bool { return target == ErrMalformedData }

// UsageError is returned by Unpack when a well-formed input references an
// extension type that the registry does not provide.
type UsageError struct {
	Name string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("packify: no extension type registered for identifier %q", e.Name)
}

func (e *UsageError) Is(target error) bool { return target == ErrUsage }

func unsupported(v any, reason string) error {
	return &SerializationError{Type: fmt.Sprintf("%T", v), Reason: reason}
}
