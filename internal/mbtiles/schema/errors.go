package schema

import (
	"errors"
	"fmt"
)

type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported mbtiles version %q", e.Version)
}

// InvalidMetadataError names the first metadata field that failed validation.
type InvalidMetadataError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InvalidMetadataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid metadata field %q: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid metadata field %q: %s", e.Field, e.Reason)
}

func (e *InvalidMetadataError) Unwrap() error { return e.Err }

type InvalidTilesError struct {
	MissingColumn string
}

func (e *InvalidTilesError) Error() string {
	return fmt.Sprintf("invalid tiles table: required column %q is missing", e.MissingColumn)
}

// IsValidation reports whether err means the store does not conform to its
// schema, as opposed to an I/O or driver failure.
func IsValidation(err error) bool {
	var (
		me *InvalidMetadataError
		te *InvalidTilesError
		ve *UnsupportedVersionError
	)
	return errors.As(err, &me) || errors.As(err, &te) || errors.As(err, &ve)
}
