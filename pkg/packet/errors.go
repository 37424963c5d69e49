package packet

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSchema      = errors.New("invalid schema")
	ErrIncompatibleSchema = errors.New("incompatible schema")
	ErrEncoding           = errors.New("encoding failed")
	ErrTruncatedData      = errors.New("truncated data")
	ErrMalformedUnion     = errors.New("malformed union")
	ErrMalformedData      = errors.New("malformed data")
	ErrValidation         = errors.New("record failed validation")
	ErrBadContainer       = errors.New("not an alert container")
)

// SchemaLoadError is returned when a packaged schema definition is missing,
// malformed or fails self-validation.
type SchemaLoadError struct {
	Path string
	Err  error
}

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("cannot load schema %s: %v", e.Path, e.Err)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Err
}

// RecordError reports a failure for a single record of a batch. Readers keep
// going after returning one.
type RecordError struct {
	Index int
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// ValidationError is a single violation found by Validate.
type ValidationError struct {
	Path   string
	Reason string
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Reason
}

// ValidationErrors collects every violation of a record.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	}

	msg := fmt.Sprintf("%d validation errors:", len(v))
	for _, e := range v {
		msg += "\n\t" + e.Error()
	}
	return msg
}

func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

func invalidSchemaf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidSchema, format, args...)
}

func incompatiblef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIncompatibleSchema, format, args...)
}
