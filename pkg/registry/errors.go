package registry

import (
	"net/http"

	schemaregistry "github.com/landoop/schema-registry"
	"github.com/pkg/errors"
)

var (
	ErrNotFound     = errors.New("schema not found")
	ErrTransport    = errors.New("registry unreachable")
	ErrEmptySubject = errors.New("subject has no registered versions")
	ErrParse        = errors.New("registry returned an invalid schema")
	ErrNoRegistry   = errors.New("registry undefined")
	ErrBadFrame     = errors.New("message is not framed with a schema id")
)

// classify maps a client error onto the error kinds of this package. The
// original message is kept.
func classify(err error, notFound error) error {
	if err == nil {
		return nil
	}

	if schemaregistry.IsSchemaNotFound(err) || schemaregistry.IsSubjectNotFound(err) {
		return errors.Wrap(notFound, err.Error())
	}

	var resErr schemaregistry.ResourceError
	if errors.As(err, &resErr) && isNotFoundCode(resErr.ErrorCode) {
		return errors.Wrap(notFound, err.Error())
	}
	var resErrPtr *schemaregistry.ResourceError
	if errors.As(err, &resErrPtr) && isNotFoundCode(resErrPtr.ErrorCode) {
		return errors.Wrap(notFound, err.Error())
	}

	return errors.Wrap(ErrTransport, err.Error())
}

// isNotFoundCode accepts both the HTTP status and the registry's own 404xx
// error codes.
func isNotFoundCode(code int) bool {
	return code == http.StatusNotFound || code/100 == http.StatusNotFound
}
