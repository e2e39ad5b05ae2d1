package entities

import "github.com/cockroachdb/errors"

// Failure classes for a remote advisory call. Adapters mark wrapped errors with one of these
// so callers can classify them with errors.Is.
var (
	ErrTransport         = errors.New("transport failure")
	ErrRemoteRejected    = errors.New("remote rejected request")
	ErrMalformedResponse = errors.New("malformed completion response")
	ErrParse             = errors.New("unparseable advisory response")
)

// FailureClass returns a short label for err, or "" for nil.
func FailureClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "transport"
	}
}
