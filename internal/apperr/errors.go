package apperr

import "errors"

// Sentinel errors for the realtime core. Handlers wrap these with context
// and the gateway maps them to wire error codes.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not allowed")
	ErrValidation     = errors.New("invalid payload")
	ErrNotFound       = errors.New("not found")
	ErrPersistence    = errors.New("persistence failure")
)

// Code returns the stable wire code for err, or "INTERNAL" when it does not
// match the taxonomy.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthentication):
		return "AUTH_FAILED"
	case errors.Is(err, ErrAuthorization):
		return "FORBIDDEN"
	case errors.Is(err, ErrValidation):
		return "INVALID"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE"
	default:
		return "INTERNAL"
	}
}
