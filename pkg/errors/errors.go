package errors

import "errors"

// Error codes shared between the domain and transport layers.
const (
	CodeInvalidInput        = "invalid_input"
	CodeInvalidSnapshot     = "invalid_snapshot"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeNoData              = "no_data"
	CodeCacheUnavailable    = "cache_unavailable"
)

// AppError carries a stable code alongside the underlying cause.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap produces a new AppError instance. err may be nil.
func Wrap(code, message string, err error) error {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return code != "" && CodeOf(err) == code
}
