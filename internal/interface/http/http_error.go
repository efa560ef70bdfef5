package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/airwise/internal/domain/cache"
	apperrors "github.com/yanqian/airwise/pkg/errors"
)

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// fromDomainError maps AppError codes onto transport statuses. Anything
// unrecognised becomes a 500 under fallbackCode with a generic message.
func fromDomainError(err error, fallbackCode string) *HTTPError {
	if errors.Is(err, cache.ErrUnavailable) {
		return NewHTTPError(http.StatusServiceUnavailable, apperrors.CodeCacheUnavailable, "cache backend unavailable", err)
	}
	switch code := apperrors.CodeOf(err); code {
	case apperrors.CodeInvalidInput:
		return NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err)
	case apperrors.CodeInvalidSnapshot:
		return NewHTTPError(http.StatusUnprocessableEntity, code, errMessage(err), err)
	case apperrors.CodeNoData:
		return NewHTTPError(http.StatusNotFound, code, errMessage(err), err)
	case apperrors.CodeUpstreamUnavailable:
		return NewHTTPError(http.StatusBadGateway, code, errMessage(err), err)
	case apperrors.CodeCacheUnavailable:
		return NewHTTPError(http.StatusServiceUnavailable, code, "cache backend unavailable", err)
	default:
		return NewHTTPError(http.StatusInternalServerError, fallbackCode, "something went wrong", err)
	}
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return fromDomainError(err, "internal_error")
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
