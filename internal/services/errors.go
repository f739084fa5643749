package services

import (
	"errors"
	"net/http"

	goa "goa.design/goa/v3/pkg"

	"facetrack/internal/pipeline"
)

// Error names carried by goa service errors
const (
	ErrNameNotFound    = "not_found"
	ErrNameBadRequest  = "bad_request"
	ErrNameConflict    = "conflict"
	ErrNameUnavailable = "unavailable"
	ErrNameInternal    = "internal"
)

// MakeNotFound builds a not_found service error
func MakeNotFound(err error) *goa.ServiceError {
	return goa.PermanentError(ErrNameNotFound, "%s", err.Error())
}

// MakeBadRequest builds a bad_request service error
func MakeBadRequest(err error) *goa.ServiceError {
	return goa.PermanentError(ErrNameBadRequest, "%s", err.Error())
}

// MakeUnavailable builds an unavailable service error
func MakeUnavailable(err error) *goa.ServiceError {
	return goa.TemporaryError(ErrNameUnavailable, "%s", err.Error())
}

// toServiceError maps domain errors to service errors
func toServiceError(err error) error {
	var serr *goa.ServiceError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &serr):
		return serr
	case errors.Is(err, pipeline.ErrNotMounted):
		return MakeNotFound(err)
	case errors.Is(err, pipeline.ErrAlreadyMounted):
		return goa.PermanentError(ErrNameConflict, "%s", err.Error())
	default:
		return goa.Fault("%s", err.Error())
	}
}

// ErrorBody is the JSON body of an error response
type ErrorBody struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	Message   string `json:"message"`
	Temporary bool   `json:"temporary"`
	Timeout   bool   `json:"timeout"`
	Fault     bool   `json:"fault"`
}

// errorResponse returns the status code and body for err
func errorResponse(err error) (int, *ErrorBody) {
	var serr *goa.ServiceError
	if !errors.As(toServiceError(err), &serr) {
		return http.StatusInternalServerError, &ErrorBody{Name: ErrNameInternal, Message: err.Error(), Fault: true}
	}

	body := &ErrorBody{
		Name:      serr.Name,
		ID:        serr.ID,
		Message:   serr.Message,
		Temporary: serr.Temporary,
		Timeout:   serr.Timeout,
		Fault:     serr.Fault,
	}
	switch serr.Name {
	case ErrNameNotFound:
		return http.StatusNotFound, body
	case ErrNameBadRequest:
		return http.StatusBadRequest, body
	case ErrNameConflict:
		return http.StatusConflict, body
	case ErrNameUnavailable:
		return http.StatusServiceUnavailable, body
	default:
		return http.StatusInternalServerError, body
	}
}
