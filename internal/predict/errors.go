package predict

import (
	"errors"
	"fmt"
	"net/http"
)

// MsgMissingFields is the error text returned when a required field is absent.
const MsgMissingFields = "Missing required fields"

// ErrUnavailable matches every *UnavailableError via errors.Is.
var ErrUnavailable = errors.New("prediction service unavailable")

// ValidationError is a client input problem. It is never retried.
type ValidationError struct {
	Field string // empty when several fields are missing
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func missingFields() *ValidationError {
	return &ValidationError{Msg: MsgMissingFields}
}

func invalidField(name string) *ValidationError {
	return &ValidationError{Field: name, Msg: "Invalid value for field: " + name}
}

// UpstreamError is a response from the prediction service that could not be
// relayed: a non-success status or a malformed success body.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string { return e.Message }

// UnavailableError means the prediction service could not be reached or did
// not answer in time.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUnavailable, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// StatusCode maps an error to the HTTP status the proxy responds with.
// Everything except a validation failure is a 500.
func StatusCode(err error) int {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch ue.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
