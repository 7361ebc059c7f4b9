package reviewclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error constants.
var (
	ErrInvalidBaseURL = errors.New("invalid base url")
	ErrJobsFile       = errors.New("jobs file")
)

// APIError is a non-2xx answer from the finishline API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
