package translator

import "fmt"

// APIError is the neutral error envelope written to clients. Code is either a
// string identifier (classified relay failures) or a numeric value mirrored
// from the upstream.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// ErrorResponse wraps an APIError as the top-level error payload.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ErrorWithStatus pairs the error envelope with the HTTP status the transport
// layer must answer with. Every failure surfaced by the relay carries one.
type ErrorWithStatus struct {
	APIError
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *ErrorWithStatus) Error() string {
	return fmt.Sprintf("%s (type %s, status %d)", e.Message, e.Type, e.StatusCode)
}
