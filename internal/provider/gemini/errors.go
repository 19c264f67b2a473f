package gemini

import (
	"net/http"

	"gemini-relay/internal/translator"
)

// Failure codes carried in the error envelope. All classified failures are
// terminal for the request; retrying across credentials is the caller's job.
const (
	codeReadBody        = "read_response_body_failed"
	codeCloseBody       = "close_response_body_failed"
	codeDecodeBody      = "unmarshal_response_body_failed"
	codeEncodeBody      = "marshal_response_body_failed"
	codeWriteBody       = "write_response_body_failed"
	codeUpstreamRequest = "upstream_request_failed"
)

const errorTypeServer = "server_error"

// wrapError classifies a transport or codec failure into the neutral error
// envelope with a server-error status.
func wrapError(err error, code string) *translator.ErrorWithStatus {
	return &translator.ErrorWithStatus{
		APIError: translator.APIError{
			Message: err.Error(),
			Type:    errorTypeServer,
			Code:    code,
		},
		StatusCode: http.StatusInternalServerError,
	}
}

// emptyResultError classifies an upstream response with zero candidates. This
// is a semantic failure, not a transport one: the envelope forwards the
// upstream's own HTTP status, since the upstream can legitimately report a
// non-200 status with an empty body.
func emptyResultError(upstreamStatus int) *translator.ErrorWithStatus {
	return &translator.ErrorWithStatus{
		APIError: translator.APIError{
			Message: "No candidates returned",
			Type:    errorTypeServer,
			Code:    http.StatusInternalServerError,
		},
		StatusCode: upstreamStatus,
	}
}
