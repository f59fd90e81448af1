package genapi

import (
	"encoding/json"
	"net/http"
)

// APIError is a non-2xx response from the generation API. Validation holds
// the structured per-field detail when the server provided one.
type APIError struct {
	StatusCode int
	Detail     string
	Validation []ValidationDetail
}

// Error surfaces the first available message: field detail, then the server
// detail string, then the HTTP status text.
func (e *APIError) Error() string {
	if len(e.Validation) > 0 && e.Validation[0].Message != "" {
		return e.Validation[0].Message
	}
	if e.Detail != "" {
		return e.Detail
	}
	return http.StatusText(e.StatusCode)
}

// decodeAPIError parses an error body of the form {"detail": "..."} or
// {"detail": [{"loc": ..., "msg": ..., "type": ...}]}.
func decodeAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return apiErr
	}

	var details []ValidationDetail
	if err := json.Unmarshal(envelope.Detail, &details); err == nil {
		apiErr.Validation = details
		return apiErr
	}

	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		apiErr.Detail = detail
	}
	return apiErr
}
