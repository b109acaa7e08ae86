package types

// Error types of the Messages API error envelope.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypePermission     = "permission_error"
	ErrorTypeNotFound       = "not_found_error"
	ErrorTypeRequestTooBig  = "request_too_large"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeAPI            = "api_error"
	ErrorTypeOverloaded     = "overloaded_error"
	ErrorTypeCancelled      = "cancelled"
)

// Error is the detail object of an error envelope.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the {"type":"error","error":{...}} envelope used for both JSON
// error bodies and terminal stream events. Status is the HTTP status to answer with
// and is not serialized.
type ErrorResponse struct {
	Type   string `json:"type"`
	Err    Error  `json:"error"`
	Status int    `json:"-"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(status int, errType, message string) *ErrorResponse {
	return &ErrorResponse{
		Type:   EventError,
		Err:    Error{Type: errType, Message: message},
		Status: status,
	}
}

// Error implements the error interface, returning the underlying error message.
func (e *ErrorResponse) Error() string {
	return e.Err.Message
}
