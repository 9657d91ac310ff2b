package httputil

// Machine-readable error codes returned in ErrorResponse.Code
const (
	CodeInternalError      = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
	CodeInvalidRequestBody = "invalid_request_body"
	CodeValidationFailed   = "validation_failed"
	CodeTooManyRequests    = "too_many_requests"
	CodeCooldownActive     = "cooldown_active"
	CodeNotFound           = "not_found"

	CodeMissingAuth       = "missing_auth"
	CodeInvalidAuthHeader = "invalid_auth_header"
	CodeInvalidToken      = "invalid_token"

	CodeUserNotFound       = "user_not_found"
	CodeInvalidCredentials = "invalid_credentials"
	CodeWrongPassword      = "wrong_password"
	CodeInvalidResetToken  = "invalid_reset_token"
	CodeVerificationFailed = "verification_failed"
	CodeAlreadyVerified    = "already_verified"
)
