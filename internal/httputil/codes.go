package httputil

// Machine-readable error codes carried alongside human-readable messages so
// clients can branch without parsing message text.
const (
	CodeInvalidRequestBody = "invalid_request_body"

	// Validation (400)
	CodeEmailRequired      = "email_required"
	CodeInvalidEmailFormat = "invalid_email_format"
	CodePasswordRequired   = "password_required"
	CodePasswordTooShort   = "password_too_short"
	CodeSubjectRequired    = "subject_required"
	CodeNothingToUpdate    = "nothing_to_update"

	// Conflict (409)
	CodeEmailTaken = "email_taken"

	// Authentication (401)
	CodeInvalidCredentials = "invalid_credentials"
	CodeMissingAuth        = "missing_auth"
	CodeInvalidAuthHeader  = "invalid_auth_header"
	CodeSessionExpired     = "session_expired"
	CodeSessionRevoked     = "session_revoked"
	CodeInvalidSession     = "invalid_session"

	// Not found (404)
	CodeUserNotFound = "user_not_found"

	// Internal (500)
	CodeInternalError = "internal_error"
)
