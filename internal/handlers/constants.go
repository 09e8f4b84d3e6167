package handlers

const (
	SessionCookieName = "admin_session"

	flashSessionName        = "memberdir_flash"
	registrationSessionName = "memberdir_registration"

	// MaxCodeExpiryDays is the longest expiry an admin may give a registration code
	MaxCodeExpiryDays = 3650

	ErrInvalidFormData       = "Invalid form data"
	ErrUnauthorized          = "Unauthorized"
	ErrInternalServerError   = "Internal server error"
	ErrInternalServerErrorUC = "Internal Server Error"
	ErrMemberNotFound        = "Member not found"
	ErrInvalidCodeMessage    = "Invalid or expired registration code."
)
