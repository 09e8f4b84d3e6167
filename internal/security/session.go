package security

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Admin sign-in stores only an opaque session id in the browser; the session
// itself lives in admin_sessions. Every cookie set here shares one set of flags.

// GenerateSessionID returns a random id for an admin session or an OAuth state value
func GenerateSessionID() string {
	return uuid.NewString()
}

// IsSecureRequest reports whether the client reached the server over HTTPS,
// directly or through a proxy that sets X-Forwarded-Proto.
func IsSecureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" || r.URL.Scheme == "https"
}

func newCookie(r *http.Request, name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}

// CreateSessionCookie carries an admin session id until the session expires
func CreateSessionCookie(r *http.Request, name, value string, expires time.Time) *http.Cookie {
	c := newCookie(r, name, value)
	c.Expires = expires
	return c
}

// CreateTempCookie lives for ttl, such as the OAuth state during Google sign-in
func CreateTempCookie(r *http.Request, name, value string, ttl time.Duration) *http.Cookie {
	c := newCookie(r, name, value)
	c.Expires = time.Now().Add(ttl)
	c.MaxAge = int(ttl.Seconds())
	return c
}

// CreateDeleteCookie tells the browser to drop the named cookie
func CreateDeleteCookie(r *http.Request, name string) *http.Cookie {
	c := newCookie(r, name, "")
	c.MaxAge = -1
	return c
}
