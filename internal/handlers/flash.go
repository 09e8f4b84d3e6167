package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/sessions"

	"memberdir/internal/security"
)

// Flash kinds
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
)

var flashKinds = []string{FlashSuccess, FlashWarning, FlashError}

// FlashMessage is one message shown after a redirect
type FlashMessage struct {
	Kind    string
	Message string
}

// SessionStore keeps short-lived browser state in signed cookies: flash
// messages and the registration code validated for the current visitor.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore creates a cookie store signed with secret
func NewSessionStore(secret string) *SessionStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{store: store}
}

func (s *SessionStore) get(r *http.Request, name string) *sessions.Session {
	session, err := s.store.Get(r, name)
	if err != nil {
		// A tampered or stale cookie yields a fresh session
		log.Printf("Discarding unreadable %s cookie: %v", name, err)
	}
	session.Options.Secure = security.IsSecureRequest(r)
	return session
}

// AddFlash queues a message for the next page
func (s *SessionStore) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	session := s.get(r, flashSessionName)
	session.AddFlash(message, kind)
	if err := session.Save(r, w); err != nil {
		log.Printf("Failed to save flash message: %v", err)
	}
}

// Flashes returns and clears the queued messages
func (s *SessionStore) Flashes(w http.ResponseWriter, r *http.Request) []FlashMessage {
	session := s.get(r, flashSessionName)
	var messages []FlashMessage
	for _, kind := range flashKinds {
		for _, v := range session.Flashes(kind) {
			if msg, ok := v.(string); ok {
				messages = append(messages, FlashMessage{Kind: kind, Message: msg})
			}
		}
	}
	if len(messages) > 0 {
		if err := session.Save(r, w); err != nil {
			log.Printf("Failed to clear flash messages: %v", err)
		}
	}
	return messages
}

// ValidatedCode returns the registration code validated earlier in this browser
func (s *SessionStore) ValidatedCode(r *http.Request) string {
	code, _ := s.get(r, registrationSessionName).Values["code"].(string)
	return code
}

// SetValidatedCode remembers code for the registration form submission
func (s *SessionStore) SetValidatedCode(w http.ResponseWriter, r *http.Request, code string) {
	session := s.get(r, registrationSessionName)
	session.Values["code"] = code
	if err := session.Save(r, w); err != nil {
		log.Printf("Failed to save registration session: %v", err)
	}
}

// ClearValidatedCode forgets the registration code
func (s *SessionStore) ClearValidatedCode(w http.ResponseWriter, r *http.Request) {
	session := s.get(r, registrationSessionName)
	delete(session.Values, "code")
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Printf("Failed to clear registration session: %v", err)
	}
}
