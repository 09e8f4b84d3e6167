package handlers

import (
	"html/template"
	"log"
	"net/http"

	"golang.org/x/oauth2"

	"memberdir/internal/security"
	"memberdir/internal/service"
)

// AuthHandler handles admin authentication requests
type AuthHandler struct {
	authService *service.AuthService
	templates   *template.Template
	google      *oauth2.Config
	baseURL     string
}

// NewAuthHandler creates a new auth handler. google may be nil when sign-in with Google is not configured.
func NewAuthHandler(authService *service.AuthService, templates *template.Template, google *oauth2.Config, baseURL string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		templates:   templates,
		google:      google,
		baseURL:     baseURL,
	}
}

func (h *AuthHandler) googleEnabled() bool {
	return h.google != nil && h.google.ClientID != "" && h.google.ClientSecret != ""
}

// ShowLogin renders the admin login page
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	// Check if already logged in
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if _, err := h.authService.ValidateSession(cookie.Value); err == nil {
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
			return
		}
	}

	h.renderLogin(w, LoginViewData{})
}

// Login handles login form submission
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	session, admin, err := h.authService.Login(username, password)
	if err != nil {
		log.Printf("Admin login failed for %q from %s", username, security.GetClientIP(r))
		h.renderLogin(w, LoginViewData{Error: "Invalid username or password", Username: username})
		return
	}

	log.Printf("Admin %s logged in", admin.Username)
	http.SetCookie(w, security.CreateSessionCookie(r, SessionCookieName, session.ID, session.ExpiresAt))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// Logout ends the admin session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		_ = h.authService.Logout(cookie.Value)
	}

	http.SetCookie(w, security.CreateDeleteCookie(r, SessionCookieName))
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, data LoginViewData) {
	data.Title = "Admin Login"
	data.GoogleEnabled = h.googleEnabled()
	if err := h.templates.ExecuteTemplate(w, "login.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error rendering login template", err)
	}
}
