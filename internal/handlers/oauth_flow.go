package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"memberdir/internal/security"
)

// GoogleUserInfoURL is the endpoint returning the signed-in Google account
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

const oauthStateCookie = "oauth_state"

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// StartGoogle initiates the Google OAuth flow
func (h *AuthHandler) StartGoogle(w http.ResponseWriter, r *http.Request) {
	if !h.googleEnabled() {
		h.oauthError(w, "Google sign-in is not configured", http.StatusBadRequest)
		return
	}

	state := security.GenerateSessionID()
	http.SetCookie(w, security.CreateTempCookie(r, oauthStateCookie, state, 10*time.Minute))

	config := *h.google
	config.RedirectURL = h.oauthRedirectURL(r)
	http.Redirect(w, r, config.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

// GoogleCallback completes the Google OAuth flow and signs in the matching admin
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.googleEnabled() {
		h.oauthError(w, "Google sign-in is not configured", http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if code == "" {
		h.oauthError(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		h.oauthError(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, security.CreateDeleteCookie(r, oauthStateCookie))

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	config := *h.google
	config.RedirectURL = h.oauthRedirectURL(r)
	token, err := config.Exchange(ctx, code)
	if err != nil {
		log.Printf("Google code exchange failed: %v", err)
		h.oauthError(w, "Failed to exchange OAuth code", http.StatusBadRequest)
		return
	}

	info, err := fetchGoogleUser(ctx, &config, token)
	if err != nil {
		h.oauthError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !info.VerifiedEmail {
		h.oauthError(w, "Google account email is not verified", http.StatusForbidden)
		return
	}

	session, admin, err := h.authService.OAuthLogin(info.Email)
	if err != nil {
		log.Printf("Google sign-in refused for %s: %v", info.Email, err)
		h.oauthError(w, "No admin account is linked to this Google account", http.StatusForbidden)
		return
	}

	log.Printf("Admin %s logged in with Google", admin.Username)
	http.SetCookie(w, security.CreateSessionCookie(r, SessionCookieName, session.ID, session.ExpiresAt))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func fetchGoogleUser(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (googleUserInfo, error) {
	client := config.Client(ctx, token)
	resp, err := client.Get(GoogleUserInfoURL)
	if err != nil {
		return googleUserInfo{}, errors.New("failed to fetch Google user info")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return googleUserInfo{}, errors.New("failed to fetch Google user info")
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return googleUserInfo{}, errors.New("failed to parse Google user info")
	}
	return info, nil
}

func (h *AuthHandler) oauthRedirectURL(r *http.Request) string {
	baseURL := strings.TrimSpace(h.baseURL)
	if baseURL == "" {
		scheme := "http"
		if security.IsSecureRequest(r) {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	return strings.TrimRight(baseURL, "/") + "/auth/google/callback"
}

func (h *AuthHandler) oauthError(w http.ResponseWriter, message string, status int) {
	w.WriteHeader(status)
	data := LoginViewData{
		Title:         "Admin Login",
		Error:         message,
		GoogleEnabled: h.googleEnabled(),
	}
	if err := h.templates.ExecuteTemplate(w, "login.tmpl", data); err != nil {
		log.Printf("Error rendering login template: %v", err)
	}
}
