package handlers

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func TestAdminRoutesRequireLogin(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/admin", "/admin/codes", "/admin/pending", "/admin/backup/export"} {
		resp := app.get(t, path)
		if resp.status != http.StatusSeeOther || resp.location != "/admin/login" {
			t.Errorf("GET %s = %d %q, want 303 /admin/login", path, resp.status, resp.location)
		}
	}
}

func TestLogin(t *testing.T) {
	app := newTestApp(t)

	resp := app.get(t, "/admin/login")
	assertContains(t, resp.body, "login||google=false")

	resp = app.postForm(t, "/admin/login", url.Values{"username": {testAdminUser}, "password": {"wrong-password"}})
	if resp.status != http.StatusOK {
		t.Fatalf("bad login status = %d, want 200", resp.status)
	}
	assertContains(t, resp.body, "login|Invalid username or password")

	app.login(t)

	resp = app.get(t, "/admin")
	if resp.status != http.StatusOK {
		t.Fatalf("GET /admin status = %d, want 200", resp.status)
	}
	assertContains(t, resp.body, "dashboard|"+testAdminUser)

	// Logged-in admins skip the login page.
	resp = app.get(t, "/admin/login")
	if resp.status != http.StatusSeeOther || resp.location != "/admin" {
		t.Errorf("GET /admin/login = %d %q, want 303 /admin", resp.status, resp.location)
	}
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	app.login(t)

	resp := app.postForm(t, "/admin/logout", nil)
	if resp.status != http.StatusSeeOther || resp.location != "/admin/login" {
		t.Fatalf("logout = %d %q", resp.status, resp.location)
	}

	resp = app.get(t, "/admin")
	if resp.location != "/admin/login" {
		t.Errorf("after logout GET /admin redirected to %q, want /admin/login", resp.location)
	}
}

func TestCSRFProtect(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	resp := app.postForm(t, "/admin/codes", url.Values{})
	if resp.status != http.StatusForbidden {
		t.Errorf("missing token status = %d, want 403", resp.status)
	}

	resp = app.postForm(t, "/admin/codes", url.Values{"csrf_token": {"bogus"}})
	if resp.status != http.StatusForbidden {
		t.Errorf("bad token status = %d, want 403", resp.status)
	}

	resp = app.postForm(t, "/admin/codes", url.Values{"csrf_token": {token}})
	if resp.status != http.StatusSeeOther {
		t.Errorf("valid token status = %d, want 303", resp.status)
	}
}

func TestGoogleSignIn(t *testing.T) {
	tmpl := template.Must(template.New("").Funcs(TemplateFuncs()).Parse(testTemplates))

	t.Run("disabled", func(t *testing.T) {
		h := NewAuthHandler(nil, tmpl, nil, "")
		rec := httptest.NewRecorder()
		h.StartGoogle(rec, httptest.NewRequest(http.MethodGet, "/auth/google/start", nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		assertContains(t, rec.Body.String(), "login|Google sign-in is not configured|google=false")
	})

	google := &oauth2.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: "https://accounts.example.com/token"},
		Scopes:       []string{"openid", "email"},
	}
	h := NewAuthHandler(nil, tmpl, google, "https://members.example.org/")

	t.Run("start redirects with state", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.StartGoogle(rec, httptest.NewRequest(http.MethodGet, "/auth/google/start", nil))
		if rec.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", rec.Code)
		}
		loc, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatalf("bad Location: %v", err)
		}
		if !strings.HasPrefix(loc.String(), "https://accounts.example.com/auth?") {
			t.Errorf("Location = %q", loc)
		}
		if got := loc.Query().Get("redirect_uri"); got != "https://members.example.org/auth/google/callback" {
			t.Errorf("redirect_uri = %q", got)
		}

		var state string
		for _, c := range rec.Result().Cookies() {
			if c.Name == oauthStateCookie {
				state = c.Value
			}
		}
		if state == "" || loc.Query().Get("state") != state {
			t.Errorf("state cookie %q does not match state param %q", state, loc.Query().Get("state"))
		}
	})

	t.Run("callback rejects state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=one", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "two"})
		rec := httptest.NewRecorder()
		h.GoogleCallback(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		assertContains(t, rec.Body.String(), "Invalid OAuth state|google=true")
	})
}
