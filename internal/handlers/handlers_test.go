package handlers

import (
	"bytes"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/security"
	"memberdir/internal/service"
	"memberdir/internal/store"
	"memberdir/internal/uploads"
)

const (
	testSecret        = "test-secret"
	testAdminUser     = "admin"
	testAdminPassword = "correct-horse"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// testTemplates renders just enough of each page for assertions
const testTemplates = `
{{define "directory.tmpl"}}directory|{{range .Members}}{{.Name}};{{end}}|{{range .Flashes}}{{.Message}}{{end}}{{end}}
{{define "profile.tmpl"}}profile|{{.Member.Name}}|{{range .Family}}{{.Name}}:{{.Age}};{{end}}|{{with .Business}}{{.Name}}{{end}}{{end}}
{{define "register.tmpl"}}register|{{if .CodeEntry}}code-entry{{else}}form:{{.Code}}{{end}}|{{.Error}}{{end}}
{{define "register_success.tmpl"}}success|{{range .Flashes}}{{.Message}}{{end}}{{end}}
{{define "login.tmpl"}}login|{{.Error}}|google={{.GoogleEnabled}}{{end}}
{{define "admin_dashboard.tmpl"}}dashboard|{{.Admin.Username}}|pending={{.PendingCount}}|codes={{.ActiveCodes}}|{{range .Members}}{{.Name}};{{end}}|{{range .Flashes}}{{.Message}}{{end}}{{end}}
{{define "admin_member_form.tmpl"}}member-form|{{.Action}}|{{.Error}}|{{.Form.Name}}{{end}}
{{define "admin_pending.tmpl"}}pending|{{range .Members}}{{.Name}};{{end}}|{{range .Flashes}}{{.Message}}{{end}}{{end}}
{{define "admin_codes.tmpl"}}codes|{{range .Codes}}{{.Code}}={{.Status}};{{end}}|{{range .Flashes}}{{.Message}}{{end}}{{end}}
{{define "admin_backup.tmpl"}}backup|{{range .Flashes}}{{.Message}}{{end}}{{end}}
`

type testApp struct {
	server *httptest.Server
	client *http.Client
	db     *database.DB

	members      *service.MemberService
	codes        *service.CodeService
	auth         *service.AuthService
	registration *service.RegistrationService
	invites      *security.InviteSigner
	csrf         *security.CSRFGenerator
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	backend, err := uploads.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	images := uploads.NewStorage(backend, 1024)

	email, err := service.NewEmailService("", "", "", "", false)
	if err != nil {
		t.Fatalf("NewEmailService() error = %v", err)
	}

	memberStore := store.New("members", db)
	codeStore := store.New("registration_codes", db)
	adminStore := store.New("admins", db)

	app := &testApp{
		db:      db,
		members: service.NewMemberService(memberStore, images, nil),
		codes:   service.NewCodeService(codeStore, 7*24*time.Hour, nil),
		auth:    service.NewAuthService(adminStore, time.Hour, nil),
		invites: security.NewInviteSigner(testSecret),
		csrf:    security.NewCSRFGenerator(testSecret),
	}
	app.registration = service.NewRegistrationService(app.codes, app.members, email, nil)
	backup := service.NewBackupService(memberStore, codeStore, adminStore)

	if _, err := app.auth.CreateAdmin(testAdminUser, testAdminPassword); err != nil {
		t.Fatalf("CreateAdmin() error = %v", err)
	}

	tmpl := template.Must(template.New("").Funcs(TemplateFuncs()).Parse(testTemplates))
	sessions := NewSessionStore(testSecret)
	mw := NewMiddleware(app.auth, app.csrf, nil)

	directory := NewDirectoryHandler(app.members, images, sessions, tmpl)
	register := NewRegisterHandler(app.registration, app.invites, sessions, tmpl)
	authHandler := NewAuthHandler(app.auth, tmpl, nil, "")
	admin := NewAdminHandler(tmpl, app.members, app.codes, email, backup, app.invites, mw, sessions, "http://members.test")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", directory.Directory)
	mux.HandleFunc("GET /profile", directory.Profile)
	mux.HandleFunc("GET /uploads/{kind}/{name}", directory.ServeUpload)
	mux.HandleFunc("GET /register", register.ShowRegister)
	mux.HandleFunc("POST /register", register.Register)
	mux.HandleFunc("GET /register/invite", register.Invite)
	mux.HandleFunc("GET /register/success", register.Success)
	mux.HandleFunc("GET /admin/login", authHandler.ShowLogin)
	mux.HandleFunc("POST /admin/login", authHandler.Login)
	mux.HandleFunc("POST /admin/logout", authHandler.Logout)
	mux.HandleFunc("GET /admin", mw.RequireAdmin(admin.ShowAdminDashboard))
	mux.HandleFunc("GET /admin/members/add", mw.RequireAdmin(admin.ShowAddMember))
	mux.HandleFunc("POST /admin/members/add", mw.RequireAdmin(mw.CSRFProtect(admin.AddMember)))
	mux.HandleFunc("GET /admin/members/edit", mw.RequireAdmin(admin.ShowEditMember))
	mux.HandleFunc("POST /admin/members/edit", mw.RequireAdmin(mw.CSRFProtect(admin.EditMember)))
	mux.HandleFunc("POST /admin/members/delete", mw.RequireAdmin(mw.CSRFProtect(admin.DeleteMember)))
	mux.HandleFunc("GET /admin/pending", mw.RequireAdmin(admin.ShowPending))
	mux.HandleFunc("POST /admin/pending/approve", mw.RequireAdmin(mw.CSRFProtect(admin.ApprovePending)))
	mux.HandleFunc("POST /admin/pending/reject", mw.RequireAdmin(mw.CSRFProtect(admin.RejectPending)))
	mux.HandleFunc("GET /admin/codes", mw.RequireAdmin(admin.ShowCodes))
	mux.HandleFunc("POST /admin/codes", mw.RequireAdmin(mw.CSRFProtect(admin.PostCodes)))
	mux.HandleFunc("POST /admin/codes/invite", mw.RequireAdmin(mw.CSRFProtect(admin.InviteCode)))
	mux.HandleFunc("GET /admin/backup", mw.RequireAdmin(admin.ShowBackup))
	mux.HandleFunc("GET /admin/backup/export", mw.RequireAdmin(admin.ExportDatabase))
	mux.HandleFunc("POST /admin/backup/import", mw.RequireAdmin(mw.CSRFProtect(admin.ImportDatabase)))

	app.server = httptest.NewServer(mux)
	t.Cleanup(app.server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	app.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return app
}

type response struct {
	status   int
	body     string
	location string
	header   http.Header
}

func (a *testApp) do(t *testing.T, req *http.Request) response {
	t.Helper()
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return response{
		status:   resp.StatusCode,
		body:     string(body),
		location: resp.Header.Get("Location"),
		header:   resp.Header,
	}
}

func (a *testApp) get(t *testing.T, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return a.do(t, req)
}

func (a *testApp) postForm(t *testing.T, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, req)
}

// postMultipart posts fields plus files keyed by form field name
func (a *testApp) postMultipart(t *testing.T, path string, fields url.Values, files map[string][]byte) response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, values := range fields {
		for _, v := range values {
			if err := mw.WriteField(name, v); err != nil {
				t.Fatalf("WriteField() error = %v", err)
			}
		}
	}
	for field, data := range files {
		fw, err := mw.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart close: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.do(t, req)
}

// login signs in the test admin and returns the CSRF token for the session
func (a *testApp) login(t *testing.T) string {
	t.Helper()
	resp := a.postForm(t, "/admin/login", url.Values{
		"username": {testAdminUser},
		"password": {testAdminPassword},
	})
	if resp.status != http.StatusSeeOther || resp.location != "/admin" {
		t.Fatalf("login: status %d location %q, want 303 /admin", resp.status, resp.location)
	}

	u, _ := url.Parse(a.server.URL)
	for _, c := range a.client.Jar.Cookies(u) {
		if c.Name == SessionCookieName {
			token, err := a.csrf.GenerateToken(c.Value)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}
			return token
		}
	}
	t.Fatal("login did not set the session cookie")
	return ""
}

func (a *testApp) addMember(t *testing.T, name, email, status string) int64 {
	t.Helper()
	app := &service.Application{Name: name, Email: email, Contact: "555-0100", Address: "1 Main St"}
	var (
		id  int64
		err error
	)
	if status == "" {
		m, cerr := a.members.AddMember(t.Context(), app, "member-password")
		if cerr == nil {
			id = m.ID
		}
		err = cerr
	} else {
		m, cerr := a.members.CreateFromApplication(t.Context(), app, status, "")
		if cerr == nil {
			id = m.ID
		}
		err = cerr
	}
	if err != nil {
		t.Fatalf("add member %s: %v", name, err)
	}
	return id
}

func memberFields(name, email string) url.Values {
	return url.Values{
		"name":    {name},
		"email":   {email},
		"contact": {"555-0100"},
		"address": {"1 Main St"},
	}
}

func assertContains(t *testing.T, body, want string) {
	t.Helper()
	if !strings.Contains(body, want) {
		t.Errorf("body %q does not contain %q", body, want)
	}
}
