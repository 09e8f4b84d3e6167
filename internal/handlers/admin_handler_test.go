package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"memberdir/internal/models"
	"memberdir/internal/service"
)

func TestAdminDashboard(t *testing.T) {
	app := newTestApp(t)
	app.addMember(t, "Active Person", "active@example.com", "")
	app.addMember(t, "Pending Person", "pending@example.com", models.StatusPending)
	if _, err := app.codes.CreateCode("VALID00000", testAdminUser, 0); err != nil {
		t.Fatalf("CreateCode() error = %v", err)
	}
	if _, err := app.codes.CreateCode("GONE000000", testAdminUser, 0); err != nil {
		t.Fatalf("CreateCode() error = %v", err)
	}
	if err := app.codes.Deactivate("GONE000000"); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}

	app.login(t)
	resp := app.get(t, "/admin")
	if resp.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.status)
	}
	assertContains(t, resp.body, "pending=1|codes=1|")
	assertContains(t, resp.body, "Active Person;Pending Person;")
}

func TestAdminAddMember(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	resp := app.get(t, "/admin/members/add")
	assertContains(t, resp.body, "member-form|/admin/members/add|")

	fields := memberFields("New Person", "New@Example.com")
	fields.Set("password", "member-password")
	fields.Set("business_name", "New Co")
	resp = app.postMultipart(t, "/admin/members/add", fields, nil)
	if resp.status != http.StatusForbidden {
		t.Fatalf("add without CSRF token = %d, want 403", resp.status)
	}

	fields.Set("csrf_token", token)
	resp = app.postMultipart(t, "/admin/members/add", fields, map[string][]byte{"business_logo": pngBytes})
	if resp.status != http.StatusSeeOther || resp.location != "/admin" {
		t.Fatalf("add = %d %q (body %q)", resp.status, resp.location, resp.body)
	}

	m, err := app.members.GetByEmail("new@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if m.Status != models.StatusActive {
		t.Errorf("Status = %q, want active", m.Status)
	}
	if m.Business == nil || m.Business.Name != "New Co" || m.Business.Logo == "" {
		t.Errorf("Business = %+v, want New Co with logo", m.Business)
	}

	resp = app.get(t, "/admin")
	assertContains(t, resp.body, "Member New Person added.")

	t.Run("validation error re-renders form", func(t *testing.T) {
		fields := memberFields("Other Person", "other@example.com")
		fields.Set("csrf_token", token)
		resp := app.postMultipart(t, "/admin/members/add", fields, nil)
		if resp.status != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.status)
		}
		assertContains(t, resp.body, "password is required|Other Person")
	})

	t.Run("duplicate email", func(t *testing.T) {
		fields := memberFields("Copy Person", "NEW@example.com")
		fields.Set("password", "member-password")
		fields.Set("csrf_token", token)
		resp := app.postMultipart(t, "/admin/members/add", fields, nil)
		assertContains(t, resp.body, "That email address is already registered.")
	})
}

func TestAdminEditMember(t *testing.T) {
	app := newTestApp(t)
	id := app.addMember(t, "Old Name", "old@example.com", "")
	app.addMember(t, "Taken Person", "taken@example.com", "")
	token := app.login(t)
	editPath := fmt.Sprintf("/admin/members/edit?id=%d", id)

	resp := app.get(t, editPath)
	assertContains(t, resp.body, "|Old Name")

	fields := memberFields("New Name", "old@example.com")
	fields.Set("csrf_token", token)
	resp = app.postMultipart(t, editPath, fields, nil)
	if resp.status != http.StatusSeeOther {
		t.Fatalf("edit = %d (body %q)", resp.status, resp.body)
	}
	m, err := app.members.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Name != "New Name" {
		t.Errorf("Name = %q, want New Name", m.Name)
	}
	if m.PasswordHash == "" {
		t.Error("blank password should keep the existing hash")
	}

	fields = memberFields("New Name", "taken@example.com")
	fields.Set("csrf_token", token)
	resp = app.postMultipart(t, editPath, fields, nil)
	assertContains(t, resp.body, "That email address is already registered.")

	if resp := app.get(t, "/admin/members/edit?id=999"); resp.status != http.StatusNotFound {
		t.Errorf("edit unknown member = %d, want 404", resp.status)
	}
}

func TestAdminDeleteMember(t *testing.T) {
	app := newTestApp(t)
	id := app.addMember(t, "Gone Soon", "gone@example.com", "")
	token := app.login(t)

	resp := app.postForm(t, fmt.Sprintf("/admin/members/delete?id=%d", id), url.Values{"csrf_token": {token}})
	if resp.status != http.StatusSeeOther {
		t.Fatalf("delete = %d", resp.status)
	}
	if _, err := app.members.Get(id); !errors.Is(err, service.ErrMemberNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrMemberNotFound", err)
	}

	resp = app.postForm(t, fmt.Sprintf("/admin/members/delete?id=%d", id), url.Values{"csrf_token": {token}})
	if resp.status != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", resp.status)
	}
}

func TestAdminPendingApproval(t *testing.T) {
	app := newTestApp(t)
	approveID := app.addMember(t, "Approve Me", "approve@example.com", models.StatusPending)
	rejectID := app.addMember(t, "Reject Me", "reject@example.com", models.StatusPending)
	activeID := app.addMember(t, "Already Active", "active@example.com", "")
	token := app.login(t)
	form := url.Values{"csrf_token": {token}}

	resp := app.get(t, "/admin/pending")
	assertContains(t, resp.body, "pending|Approve Me;Reject Me;|")

	resp = app.postForm(t, fmt.Sprintf("/admin/pending/approve?id=%d", approveID), form)
	if resp.status != http.StatusSeeOther || resp.location != "/admin/pending" {
		t.Fatalf("approve = %d %q", resp.status, resp.location)
	}
	m, err := app.members.Get(approveID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Status != models.StatusApproved {
		t.Errorf("Status = %q, want approved", m.Status)
	}

	resp = app.postForm(t, fmt.Sprintf("/admin/pending/reject?id=%d", rejectID), form)
	if resp.status != http.StatusSeeOther {
		t.Fatalf("reject = %d", resp.status)
	}
	if _, err := app.members.Get(rejectID); !errors.Is(err, service.ErrMemberNotFound) {
		t.Errorf("rejected member still present: %v", err)
	}

	resp = app.postForm(t, fmt.Sprintf("/admin/pending/reject?id=%d", activeID), form)
	if resp.status != http.StatusSeeOther {
		t.Fatalf("reject active = %d", resp.status)
	}
	if _, err := app.members.Get(activeID); err != nil {
		t.Errorf("active member was removed by reject: %v", err)
	}

	resp = app.get(t, "/admin/pending")
	assertContains(t, resp.body, "pending||")
	assertContains(t, resp.body, "That member is not pending approval.")

	resp = app.postForm(t, "/admin/pending/approve?id=999", form)
	if resp.status != http.StatusNotFound {
		t.Errorf("approve unknown = %d, want 404", resp.status)
	}
}

func TestAdminCodes(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)
	form := url.Values{"csrf_token": {token}, "expires_days": {"0"}}

	resp := app.postForm(t, "/admin/codes", form)
	if resp.status != http.StatusSeeOther || resp.location != "/admin/codes" {
		t.Fatalf("generate = %d %q", resp.status, resp.location)
	}
	codes, err := app.codes.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(codes) != 1 {
		t.Fatalf("len(codes) = %d, want 1", len(codes))
	}
	code := codes[0]
	if code.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want no expiry for 0 days", code.ExpiresAt)
	}
	if code.CreatedBy != testAdminUser {
		t.Errorf("CreatedBy = %q, want %q", code.CreatedBy, testAdminUser)
	}

	resp = app.get(t, "/admin/codes")
	assertContains(t, resp.body, code.Code+"=active;")
	assertContains(t, resp.body, "Code "+code.Code+" generated.")

	resp = app.postForm(t, "/admin/codes?deactivate="+strings.ToLower(code.Code), url.Values{"csrf_token": {token}})
	if resp.status != http.StatusSeeOther {
		t.Fatalf("deactivate = %d", resp.status)
	}
	resp = app.get(t, "/admin/codes")
	assertContains(t, resp.body, code.Code+"=inactive;")

	resp = app.postForm(t, "/admin/codes?deactivate="+code.Code, url.Values{"csrf_token": {token}})
	if resp.status != http.StatusSeeOther {
		t.Fatalf("second deactivate = %d", resp.status)
	}
	resp = app.get(t, "/admin/codes")
	assertContains(t, resp.body, "Could not deactivate code")

	resp = app.postForm(t, "/admin/codes?delete="+code.Code, url.Values{"csrf_token": {token}})
	if resp.status != http.StatusSeeOther {
		t.Fatalf("delete = %d", resp.status)
	}
	if codes, _ := app.codes.List(); len(codes) != 0 {
		t.Errorf("codes after delete = %d, want 0", len(codes))
	}

	t.Run("default and bad expiry", func(t *testing.T) {
		resp := app.postForm(t, "/admin/codes", url.Values{"csrf_token": {token}})
		if resp.status != http.StatusSeeOther {
			t.Fatalf("generate = %d", resp.status)
		}
		codes, _ := app.codes.List()
		if len(codes) != 1 || codes[0].ExpiresAt == nil {
			t.Fatalf("codes = %+v, want one with the default expiry", codes)
		}
		if d := time.Until(*codes[0].ExpiresAt); d < 6*24*time.Hour || d > 7*24*time.Hour {
			t.Errorf("expiry in %v, want about 7 days", d)
		}

		for _, days := range []string{"-2", "soon", "3651", "200000"} {
			app.postForm(t, "/admin/codes", url.Values{"csrf_token": {token}, "expires_days": {days}})
			resp = app.get(t, "/admin/codes")
			assertContains(t, resp.body, "Expiry must be a whole number of days up to 3650")
			if codes, _ := app.codes.List(); len(codes) != 1 {
				t.Fatalf("expires_days=%s created a code: %d codes", days, len(codes))
			}
		}

		app.postForm(t, "/admin/codes", url.Values{"csrf_token": {token}, "expires_days": {"3650"}})
		codes, _ = app.codes.List()
		if len(codes) != 2 {
			t.Fatalf("codes = %d, want 2 after the longest allowed expiry", len(codes))
		}
		for _, c := range codes {
			if c.ExpiresAt == nil || !c.ExpiresAt.After(time.Now()) {
				t.Errorf("code %s expiry = %v, want a future time", c.Code, c.ExpiresAt)
			}
		}
	})
}

func TestAdminInviteWithoutEmailShowsLink(t *testing.T) {
	app := newTestApp(t)
	if _, err := app.codes.CreateCode(testCode, testAdminUser, 0); err != nil {
		t.Fatalf("CreateCode() error = %v", err)
	}
	token := app.login(t)

	resp := app.postForm(t, "/admin/codes/invite", url.Values{
		"csrf_token": {token},
		"email":      {"friend@example.com"},
		"code":       {testCode},
	})
	if resp.status != http.StatusSeeOther {
		t.Fatalf("invite = %d", resp.status)
	}
	resp = app.get(t, "/admin/codes")
	assertContains(t, resp.body, "http://members.test/register/invite?token=")

	app.postForm(t, "/admin/codes/invite", url.Values{
		"csrf_token": {token},
		"email":      {"not-an-email"},
		"code":       {testCode},
	})
	resp = app.get(t, "/admin/codes")
	assertContains(t, resp.body, "A valid email address is required.")

	app.postForm(t, "/admin/codes/invite", url.Values{
		"csrf_token": {token},
		"email":      {"friend@example.com"},
		"code":       {"NOPE000000"},
	})
	resp = app.get(t, "/admin/codes")
	assertContains(t, resp.body, "Only active, unused codes can be sent.")
}

func TestAdminBackupRoundTrip(t *testing.T) {
	source := newTestApp(t)
	source.addMember(t, "Backed Up", "backup@example.com", "")
	if _, err := source.codes.CreateCode(testCode, testAdminUser, 0); err != nil {
		t.Fatalf("CreateCode() error = %v", err)
	}
	source.login(t)

	resp := source.get(t, "/admin/backup/export")
	if resp.status != http.StatusOK {
		t.Fatalf("export = %d", resp.status)
	}
	if cd := resp.header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment; filename=memberdir_backup_") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var backup service.BackupData
	if err := json.Unmarshal([]byte(resp.body), &backup); err != nil {
		t.Fatalf("export is not JSON: %v", err)
	}
	if len(backup.Members) != 1 || len(backup.Codes) != 1 {
		t.Fatalf("backup has %d members and %d codes, want 1 and 1", len(backup.Members), len(backup.Codes))
	}

	target := newTestApp(t)
	token := target.login(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("csrf_token", token)
	fw, err := mw.CreateFormFile("backup_file", "backup.json")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write([]byte(resp.body))
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, target.server.URL+"/admin/backup/import", &buf)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp = target.do(t, req)
	if resp.status != http.StatusSeeOther || resp.location != "/admin/backup" {
		t.Fatalf("import = %d %q", resp.status, resp.location)
	}

	resp = target.get(t, "/admin/backup")
	// The source admin already exists in the target and is skipped.
	assertContains(t, resp.body, "Imported 1 members, 1 codes and 0 admins (1 skipped).")

	if _, err := target.members.GetByEmail("backup@example.com"); err != nil {
		t.Errorf("imported member missing: %v", err)
	}
	if _, err := target.codes.Get(testCode); err != nil {
		t.Errorf("imported code missing: %v", err)
	}
}
