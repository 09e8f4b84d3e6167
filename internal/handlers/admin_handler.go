package handlers

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"memberdir/internal/models"
	"memberdir/internal/security"
	"memberdir/internal/service"
	"memberdir/internal/validation"
)

// AdminHandler handles admin-specific routes
type AdminHandler struct {
	templates     *template.Template
	memberService *service.MemberService
	codeService   *service.CodeService
	emailService  *service.EmailService
	backupService *service.BackupService
	invites       *security.InviteSigner
	middleware    *Middleware
	sessions      *SessionStore
	appBaseURL    string
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(templates *template.Template, memberService *service.MemberService, codeService *service.CodeService, emailService *service.EmailService, backupService *service.BackupService, invites *security.InviteSigner, middleware *Middleware, sessions *SessionStore, appBaseURL string) *AdminHandler {
	return &AdminHandler{
		templates:     templates,
		memberService: memberService,
		codeService:   codeService,
		emailService:  emailService,
		backupService: backupService,
		invites:       invites,
		middleware:    middleware,
		sessions:      sessions,
		appBaseURL:    appBaseURL,
	}
}

// ShowAdminDashboard lists every member with counts of pending members and active codes
func (h *AdminHandler) ShowAdminDashboard(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	members, err := h.memberService.List()
	if err != nil {
		log.Printf("Error listing members: %v", err)
	}
	codes, err := h.codeService.List()
	if err != nil {
		log.Printf("Error listing codes: %v", err)
	}

	pending := 0
	for _, m := range members {
		if m.IsPending() {
			pending++
		}
	}
	now := time.Now()
	active := 0
	for _, c := range codes {
		if c.IsValid(now) {
			active++
		}
	}

	data := AdminDashboardViewData{
		Title:        "Admin Dashboard",
		Admin:        admin,
		Members:      members,
		PendingCount: pending,
		ActiveCodes:  active,
		CSRFToken:    h.middleware.csrfToken(r),
		Flashes:      h.sessions.Flashes(w, r),
	}
	if err := h.templates.ExecuteTemplate(w, "admin_dashboard.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerErrorUC, "Error rendering admin dashboard", err)
	}
}

// ShowAddMember renders the empty add-member form
func (h *AdminHandler) ShowAddMember(w http.ResponseWriter, r *http.Request) {
	h.renderMemberForm(w, r, AdminMemberFormViewData{
		Title:  "Add Member",
		Action: "/admin/members/add",
		Form:   &service.Application{},
	})
}

// AddMember creates an active member from the admin form
func (h *AdminHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	form, err := parseMemberForm(r, false)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidFormData, "Error parsing add member form", err)
		return
	}
	defer form.Close()

	member, err := h.memberService.AddMember(r.Context(), form.App, form.Password)
	if err != nil {
		msg, ok := memberFormError(err)
		if !ok {
			respondWithError(w, http.StatusInternalServerError, "Failed to add member", "Error adding member", err)
			return
		}
		h.renderMemberForm(w, r, AdminMemberFormViewData{
			Title:  "Add Member",
			Action: "/admin/members/add",
			Form:   form.App,
			Error:  msg,
		})
		return
	}

	log.Printf("Member %d added by admin %s", member.ID, admin.Username)
	h.sessions.AddFlash(w, r, FlashSuccess, fmt.Sprintf("Member %s added.", member.Name))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// ShowEditMember renders the edit form filled with the member's data
func (h *AdminHandler) ShowEditMember(w http.ResponseWriter, r *http.Request) {
	member, ok := h.memberFromQuery(w, r)
	if !ok {
		return
	}
	h.renderMemberForm(w, r, AdminMemberFormViewData{
		Title:  "Edit Member",
		Action: "/admin/members/edit?id=" + strconv.FormatInt(member.ID, 10),
		Member: member,
		Form:   applicationFromMember(member),
	})
}

// EditMember applies the edit form. A blank password keeps the current one.
func (h *AdminHandler) EditMember(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	member, ok := h.memberFromQuery(w, r)
	if !ok {
		return
	}

	form, err := parseMemberForm(r, true)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidFormData, "Error parsing edit member form", err)
		return
	}
	defer form.Close()

	updated, err := h.memberService.Edit(r.Context(), member.ID, form.App, form.Password)
	if err != nil {
		msg, ok := memberFormError(err)
		if !ok {
			respondWithError(w, http.StatusInternalServerError, "Failed to update member", "Error updating member", err)
			return
		}
		h.renderMemberForm(w, r, AdminMemberFormViewData{
			Title:  "Edit Member",
			Action: "/admin/members/edit?id=" + strconv.FormatInt(member.ID, 10),
			Member: member,
			Form:   form.App,
			Error:  msg,
		})
		return
	}

	log.Printf("Member %d updated by admin %s", updated.ID, admin.Username)
	h.sessions.AddFlash(w, r, FlashSuccess, fmt.Sprintf("Member %s updated.", updated.Name))
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// DeleteMember removes a member with family, business and images
func (h *AdminHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		respondMemberNotFound(w)
		return
	}

	if err := h.memberService.Delete(r.Context(), id); err != nil {
		respondWithMemberError(w, "Failed to delete member", "Error deleting member", err)
		return
	}

	log.Printf("Member %d deleted by admin %s", id, admin.Username)
	h.sessions.AddFlash(w, r, FlashSuccess, "Member deleted.")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// ShowPending lists members waiting for approval
func (h *AdminHandler) ShowPending(w http.ResponseWriter, r *http.Request) {
	members, err := h.memberService.ListByStatus(models.StatusPending)
	if err != nil {
		log.Printf("Error listing pending members: %v", err)
	}

	data := AdminPendingViewData{
		Title:     "Pending Members",
		Admin:     GetAdminFromContext(r.Context()),
		Members:   members,
		CSRFToken: h.middleware.csrfToken(r),
		Flashes:   h.sessions.Flashes(w, r),
	}
	if err := h.templates.ExecuteTemplate(w, "admin_pending.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerErrorUC, "Error rendering pending members", err)
	}
}

// ApprovePending publishes a pending member and notifies them by e-mail
func (h *AdminHandler) ApprovePending(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		respondMemberNotFound(w)
		return
	}

	switch err := h.memberService.Approve(id); {
	case errors.Is(err, service.ErrMemberNotFound):
		respondMemberNotFound(w)
		return
	case errors.Is(err, service.ErrNotPending):
		h.sessions.AddFlash(w, r, FlashError, "That member is not pending approval.")
		http.Redirect(w, r, "/admin/pending", http.StatusSeeOther)
		return
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, "Failed to approve member", "Error approving member", err)
		return
	}

	log.Printf("Member %d approved by admin %s", id, admin.Username)
	if member, err := h.memberService.Get(id); err == nil && h.emailService != nil {
		if err := h.emailService.SendMemberApprovedEmail(r.Context(), member.Email, member.Name, member.ID); err != nil {
			log.Printf("Failed to send approval email to member %d: %v", id, err)
		}
	}

	h.sessions.AddFlash(w, r, FlashSuccess, "Member approved.")
	http.Redirect(w, r, "/admin/pending", http.StatusSeeOther)
}

// RejectPending deletes a pending member
func (h *AdminHandler) RejectPending(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	id, err := parseIDParam(r)
	if err != nil {
		respondMemberNotFound(w)
		return
	}

	member, err := h.memberService.Reject(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrMemberNotFound):
		respondMemberNotFound(w)
		return
	case errors.Is(err, service.ErrNotPending):
		h.sessions.AddFlash(w, r, FlashError, "That member is not pending approval.")
		http.Redirect(w, r, "/admin/pending", http.StatusSeeOther)
		return
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, "Failed to reject member", "Error rejecting member", err)
		return
	}

	log.Printf("Pending member %d rejected by admin %s", id, admin.Username)
	h.sessions.AddFlash(w, r, FlashSuccess, fmt.Sprintf("Registration from %s rejected.", member.Name))
	http.Redirect(w, r, "/admin/pending", http.StatusSeeOther)
}

// ShowCodes lists registration codes with their state
func (h *AdminHandler) ShowCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.codeService.List()
	if err != nil {
		log.Printf("Error listing codes: %v", err)
	}

	now := time.Now()
	views := make([]CodeView, 0, len(codes))
	for _, c := range codes {
		views = append(views, CodeView{RegistrationCode: c, Status: c.StatusLabel(now)})
	}

	data := AdminCodesViewData{
		Title:             "Registration Codes",
		Admin:             GetAdminFromContext(r.Context()),
		Codes:             views,
		DefaultExpiryDays: int(h.codeService.DefaultExpiry() / (24 * time.Hour)),
		EmailEnabled:      h.emailService != nil && h.emailService.IsEnabled(),
		CSRFToken:         h.middleware.csrfToken(r),
		Flashes:           h.sessions.Flashes(w, r),
	}
	if err := h.templates.ExecuteTemplate(w, "admin_codes.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerErrorUC, "Error rendering registration codes", err)
	}
}

// PostCodes generates a code, or deactivates / deletes the one named by ?deactivate= or ?delete=
func (h *AdminHandler) PostCodes(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())
	query := r.URL.Query()

	switch {
	case query.Get("deactivate") != "":
		code := query.Get("deactivate")
		if err := h.codeService.Deactivate(code); err != nil {
			h.codeActionFailed(w, r, "deactivate", err)
			return
		}
		log.Printf("Registration code deactivated by admin %s", admin.Username)
		h.sessions.AddFlash(w, r, FlashSuccess, fmt.Sprintf("Code %s deactivated.", service.NormalizeCode(code)))

	case query.Get("delete") != "":
		code := query.Get("delete")
		if err := h.codeService.Delete(code); err != nil {
			h.codeActionFailed(w, r, "delete", err)
			return
		}
		log.Printf("Registration code deleted by admin %s", admin.Username)
		h.sessions.AddFlash(w, r, FlashSuccess, fmt.Sprintf("Code %s deleted.", service.NormalizeCode(code)))

	default:
		if err := r.ParseForm(); err != nil {
			http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
			return
		}
		expiry := h.codeService.DefaultExpiry()
		if days := strings.TrimSpace(r.FormValue("expires_days")); days != "" {
			n, err := strconv.Atoi(days)
			if err != nil || n < 0 || n > MaxCodeExpiryDays {
				h.sessions.AddFlash(w, r, FlashError, fmt.Sprintf("Expiry must be a whole number of days up to %d (0 for never).", MaxCodeExpiryDays))
				http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
				return
			}
			expiry = time.Duration(n) * 24 * time.Hour
		}

		code, err := h.codeService.Create(admin.Username, expiry)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to generate registration code", "Error generating code", err)
			return
		}
		h.sessions.AddFlash(w, r, FlashSuccess, fmt.Sprintf("Code %s generated.", code.Code))
	}

	http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
}

func (h *AdminHandler) codeActionFailed(w http.ResponseWriter, r *http.Request, action string, err error) {
	if errors.Is(err, service.ErrCodeNotFound) {
		h.sessions.AddFlash(w, r, FlashError, fmt.Sprintf("Could not %s code: not found or already inactive.", action))
		http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
		return
	}
	respondWithError(w, http.StatusInternalServerError, "Failed to update registration code", "Error updating code", err)
}

// InviteCode e-mails a signed registration link for an existing valid code
func (h *AdminHandler) InviteCode(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, ErrInvalidFormData, http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	if err := validation.ValidateEmail(email); err != nil {
		h.sessions.AddFlash(w, r, FlashError, "A valid email address is required.")
		http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
		return
	}

	code, err := h.codeService.Validate(r.FormValue("code"))
	if err != nil {
		h.sessions.AddFlash(w, r, FlashError, "Only active, unused codes can be sent.")
		http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
		return
	}

	var expiresAt time.Time
	if code.ExpiresAt != nil {
		expiresAt = *code.ExpiresAt
	}
	token, err := h.invites.Sign(code.Code, expiresAt)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create invitation", "Error signing invitation", err)
		return
	}
	link := strings.TrimRight(h.appBaseURL, "/") + "/register/invite?" + url.Values{"token": {token}}.Encode()

	if h.emailService == nil || !h.emailService.IsEnabled() {
		h.sessions.AddFlash(w, r, FlashWarning, "Email is not configured. Share this link instead: "+link)
		http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
		return
	}

	if err := h.emailService.SendInvitationEmail(r.Context(), email, link, code.ExpiresAt); err != nil {
		log.Printf("Failed to send invitation email: %v", err)
		h.sessions.AddFlash(w, r, FlashError, "The invitation email could not be sent. Share this link instead: "+link)
		http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
		return
	}

	log.Printf("Invitation for code %s sent to %s by admin %s", code.Code, email, admin.Username)
	h.sessions.AddFlash(w, r, FlashSuccess, "Invitation sent to "+email+".")
	http.Redirect(w, r, "/admin/codes", http.StatusSeeOther)
}

// ShowBackup renders the backup and restore page
func (h *AdminHandler) ShowBackup(w http.ResponseWriter, r *http.Request) {
	data := AdminBackupViewData{
		Title:     "Backup",
		Admin:     GetAdminFromContext(r.Context()),
		CSRFToken: h.middleware.csrfToken(r),
		Flashes:   h.sessions.Flashes(w, r),
	}
	if err := h.templates.ExecuteTemplate(w, "admin_backup.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerErrorUC, "Error rendering backup page", err)
	}
}

// ExportDatabase exports the database to JSON for download
func (h *AdminHandler) ExportDatabase(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("memberdir_backup_%s.json", timestamp)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := h.backupService.ExportToWriter(w); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to export database", "Error exporting database", err)
		return
	}

	log.Printf("Database exported by admin %s", admin.Username)
}

// ImportDatabase restores records from an uploaded backup file
func (h *AdminHandler) ImportDatabase(w http.ResponseWriter, r *http.Request) {
	admin := GetAdminFromContext(r.Context())

	// Parse multipart form (10MB max)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("backup_file")
	if err != nil {
		h.sessions.AddFlash(w, r, FlashError, "Please select a backup file.")
		http.Redirect(w, r, "/admin/backup", http.StatusSeeOther)
		return
	}
	defer file.Close()

	stats, err := h.backupService.ImportFromReader(file)
	if err != nil {
		log.Printf("Error importing database: %v", err)
		h.sessions.AddFlash(w, r, FlashError, "Failed to import backup: "+err.Error())
		http.Redirect(w, r, "/admin/backup", http.StatusSeeOther)
		return
	}

	log.Printf("Database imported by admin %s", admin.Username)
	h.sessions.AddFlash(w, r, FlashSuccess, fmt.Sprintf("Imported %d members, %d codes and %d admins (%d skipped).",
		stats.Members, stats.Codes, stats.Admins, stats.Skipped))
	http.Redirect(w, r, "/admin/backup", http.StatusSeeOther)
}

func (h *AdminHandler) renderMemberForm(w http.ResponseWriter, r *http.Request, data AdminMemberFormViewData) {
	data.Admin = GetAdminFromContext(r.Context())
	data.CSRFToken = h.middleware.csrfToken(r)
	if err := h.templates.ExecuteTemplate(w, "admin_member_form.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerErrorUC, "Error rendering member form", err)
	}
}

// memberFromQuery loads the member named by ?id=, writing a 404 when absent
func (h *AdminHandler) memberFromQuery(w http.ResponseWriter, r *http.Request) (*models.Member, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		respondMemberNotFound(w)
		return nil, false
	}
	member, err := h.memberService.Get(id)
	if err != nil {
		respondWithMemberError(w, "Failed to load member", "Error fetching member", err)
		return nil, false
	}
	return member, true
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
}

// memberFormError returns the message to show on the form, or false for unexpected errors
func memberFormError(err error) (string, bool) {
	var ve validation.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message, true
	case errors.Is(err, service.ErrEmailTaken):
		return "That email address is already registered.", true
	case errors.Is(err, service.ErrInvalidImage):
		return "An image on the form does not belong to this member.", true
	case errors.Is(err, service.ErrMemberNotFound):
		return ErrMemberNotFound, true
	default:
		return "", false
	}
}

// applicationFromMember fills the edit form with the stored member
func applicationFromMember(m *models.Member) *service.Application {
	app := &service.Application{
		Name:        m.Name,
		Email:       m.Email,
		Contact:     m.Contact,
		Address:     m.Address,
		Bio:         m.Bio,
		DateOfBirth: m.DateOfBirth,
	}
	for _, f := range m.Family {
		app.Family = append(app.Family, service.FamilyEntry{
			Name:          f.Name,
			Relation:      f.Relation,
			DateOfBirth:   f.DateOfBirth,
			Education:     f.Education,
			ExistingImage: f.Image,
		})
	}
	if b := m.Business; b != nil {
		app.Business = service.BusinessEntry{
			Name:         b.Name,
			Description:  b.Description,
			Website:      b.Website,
			Contact:      b.Contact,
			Address:      b.Address,
			ExistingLogo: b.Logo,
		}
	}
	return app
}
