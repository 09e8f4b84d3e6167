package handlers

import (
	"errors"
	"html/template"
	"log"
	"net/http"
	"net/url"

	"memberdir/internal/security"
	"memberdir/internal/service"
	"memberdir/internal/validation"
)

// RegisterHandler runs the code-gated public registration pages
type RegisterHandler struct {
	registrationService *service.RegistrationService
	invites             *security.InviteSigner
	sessions            *SessionStore
	templates           *template.Template
}

// NewRegisterHandler creates a new register handler
func NewRegisterHandler(registrationService *service.RegistrationService, invites *security.InviteSigner, sessions *SessionStore, templates *template.Template) *RegisterHandler {
	return &RegisterHandler{
		registrationService: registrationService,
		invites:             invites,
		sessions:            sessions,
		templates:           templates,
	}
}

// ShowRegister renders the code entry step, or the form once ?code= validates
func (h *RegisterHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		h.render(w, RegisterViewData{CodeEntry: true})
		return
	}

	result := h.registrationService.Begin(code)
	if result.State != service.StateCodeValidated {
		h.sessions.ClearValidatedCode(w, r)
		h.render(w, RegisterViewData{CodeEntry: true, Error: ErrInvalidCodeMessage})
		return
	}

	h.sessions.SetValidatedCode(w, r, result.Code)
	h.render(w, RegisterViewData{Code: result.Code, Form: &service.Application{}})
}

// Register handles the registration form submission
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	form, err := parseMemberForm(r, false)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidFormData, "Error parsing registration form", err)
		return
	}
	defer form.Close()

	validated := h.sessions.ValidatedCode(r)
	result := h.registrationService.Submit(r.Context(), validated, form.Code, form.App)

	switch result.State {
	case service.StatePersisted:
		h.sessions.ClearValidatedCode(w, r)
		if result.Warning != "" {
			h.sessions.AddFlash(w, r, FlashWarning, result.Warning)
		}
		http.Redirect(w, r, "/register/success", http.StatusSeeOther)

	case service.StateCodeEntry:
		h.sessions.ClearValidatedCode(w, r)
		h.render(w, RegisterViewData{CodeEntry: true, Error: ErrInvalidCodeMessage})

	default:
		if errors.Is(result.Err, service.ErrCodeMismatch) {
			h.sessions.ClearValidatedCode(w, r)
			h.render(w, RegisterViewData{CodeEntry: true, Error: "The registration code did not match. Please enter it again."})
			return
		}
		h.render(w, RegisterViewData{
			Code:  result.Code,
			Form:  form.App,
			Error: registrationErrorMessage(result.Err),
		})
	}
}

// Invite turns a signed invitation link into the ?code= step
func (h *RegisterHandler) Invite(w http.ResponseWriter, r *http.Request) {
	code, err := h.invites.Verify(r.URL.Query().Get("token"))
	if err != nil {
		h.render(w, RegisterViewData{CodeEntry: true, Error: "This invitation link is invalid or has expired."})
		return
	}
	http.Redirect(w, r, "/register?"+url.Values{"code": {code}}.Encode(), http.StatusSeeOther)
}

// Success renders the page shown after a registration was stored
func (h *RegisterHandler) Success(w http.ResponseWriter, r *http.Request) {
	data := RegisterSuccessViewData{
		Title:   "Registration received",
		Flashes: h.sessions.Flashes(w, r),
	}
	if err := h.templates.ExecuteTemplate(w, "register_success.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error rendering register success template", err)
	}
}

func (h *RegisterHandler) render(w http.ResponseWriter, data RegisterViewData) {
	data.Title = "Register"
	if err := h.templates.ExecuteTemplate(w, "register.tmpl", data); err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error rendering register template", err)
	}
}

// registrationErrorMessage maps workflow errors to what the visitor may see
func registrationErrorMessage(err error) string {
	var ve validation.ValidationError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, service.ErrEmailTaken):
		return "That email address is already registered."
	case errors.Is(err, service.ErrInvalidCode):
		return ErrInvalidCodeMessage
	default:
		log.Printf("Registration failed: %v", err)
		return "Registration failed. Please try again."
	}
}
