package service

import (
	"context"
	"errors"
	"log"

	"memberdir/internal/metrics"
	"memberdir/internal/models"
)

// ErrCodeMismatch is returned when the submitted hidden code differs from the validated one
var ErrCodeMismatch = errors.New("registration code does not match")

// RegistrationState is a step of the public registration workflow
type RegistrationState int

const (
	StateCodeEntry RegistrationState = iota
	StateCodeValidated
	StateFormSubmitted
	StatePersisted
	StateFailed
)

func (s RegistrationState) String() string {
	switch s {
	case StateCodeEntry:
		return "code_entry"
	case StateCodeValidated:
		return "code_validated"
	case StateFormSubmitted:
		return "form_submitted"
	case StatePersisted:
		return "persisted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RegistrationResult is what the workflow hands back to the page
type RegistrationResult struct {
	State RegistrationState

	// Code is the validated code to echo back in the form's hidden field
	Code string

	Member *models.Member
	Err    error

	// Warning is set when the member was stored but the code could not be consumed
	Warning string
}

// RegistrationService runs the code-gated public registration
type RegistrationService struct {
	codes   *CodeService
	members *MemberService
	email   *EmailService
	metrics *metrics.Metrics
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(codes *CodeService, members *MemberService, email *EmailService, m *metrics.Metrics) *RegistrationService {
	return &RegistrationService{codes: codes, members: members, email: email, metrics: m}
}

// Begin handles a code arriving on the registration page
func (s *RegistrationService) Begin(code string) RegistrationResult {
	code = NormalizeCode(code)
	if code == "" {
		return RegistrationResult{State: StateCodeEntry}
	}
	if _, err := s.codes.Validate(code); err != nil {
		s.metrics.ObserveRegistration(metrics.RegistrationBadCode)
		return RegistrationResult{State: StateCodeEntry, Err: ErrInvalidCode}
	}
	return RegistrationResult{State: StateCodeValidated, Code: code}
}

// Submit processes a posted registration form.
// validatedCode is the code the form was issued for; submittedCode is the
// hidden field that came back with it.
func (s *RegistrationService) Submit(ctx context.Context, validatedCode, submittedCode string, app *Application) RegistrationResult {
	validatedCode = NormalizeCode(validatedCode)
	if _, err := s.codes.Validate(validatedCode); err != nil {
		s.metrics.ObserveRegistration(metrics.RegistrationBadCode)
		return RegistrationResult{State: StateCodeEntry, Err: ErrInvalidCode}
	}

	if NormalizeCode(submittedCode) != validatedCode {
		log.Printf("Registration rejected: submitted code does not match validated code")
		return s.failed(validatedCode, ErrCodeMismatch)
	}

	result := RegistrationResult{State: StateFormSubmitted, Code: validatedCode}

	if err := app.Validate(); err != nil {
		return s.failed(result.Code, err)
	}
	if taken, err := s.members.EmailTaken(app.Email); err != nil {
		return s.failed(result.Code, err)
	} else if taken {
		return s.failed(result.Code, ErrEmailTaken)
	}

	// The code may have been consumed since the form was loaded.
	if _, err := s.codes.Validate(validatedCode); err != nil {
		s.metrics.ObserveRegistration(metrics.RegistrationBadCode)
		return RegistrationResult{State: StateCodeEntry, Err: ErrInvalidCode}
	}

	member, err := s.members.CreateFromApplication(ctx, app, models.StatusPending, "")
	if err != nil {
		return s.failed(result.Code, err)
	}

	result.State = StatePersisted
	result.Member = member
	if err := s.codes.MarkUsed(validatedCode, member.ID); err != nil {
		log.Printf("CRITICAL: member %d registered but code could not be marked used: %v", member.ID, err)
		result.Warning = "Your registration was saved, but the registration code could not be closed. An administrator has been notified."
	}
	s.metrics.ObserveRegistration(metrics.RegistrationPersisted)

	if s.email != nil {
		if err := s.email.SendRegistrationReceivedEmail(ctx, member.Email, member.Name); err != nil {
			log.Printf("Failed to send registration confirmation to member %d: %v", member.ID, err)
		}
	}

	return result
}

func (s *RegistrationService) failed(code string, err error) RegistrationResult {
	s.metrics.ObserveRegistration(metrics.RegistrationFailed)
	return RegistrationResult{State: StateFailed, Code: code, Err: err}
}
