package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/metrics"
	"memberdir/internal/models"
	"memberdir/internal/repository"
	"memberdir/internal/security"
	"memberdir/internal/store"
	"memberdir/internal/validation"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// AuthService handles admin authentication
type AuthService struct {
	store           *store.Store
	sessionDuration time.Duration
	metrics         *metrics.Metrics
}

// NewAuthService creates a new auth service
func NewAuthService(st *store.Store, sessionDuration time.Duration, m *metrics.Metrics) *AuthService {
	return &AuthService{
		store:           st,
		sessionDuration: sessionDuration,
		metrics:         m,
	}
}

// CreateAdmin adds an admin account. Usernames are unique regardless of case.
func (s *AuthService) CreateAdmin(username, password string) (*models.Admin, error) {
	username = strings.TrimSpace(username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var admin *models.Admin
	err = s.store.Write(func(q database.DBTX) error {
		repo := repository.NewAdminRepository(q)
		existing, err := repo.GetByUsername(username)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrUsernameTaken
		}
		admin, err = repo.CreateAdmin(username, passwordHash)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	return admin, nil
}

// EnsureBootstrapAdmin creates the first admin from configuration when no admin exists yet.
// It reports whether an account was created.
func (s *AuthService) EnsureBootstrapAdmin(username, password string) (bool, error) {
	var count int
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		count, err = repository.NewAdminRepository(q).Count()
		return err
	})
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if username == "" || password == "" {
		log.Println("Warning: no admin accounts exist and ADMIN_USERNAME/ADMIN_PASSWORD are not set")
		return false, nil
	}

	if _, err := s.CreateAdmin(username, password); err != nil {
		return false, err
	}
	log.Printf("Bootstrap admin %q created", username)
	return true, nil
}

// Login authenticates an admin and creates a session
func (s *AuthService) Login(username, password string) (*models.Session, *models.Admin, error) {
	admin, err := s.getByUsername(strings.TrimSpace(username))
	if err != nil {
		return nil, nil, err
	}
	if admin == nil || !security.CheckPassword(password, admin.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.createSession(admin.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, admin, nil
}

// OAuthLogin signs in the admin whose username is the verified provider e-mail.
// No account is created; unknown addresses get ErrInvalidCredentials.
func (s *AuthService) OAuthLogin(email string) (*models.Session, *models.Admin, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	admin, err := s.getByUsername(strings.TrimSpace(email))
	if err != nil {
		return nil, nil, err
	}
	if admin == nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.createSession(admin.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, admin, nil
}

func (s *AuthService) getByUsername(username string) (*models.Admin, error) {
	var admin *models.Admin
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		admin, err = repository.NewAdminRepository(q).GetByUsername(username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return admin, nil
}

func (s *AuthService) createSession(adminID int64) (*models.Session, error) {
	sessionID := security.GenerateSessionID()
	expiresAt := time.Now().Add(s.sessionDuration)

	var session *models.Session
	err := s.store.Write(func(q database.DBTX) error {
		var err error
		session, err = repository.NewAdminRepository(q).CreateSession(sessionID, adminID, expiresAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ValidateSession checks if a session is valid and returns the associated admin
func (s *AuthService) ValidateSession(sessionID string) (*models.Admin, error) {
	var (
		session *models.Session
		admin   *models.Admin
	)
	err := s.store.Read(func(q database.DBTX) error {
		repo := repository.NewAdminRepository(q)
		var err error
		session, err = repo.GetSession(sessionID)
		if err != nil || session == nil || session.IsExpired() {
			return err
		}
		admin, err = repo.GetByID(session.AdminID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired() {
		// Clean up expired session
		_ = s.Logout(sessionID)
		return nil, ErrSessionExpired
	}
	if admin == nil {
		return nil, ErrSessionNotFound
	}
	return admin, nil
}

// Logout invalidates a session
func (s *AuthService) Logout(sessionID string) error {
	err := s.store.Write(func(q database.DBTX) error {
		return repository.NewAdminRepository(q).DeleteSession(sessionID)
	})
	if err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// CleanupExpiredSessions removes expired sessions from the database
func (s *AuthService) CleanupExpiredSessions() (int64, error) {
	var removed int64
	err := s.store.Write(func(q database.DBTX) error {
		var err error
		removed, err = repository.NewAdminRepository(q).DeleteExpiredSessions(time.Now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup sessions: %w", err)
	}
	s.metrics.AddSessionsExpired(removed)
	return removed, nil
}

// ListAdmins returns all admin accounts
func (s *AuthService) ListAdmins() ([]models.Admin, error) {
	var admins []models.Admin
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		admins, err = repository.NewAdminRepository(q).List()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return admins, nil
}
