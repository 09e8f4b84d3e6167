package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"memberdir/internal/credentials"
	"memberdir/internal/database"
	"memberdir/internal/metrics"
	"memberdir/internal/models"
	"memberdir/internal/repository"
	"memberdir/internal/store"
)

var (
	// ErrInvalidCode covers absent, inactive, used and expired codes alike
	ErrInvalidCode     = errors.New("invalid or expired registration code")
	ErrCodeAlreadyUsed = errors.New("registration code already used")
	ErrCodeNotFound    = errors.New("registration code not found")
	ErrCodeExists      = errors.New("registration code already exists")
)

const maxGenerateAttempts = 10

// CodeService issues, validates and consumes registration codes
type CodeService struct {
	store         *store.Store
	defaultExpiry time.Duration
	metrics       *metrics.Metrics

	generate func() (string, error)
	now      func() time.Time
}

// NewCodeService creates a new code service. defaultExpiry applies when the
// admin form leaves the expiry blank.
func NewCodeService(st *store.Store, defaultExpiry time.Duration, m *metrics.Metrics) *CodeService {
	return &CodeService{
		store:         st,
		defaultExpiry: defaultExpiry,
		metrics:       m,
		generate:      func() (string, error) { return credentials.GenerateCode(credentials.CodeLength) },
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// DefaultExpiry returns the expiry used when none is given
func (s *CodeService) DefaultExpiry() time.Duration {
	return s.defaultExpiry
}

// NormalizeCode trims and upper-cases user input
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Generate returns a fresh code that is not yet stored
func (s *CodeService) Generate() (string, error) {
	var code string
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		code, err = s.unusedCode(repository.NewCodeRepository(q))
		return err
	})
	return code, err
}

func (s *CodeService) unusedCode(repo *repository.CodeRepository) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		existing, err := repo.Get(code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique code after %d attempts", maxGenerateAttempts)
}

// Create generates and stores a new active code. expiresIn <= 0 means the code never expires.
func (s *CodeService) Create(createdBy string, expiresIn time.Duration) (*models.RegistrationCode, error) {
	var created *models.RegistrationCode
	err := s.store.Write(func(q database.DBTX) error {
		repo := repository.NewCodeRepository(q)
		code, err := s.unusedCode(repo)
		if err != nil {
			return err
		}
		created = s.newCode(code, createdBy, expiresIn)
		return repo.Insert(created)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registration code: %w", err)
	}

	s.metrics.IncrementCodesGenerated()
	log.Printf("Registration code created by %s", createdBy)
	return created, nil
}

// CreateCode stores a caller-chosen code, e.g. one restored from a backup or printed in advance
func (s *CodeService) CreateCode(code, createdBy string, expiresIn time.Duration) (*models.RegistrationCode, error) {
	code = NormalizeCode(code)
	if !credentials.IsWellFormed(code) {
		return nil, ErrInvalidCode
	}

	created := s.newCode(code, createdBy, expiresIn)
	err := s.store.Write(func(q database.DBTX) error {
		return repository.NewCodeRepository(q).Insert(created)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCodeExists
		}
		return nil, fmt.Errorf("failed to create registration code: %w", err)
	}

	s.metrics.IncrementCodesGenerated()
	return created, nil
}

func (s *CodeService) newCode(code, createdBy string, expiresIn time.Duration) *models.RegistrationCode {
	now := s.now()
	c := &models.RegistrationCode{
		Code:      code,
		CreatedBy: createdBy,
		CreatedAt: now,
		Active:    true,
	}
	if expiresIn > 0 {
		expires := now.Add(expiresIn)
		c.ExpiresAt = &expires
	}
	return c
}

// Validate returns the code if it can gate a registration. It never changes
// stored state and reports every failure as ErrInvalidCode.
func (s *CodeService) Validate(code string) (*models.RegistrationCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	var found *models.RegistrationCode
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		found, err = repository.NewCodeRepository(q).Get(code)
		return err
	})
	if err != nil {
		log.Printf("Failed to look up registration code: %v", err)
		return nil, ErrInvalidCode
	}
	if found == nil || !found.IsValid(s.now()) {
		return nil, ErrInvalidCode
	}
	return found, nil
}

// MarkUsed consumes the code for memberID. Of several concurrent callers
// exactly one succeeds; the rest get ErrCodeAlreadyUsed.
func (s *CodeService) MarkUsed(code string, memberID int64) error {
	code = NormalizeCode(code)
	err := s.store.Write(func(q database.DBTX) error {
		repo := repository.NewCodeRepository(q)
		won, err := repo.MarkUsed(code, memberID, s.now())
		if err != nil {
			return err
		}
		if won {
			return nil
		}
		existing, err := repo.Get(code)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrCodeNotFound
		}
		return ErrCodeAlreadyUsed
	})
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) || errors.Is(err, ErrCodeAlreadyUsed) {
			return err
		}
		return fmt.Errorf("failed to mark code used: %w", err)
	}

	s.metrics.IncrementCodesUsed()
	return nil
}

// Deactivate switches a code off. Unknown and already inactive codes report ErrCodeNotFound.
func (s *CodeService) Deactivate(code string) error {
	return s.mutate(NormalizeCode(code), func(repo *repository.CodeRepository, code string) (bool, error) {
		return repo.Deactivate(code)
	})
}

// Delete removes a code
func (s *CodeService) Delete(code string) error {
	return s.mutate(NormalizeCode(code), func(repo *repository.CodeRepository, code string) (bool, error) {
		return repo.Delete(code)
	})
}

func (s *CodeService) mutate(code string, fn func(*repository.CodeRepository, string) (bool, error)) error {
	err := s.store.Write(func(q database.DBTX) error {
		ok, err := fn(repository.NewCodeRepository(q), code)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCodeNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrCodeNotFound) {
		return fmt.Errorf("failed to update registration code: %w", err)
	}
	return err
}

// List returns all codes, newest first
func (s *CodeService) List() ([]*models.RegistrationCode, error) {
	var codes []*models.RegistrationCode
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		codes, err = repository.NewCodeRepository(q).List()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list registration codes: %w", err)
	}
	return codes, nil
}

// Get returns one code regardless of its state
func (s *CodeService) Get(code string) (*models.RegistrationCode, error) {
	var found *models.RegistrationCode
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		found, err = repository.NewCodeRepository(q).Get(NormalizeCode(code))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get registration code: %w", err)
	}
	if found == nil {
		return nil, ErrCodeNotFound
	}
	return found, nil
}
