package service

import (
	"context"
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
	"memberdir/internal/uploads"
	"memberdir/internal/validation"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrNotPending     = errors.New("member is not pending approval")
	ErrInvalidImage   = errors.New("image does not belong to this member")
)

// MemberService handles member business logic
type MemberService struct {
	store   *store.Store
	images  *uploads.Storage
	metrics *metrics.Metrics

	// lastID is the highest id handed out by this instance.
	// Only read or written while holding the store's write lock.
	lastID int64
}

// NewMemberService creates a new member service
func NewMemberService(st *store.Store, images *uploads.Storage, m *metrics.Metrics) *MemberService {
	return &MemberService{store: st, images: images, metrics: m}
}

// List returns every member sorted by name
func (s *MemberService) List() ([]*models.Member, error) {
	return s.list()
}

// ListPublic returns the members shown in the public directory
func (s *MemberService) ListPublic() ([]*models.Member, error) {
	return s.list(models.StatusActive, models.StatusApproved)
}

// ListByStatus returns members in one status, e.g. the pending queue
func (s *MemberService) ListByStatus(status string) ([]*models.Member, error) {
	return s.list(status)
}

func (s *MemberService) list(statuses ...string) ([]*models.Member, error) {
	var members []*models.Member
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		members, err = repository.NewMemberRepository(q).List(statuses...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	models.SortMembers(members)
	return members, nil
}

// Get returns a member by ID
func (s *MemberService) Get(id int64) (*models.Member, error) {
	var member *models.Member
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		member, err = repository.NewMemberRepository(q).GetByID(id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// GetByEmail returns a member by email, ignoring case
func (s *MemberService) GetByEmail(email string) (*models.Member, error) {
	var member *models.Member
	err := s.store.Read(func(q database.DBTX) error {
		var err error
		member, err = repository.NewMemberRepository(q).GetByEmail(email)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// EmailTaken reports whether another member already uses email
func (s *MemberService) EmailTaken(email string) (bool, error) {
	_, err := s.GetByEmail(email)
	if errors.Is(err, ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create stores a new member and assigns its ID.
// IDs strictly increase and are never reused by this instance, even after the
// highest member is deleted.
func (s *MemberService) Create(m *models.Member) (*models.Member, error) {
	if m.Status == "" {
		m.Status = models.StatusActive
	}
	m.Email = normalizeEmail(m.Email)
	if err := validateCore(m.Name, m.Email, m.Contact, m.Address, m.DateOfBirth); err != nil {
		return nil, err
	}

	err := s.store.Write(func(q database.DBTX) error {
		repo := repository.NewMemberRepository(q)

		existing, err := repo.GetByEmail(m.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrEmailTaken
		}

		maxID, err := repo.MaxID()
		if err != nil {
			return err
		}
		id := max(maxID, s.lastID) + 1

		now := time.Now().UTC()
		m.ID = id
		m.CreatedAt = now
		m.UpdatedAt = now
		if err := repo.Insert(m); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrEmailTaken
			}
			return err
		}
		s.lastID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create member: %w", err)
	}

	s.metrics.IncrementMembersCreated()
	log.Printf("Member created: id=%d status=%s", m.ID, m.Status)
	return m, nil
}

// CreateFromApplication validates app, stores its images and creates the member.
// Every image written for the call is removed again if anything fails.
// A new member owns no stored images, so existing image keys are refused.
func (s *MemberService) CreateFromApplication(ctx context.Context, app *Application, status, passwordHash string) (*models.Member, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}
	if app.referencesStoredImages() {
		return nil, ErrInvalidImage
	}

	batch := s.images.NewBatch()
	member, err := s.createWithBatch(ctx, batch, app, status, passwordHash)
	if err != nil {
		if len(batch.Keys()) > 0 {
			s.metrics.IncrementUploadRollbacks()
		}
		batch.Rollback(ctx)
		return nil, err
	}
	return member, nil
}

func (s *MemberService) createWithBatch(ctx context.Context, batch *uploads.Batch, app *Application, status, passwordHash string) (*models.Member, error) {
	// Cheap duplicate check before any upload; Create re-checks under the lock.
	taken, err := s.EmailTaken(app.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	m := app.toMember()
	m.Status = status
	m.PasswordHash = passwordHash
	if err := saveImages(ctx, batch, app, m); err != nil {
		return nil, err
	}
	return s.Create(m)
}

// AddMember is the admin add-member operation: an application plus a required password.
// Members added by an admin are active immediately.
func (s *MemberService) AddMember(ctx context.Context, app *Application, password string) (*models.Member, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return s.CreateFromApplication(ctx, app, models.StatusActive, hash)
}

// Update merges patch into the member and bumps UpdatedAt.
// Images the member no longer references are deleted after the update commits.
func (s *MemberService) Update(ctx context.Context, id int64, patch *models.MemberPatch) (*models.Member, error) {
	if patch.Email != nil {
		normalized := normalizeEmail(*patch.Email)
		patch.Email = &normalized
	}

	var updated *models.Member
	var orphaned []string
	err := s.store.Write(func(q database.DBTX) error {
		repo := repository.NewMemberRepository(q)

		current, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrMemberNotFound
		}

		if patch.Email != nil && *patch.Email != current.Email {
			other, err := repo.GetByEmail(*patch.Email)
			if err != nil {
				return err
			}
			if other != nil && other.ID != id {
				return ErrEmailTaken
			}
		}

		before := current.ImageKeys()
		patch.Apply(current)
		if err := validateCore(current.Name, current.Email, current.Contact, current.Address, current.DateOfBirth); err != nil {
			return err
		}
		current.UpdatedAt = time.Now().UTC()
		if err := repo.Update(current); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrEmailTaken
			}
			return err
		}

		updated = current
		orphaned = missingKeys(before, current.ImageKeys())
		return nil
	})
	if err != nil {
		var ve validation.ValidationError
		if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrEmailTaken) || errors.As(err, &ve) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	if len(orphaned) > 0 {
		if err := s.images.DeleteAll(ctx, orphaned); err != nil {
			log.Printf("Member %d updated but old images were not all removed: %v", id, err)
		}
	}
	return updated, nil
}

// Edit is the admin edit operation. New images are uploaded first and rolled
// back if the update fails. Family rows may keep an image only if the member
// already owns it.
func (s *MemberService) Edit(ctx context.Context, id int64, app *Application, password string) (*models.Member, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}

	current, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool)
	for _, k := range current.ImageKeys() {
		owned[k] = true
	}
	for _, f := range app.Family {
		if f.ExistingImage != "" && !owned[f.ExistingImage] {
			return nil, ErrInvalidImage
		}
	}
	if app.Business.ExistingLogo != "" && !owned[app.Business.ExistingLogo] {
		return nil, ErrInvalidImage
	}

	next := app.toMember()
	next.ProfileImage = current.ProfileImage
	next.FamilyImage = current.FamilyImage

	batch := s.images.NewBatch()
	fail := func(err error) (*models.Member, error) {
		if len(batch.Keys()) > 0 {
			s.metrics.IncrementUploadRollbacks()
		}
		batch.Rollback(ctx)
		return nil, err
	}
	if err := saveImages(ctx, batch, app, next); err != nil {
		return fail(err)
	}

	family := next.Family
	patch := &models.MemberPatch{
		Name:         &next.Name,
		Email:        &next.Email,
		Contact:      &next.Contact,
		Address:      &next.Address,
		Bio:          &next.Bio,
		DateOfBirth:  &next.DateOfBirth,
		ProfileImage: &next.ProfileImage,
		FamilyImage:  &next.FamilyImage,
		Family:       &family,
	}
	if next.Business != nil {
		patch.Business = next.Business
	} else {
		patch.ClearBusiness = true
	}
	if password != "" {
		if err := validation.ValidatePassword(password); err != nil {
			return fail(err)
		}
		hash, err := security.HashPassword(password)
		if err != nil {
			return fail(fmt.Errorf("failed to hash password: %w", err))
		}
		patch.PasswordHash = &hash
	}

	updated, err := s.Update(ctx, id, patch)
	if err != nil {
		return fail(err)
	}
	return updated, nil
}

// Delete removes the member with its family and business records, then
// deletes its images. Image failures are logged and do not fail the call.
func (s *MemberService) Delete(ctx context.Context, id int64) error {
	_, err := s.delete(ctx, id, "")
	return err
}

// Approve moves a pending member into the public directory
func (s *MemberService) Approve(id int64) error {
	err := s.store.Write(func(q database.DBTX) error {
		repo := repository.NewMemberRepository(q)
		m, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMemberNotFound
		}
		if !m.IsPending() {
			return ErrNotPending
		}
		m.Status = models.StatusApproved
		m.UpdatedAt = time.Now().UTC()
		return repo.Update(m)
	})
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrNotPending) {
			return err
		}
		return fmt.Errorf("failed to approve member: %w", err)
	}
	log.Printf("Member approved: id=%d", id)
	return nil
}

// Reject deletes a pending member
func (s *MemberService) Reject(ctx context.Context, id int64) (*models.Member, error) {
	return s.delete(ctx, id, models.StatusPending)
}

// delete removes a member; a non-empty requireStatus guards against deleting the wrong kind
func (s *MemberService) delete(ctx context.Context, id int64, requireStatus string) (*models.Member, error) {
	var removed *models.Member
	err := s.store.Write(func(q database.DBTX) error {
		repo := repository.NewMemberRepository(q)
		m, err := repo.GetByID(id)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMemberNotFound
		}
		if requireStatus != "" && m.Status != requireStatus {
			return ErrNotPending
		}
		if _, err := repo.Delete(id); err != nil {
			return err
		}
		removed = m
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) || errors.Is(err, ErrNotPending) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete member: %w", err)
	}

	s.metrics.IncrementMembersDeleted()
	log.Printf("Member deleted: id=%d", id)

	if keys := removed.ImageKeys(); len(keys) > 0 {
		if err := s.images.DeleteAll(ctx, keys); err != nil {
			log.Printf("Member %d deleted but images were not all removed: %v", id, err)
		}
	}
	return removed, nil
}

// missingKeys returns keys in before that are not in after
func missingKeys(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, k := range after {
		keep[k] = true
	}
	var missing []string
	for _, k := range before {
		if !keep[k] && strings.TrimSpace(k) != "" {
			missing = append(missing, k)
		}
	}
	return missing
}
