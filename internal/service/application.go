package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memberdir/internal/models"
	"memberdir/internal/uploads"
	"memberdir/internal/validation"
)

// Application is the data collected by the registration and add-member forms
type Application struct {
	Name        string
	Email       string
	Contact     string
	Address     string
	Bio         string
	DateOfBirth string

	Family   []FamilyEntry
	Business BusinessEntry

	ProfileImage *uploads.Upload
	FamilyImage  *uploads.Upload
	BusinessLogo *uploads.Upload
}

// FamilyEntry is one family row of a form. Rows with an empty name are skipped.
type FamilyEntry struct {
	Name        string
	Relation    string
	DateOfBirth string
	Education   string
	Image       *uploads.Upload

	// ExistingImage keeps an already stored image when editing
	ExistingImage string
}

// BusinessEntry is the optional business section. It is ignored without a name.
type BusinessEntry struct {
	Name        string
	Description string
	Website     string
	Contact     string
	Address     string
	Logo        *uploads.Upload

	ExistingLogo string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateCore checks the required member fields
func validateCore(name, email, contact, address, dob string) error {
	if err := validation.ValidateName(name); err != nil {
		return err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}
	if err := validation.ValidateRequired("contact", contact); err != nil {
		return err
	}
	if err := validation.ValidateRequired("address", address); err != nil {
		return err
	}
	return validation.ValidateDate("date_of_birth", dob)
}

// validateFamily checks every non-empty family row
func validateFamily(entries []FamilyEntry) error {
	for i, f := range entries {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		if validation.ValidateRelation(f.Relation) != nil {
			return validation.ValidationError{
				Field:   fmt.Sprintf("family[%d].relation", i),
				Message: "relation must be spouse or child",
			}
		}
		if f.Relation == models.RelationChild {
			if err := validation.ValidateDate(fmt.Sprintf("family[%d].date_of_birth", i), f.DateOfBirth); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateBusiness(b BusinessEntry) error {
	if strings.TrimSpace(b.Name) == "" {
		return nil
	}
	return validation.ValidateWebsite(b.Website)
}

// Validate checks the application without touching storage
func (a *Application) Validate() error {
	if err := validateCore(a.Name, a.Email, a.Contact, a.Address, a.DateOfBirth); err != nil {
		return err
	}
	if err := validateFamily(a.Family); err != nil {
		return err
	}
	return validateBusiness(a.Business)
}

// referencesStoredImages reports whether any row points at an already stored image
func (a *Application) referencesStoredImages() bool {
	if a.Business.ExistingLogo != "" {
		return true
	}
	for _, f := range a.Family {
		if f.ExistingImage != "" {
			return true
		}
	}
	return false
}

// familyFromEntries keeps rows with a name and drops child-only fields from spouses
func familyFromEntries(entries []FamilyEntry) []models.FamilyMember {
	family := make([]models.FamilyMember, 0, len(entries))
	for _, f := range entries {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		fm := models.FamilyMember{
			Name:     name,
			Relation: f.Relation,
			Image:    f.ExistingImage,
		}
		if f.Relation == models.RelationChild {
			fm.DateOfBirth = strings.TrimSpace(f.DateOfBirth)
			fm.Education = strings.TrimSpace(f.Education)
		}
		family = append(family, fm)
	}
	return family
}

func businessFromEntry(b BusinessEntry) *models.BusinessDetails {
	name := strings.TrimSpace(b.Name)
	if name == "" {
		return nil
	}
	return &models.BusinessDetails{
		Name:        name,
		Description: strings.TrimSpace(b.Description),
		Website:     strings.TrimSpace(b.Website),
		Contact:     strings.TrimSpace(b.Contact),
		Address:     strings.TrimSpace(b.Address),
		Logo:        b.ExistingLogo,
	}
}

// toMember converts a validated application into a member without images
func (a *Application) toMember() *models.Member {
	return &models.Member{
		Name:        strings.TrimSpace(a.Name),
		Email:       normalizeEmail(a.Email),
		Contact:     strings.TrimSpace(a.Contact),
		Address:     strings.TrimSpace(a.Address),
		Bio:         strings.TrimSpace(a.Bio),
		DateOfBirth: strings.TrimSpace(a.DateOfBirth),
		Family:      familyFromEntries(a.Family),
		Business:    businessFromEntry(a.Business),
	}
}

// saveImages uploads every image of the application into batch and
// stores the resulting keys on m. Family images follow the same row filtering as familyFromEntries.
func saveImages(ctx context.Context, batch *uploads.Batch, a *Application, m *models.Member) error {
	save := func(kind uploads.Kind, up *uploads.Upload) (string, error) {
		if up == nil {
			return "", nil
		}
		return batch.Save(ctx, kind, *up)
	}

	key, err := save(uploads.KindMember, a.ProfileImage)
	if err != nil {
		return imageError("profile_image", err)
	}
	if key != "" {
		m.ProfileImage = key
	}

	if key, err = save(uploads.KindFamily, a.FamilyImage); err != nil {
		return imageError("family_image", err)
	}
	if key != "" {
		m.FamilyImage = key
	}

	if m.Business != nil {
		if key, err = save(uploads.KindBusiness, a.Business.Logo); err != nil {
			return imageError("business_logo", err)
		}
		if key != "" {
			m.Business.Logo = key
		}
	}

	i := 0
	for _, f := range a.Family {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		if key, err = save(uploads.KindFamily, f.Image); err != nil {
			return imageError(fmt.Sprintf("family[%d].image", i), err)
		}
		if key != "" {
			m.Family[i].Image = key
		}
		i++
	}
	return nil
}

// imageError turns upload rejections into field errors and passes storage failures through
func imageError(field string, err error) error {
	switch {
	case errors.Is(err, uploads.ErrTooLarge):
		return validation.ValidationError{Field: field, Message: "image is too large"}
	case errors.Is(err, uploads.ErrUnsupportedType):
		return validation.ValidationError{Field: field, Message: "image must be JPEG, PNG, GIF or WebP"}
	default:
		return fmt.Errorf("failed to store %s: %w", field, err)
	}
}
