package service

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/models"
	"memberdir/internal/repository"
	"memberdir/internal/store"
)

const backupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Members    []MemberBackup `json:"members"`
	Codes      []CodeBackup   `json:"registration_codes"`
	Admins     []AdminBackup  `json:"admins"`
}

// MemberBackup represents a member record with its family and business
type MemberBackup struct {
	ID           int64                `json:"id"`
	Name         string               `json:"name"`
	Email        string               `json:"email"`
	Contact      string               `json:"contact"`
	Address      string               `json:"address"`
	Bio          string               `json:"bio"`
	DateOfBirth  string               `json:"date_of_birth"`
	ProfileImage string               `json:"profile_image"`
	FamilyImage  string               `json:"family_image"`
	PasswordHash string               `json:"password_hash"`
	Status       string               `json:"status"`
	Family       []FamilyMemberBackup `json:"family"`
	Business     *BusinessBackup      `json:"business,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// FamilyMemberBackup represents a spouse or child
type FamilyMemberBackup struct {
	Name        string `json:"name"`
	Relation    string `json:"relation"`
	DateOfBirth string `json:"date_of_birth"`
	Education   string `json:"education"`
	Image       string `json:"image"`
}

// BusinessBackup represents business details
type BusinessBackup struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Contact     string `json:"contact"`
	Address     string `json:"address"`
	Logo        string `json:"logo"`
}

// CodeBackup represents a registration code
type CodeBackup struct {
	Code      string     `json:"code"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	Active    bool       `json:"active"`
	UsedBy    *int64     `json:"used_by"`
	UsedAt    *time.Time `json:"used_at"`
}

// AdminBackup represents an admin account. Sessions are not exported.
type AdminBackup struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImportStats counts the records written and skipped by an import
type ImportStats struct {
	Members, Codes, Admins int
	Skipped                int
}

// BackupService handles database backup and restore operations
type BackupService struct {
	members *store.Store
	codes   *store.Store
	admins  *store.Store
}

// NewBackupService creates a new backup service over the collection stores
func NewBackupService(members, codes, admins *store.Store) *BackupService {
	return &BackupService{members: members, codes: codes, admins: admins}
}

// Export creates a complete backup of the database to a file
func (s *BackupService) Export(outputPath string) error {
	log.Println("Starting database export...")

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	backup, err := s.ExportToWriter(file)
	if err != nil {
		return err
	}

	log.Printf("Database exported successfully to %s", outputPath)
	log.Printf("Exported: %d members, %d codes, %d admins",
		len(backup.Members), len(backup.Codes), len(backup.Admins))
	return nil
}

// ExportToWriter exports the database to an io.Writer (useful for HTTP responses)
func (s *BackupService) ExportToWriter(w io.Writer) (*BackupData, error) {
	backup := &BackupData{
		Version:    backupVersion,
		ExportedAt: time.Now().UTC(),
	}

	if err := s.exportMembers(backup); err != nil {
		return nil, fmt.Errorf("failed to export members: %w", err)
	}
	if err := s.exportCodes(backup); err != nil {
		return nil, fmt.Errorf("failed to export codes: %w", err)
	}
	if err := s.exportAdmins(backup); err != nil {
		return nil, fmt.Errorf("failed to export admins: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}
	return backup, nil
}

// Import restores a database from a backup file
func (s *BackupService) Import(inputPath string) (*ImportStats, error) {
	log.Printf("Starting database import from %s...", inputPath)

	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(file)
}

// ImportFromReader restores a database from a backup reader (for file uploads).
// Records that already exist are skipped, so an import can be repeated safely.
func (s *BackupService) ImportFromReader(reader io.Reader) (*ImportStats, error) {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != backupVersion {
		return nil, fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt)

	stats := &ImportStats{}

	// Members first, codes reference them through used_by
	if err := s.importMembers(backup.Members, stats); err != nil {
		return nil, fmt.Errorf("failed to import members: %w", err)
	}
	if err := s.importCodes(backup.Codes, stats); err != nil {
		return nil, fmt.Errorf("failed to import codes: %w", err)
	}
	if err := s.importAdmins(backup.Admins, stats); err != nil {
		return nil, fmt.Errorf("failed to import admins: %w", err)
	}

	log.Printf("Database import completed: %d members, %d codes, %d admins, %d skipped",
		stats.Members, stats.Codes, stats.Admins, stats.Skipped)
	return stats, nil
}

func (s *BackupService) exportMembers(backup *BackupData) error {
	return s.members.Read(func(q database.DBTX) error {
		members, err := repository.NewMemberRepository(q).List()
		if err != nil {
			return err
		}
		backup.Members = make([]MemberBackup, 0, len(members))
		for _, m := range members {
			backup.Members = append(backup.Members, memberToBackup(m))
		}
		return nil
	})
}

func (s *BackupService) exportCodes(backup *BackupData) error {
	return s.codes.Read(func(q database.DBTX) error {
		codes, err := repository.NewCodeRepository(q).List()
		if err != nil {
			return err
		}
		backup.Codes = make([]CodeBackup, 0, len(codes))
		for _, c := range codes {
			backup.Codes = append(backup.Codes, CodeBackup{
				Code:      c.Code,
				CreatedBy: c.CreatedBy,
				CreatedAt: c.CreatedAt,
				ExpiresAt: c.ExpiresAt,
				Active:    c.Active,
				UsedBy:    c.UsedBy,
				UsedAt:    c.UsedAt,
			})
		}
		return nil
	})
}

func (s *BackupService) exportAdmins(backup *BackupData) error {
	return s.admins.Read(func(q database.DBTX) error {
		admins, err := repository.NewAdminRepository(q).List()
		if err != nil {
			return err
		}
		backup.Admins = make([]AdminBackup, 0, len(admins))
		for _, a := range admins {
			backup.Admins = append(backup.Admins, AdminBackup{
				Username:     a.Username,
				PasswordHash: a.PasswordHash,
				CreatedAt:    a.CreatedAt,
			})
		}
		return nil
	})
}

func (s *BackupService) importMembers(members []MemberBackup, stats *ImportStats) error {
	return s.members.Write(func(q database.DBTX) error {
		repo := repository.NewMemberRepository(q)
		for _, mb := range members {
			existing, err := repo.GetByID(mb.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				existing, err = repo.GetByEmail(mb.Email)
				if err != nil {
					return err
				}
			}
			if existing != nil {
				stats.Skipped++
				continue
			}
			if err := repo.Insert(memberFromBackup(mb)); err != nil {
				return fmt.Errorf("failed to import member %d: %w", mb.ID, err)
			}
			stats.Members++
		}
		return nil
	})
}

func (s *BackupService) importCodes(codes []CodeBackup, stats *ImportStats) error {
	return s.codes.Write(func(q database.DBTX) error {
		repo := repository.NewCodeRepository(q)
		for _, cb := range codes {
			existing, err := repo.Get(cb.Code)
			if err != nil {
				return err
			}
			if existing != nil {
				stats.Skipped++
				continue
			}
			err = repo.Insert(&models.RegistrationCode{
				Code:      cb.Code,
				CreatedBy: cb.CreatedBy,
				CreatedAt: cb.CreatedAt,
				ExpiresAt: cb.ExpiresAt,
				Active:    cb.Active,
				UsedBy:    cb.UsedBy,
				UsedAt:    cb.UsedAt,
			})
			if err != nil {
				return fmt.Errorf("failed to import code %s: %w", cb.Code, err)
			}
			stats.Codes++
		}
		return nil
	})
}

func (s *BackupService) importAdmins(admins []AdminBackup, stats *ImportStats) error {
	return s.admins.Write(func(q database.DBTX) error {
		repo := repository.NewAdminRepository(q)
		for _, ab := range admins {
			existing, err := repo.GetByUsername(ab.Username)
			if err != nil {
				return err
			}
			if existing != nil {
				stats.Skipped++
				continue
			}
			if _, err := repo.InsertAdmin(ab.Username, ab.PasswordHash, ab.CreatedAt); err != nil {
				return fmt.Errorf("failed to import admin %s: %w", ab.Username, err)
			}
			stats.Admins++
		}
		return nil
	})
}

func memberToBackup(m *models.Member) MemberBackup {
	mb := MemberBackup{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		Contact:      m.Contact,
		Address:      m.Address,
		Bio:          m.Bio,
		DateOfBirth:  m.DateOfBirth,
		ProfileImage: m.ProfileImage,
		FamilyImage:  m.FamilyImage,
		PasswordHash: m.PasswordHash,
		Status:       m.Status,
		Family:       make([]FamilyMemberBackup, 0, len(m.Family)),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	for _, f := range m.Family {
		mb.Family = append(mb.Family, FamilyMemberBackup(f))
	}
	if m.Business != nil {
		b := BusinessBackup(*m.Business)
		mb.Business = &b
	}
	return mb
}

func memberFromBackup(mb MemberBackup) *models.Member {
	m := &models.Member{
		ID:           mb.ID,
		Name:         mb.Name,
		Email:        normalizeEmail(mb.Email),
		Contact:      mb.Contact,
		Address:      mb.Address,
		Bio:          mb.Bio,
		DateOfBirth:  mb.DateOfBirth,
		ProfileImage: mb.ProfileImage,
		FamilyImage:  mb.FamilyImage,
		PasswordHash: mb.PasswordHash,
		Status:       mb.Status,
		CreatedAt:    mb.CreatedAt.UTC(),
		UpdatedAt:    mb.UpdatedAt.UTC(),
	}
	if m.Status == "" {
		m.Status = models.StatusActive
	}
	for _, f := range mb.Family {
		m.Family = append(m.Family, models.FamilyMember(f))
	}
	if mb.Business != nil {
		b := models.BusinessDetails(*mb.Business)
		m.Business = &b
	}
	return m
}
