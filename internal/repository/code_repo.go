package repository

import (
	"database/sql"
	"fmt"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/models"
)

const codeColumns = "code, created_by, created_at, expires_at, active, used_by, used_at"

// CodeRepository handles database operations for registration codes
type CodeRepository struct {
	db database.DBTX
}

func NewCodeRepository(db database.DBTX) *CodeRepository {
	return &CodeRepository{db: db}
}

func scanCode(row rowScanner) (*models.RegistrationCode, error) {
	var (
		c         models.RegistrationCode
		expiresAt sql.NullTime
		usedBy    sql.NullInt64
		usedAt    sql.NullTime
	)
	if err := row.Scan(&c.Code, &c.CreatedBy, &c.CreatedAt, &expiresAt, &c.Active, &usedBy, &usedAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	if usedBy.Valid {
		id := usedBy.Int64
		c.UsedBy = &id
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return &c, nil
}

// Insert stores a new code
func (r *CodeRepository) Insert(c *models.RegistrationCode) error {
	query := "INSERT INTO registration_codes (" + codeColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"

	var expiresAt, usedAt interface{}
	var usedBy interface{}
	if c.ExpiresAt != nil {
		expiresAt = *c.ExpiresAt
	}
	if c.UsedBy != nil {
		usedBy = *c.UsedBy
	}
	if c.UsedAt != nil {
		usedAt = *c.UsedAt
	}

	if _, err := r.db.Exec(query, c.Code, c.CreatedBy, c.CreatedAt, expiresAt, c.Active, usedBy, usedAt); err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert registration code: %w", err)
	}
	return nil
}

// Get retrieves a code, or nil if it doesn't exist
func (r *CodeRepository) Get(code string) (*models.RegistrationCode, error) {
	query := "SELECT " + codeColumns + " FROM registration_codes WHERE code = ?"
	c, err := scanCode(r.db.QueryRow(query, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registration code: %w", err)
	}
	return c, nil
}

// List returns all codes, newest first
func (r *CodeRepository) List() ([]*models.RegistrationCode, error) {
	query := "SELECT " + codeColumns + " FROM registration_codes ORDER BY created_at DESC, code"
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query registration codes: %w", err)
	}
	defer rows.Close()

	var codes []*models.RegistrationCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// MarkUsed consumes an active, unused code. It reports false when the
// code was not in that state, so at most one caller can ever win.
func (r *CodeRepository) MarkUsed(code string, memberID int64, usedAt time.Time) (bool, error) {
	query := `
		UPDATE registration_codes
		SET active = ?, used_by = ?, used_at = ?
		WHERE code = ? AND active = ? AND used_by IS NULL
	`
	result, err := r.db.Exec(query, false, memberID, usedAt, code, true)
	if err != nil {
		return false, fmt.Errorf("failed to mark registration code used: %w", err)
	}
	return affectedOne(result)
}

// Deactivate switches an active code off. It reports false when no active code matched.
func (r *CodeRepository) Deactivate(code string) (bool, error) {
	query := "UPDATE registration_codes SET active = ? WHERE code = ? AND active = ?"
	result, err := r.db.Exec(query, false, code, true)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate registration code: %w", err)
	}
	return affectedOne(result)
}

// Delete removes a code. It reports false when the code didn't exist.
func (r *CodeRepository) Delete(code string) (bool, error) {
	result, err := r.db.Exec("DELETE FROM registration_codes WHERE code = ?", code)
	if err != nil {
		return false, fmt.Errorf("failed to delete registration code: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}
