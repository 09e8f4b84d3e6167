package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"memberdir/internal/database"
	"memberdir/internal/models"
)

const memberColumns = `id, name, email, contact, address, bio, date_of_birth, profile_image, family_image,
	password_hash, status, created_at, updated_at`

// MemberRepository handles database operations for members and their family and business records
type MemberRepository struct {
	db database.DBTX
}

// NewMemberRepository creates a member repository on a connection or transaction
func NewMemberRepository(db database.DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

// ErrDuplicate is returned when an insert or update collides with a unique key:
// a member email or a registration code.
var ErrDuplicate = errors.New("duplicate key")

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	m := &models.Member{}
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Email,
		&m.Contact,
		&m.Address,
		&m.Bio,
		&m.DateOfBirth,
		&m.ProfileImage,
		&m.FamilyImage,
		&m.PasswordHash,
		&m.Status,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

// List returns members in the given statuses, or all members when none are given.
// Family and business records are attached.
func (r *MemberRepository) List(statuses ...string) ([]*models.Member, error) {
	query := "SELECT " + memberColumns + " FROM members"
	var args []interface{}
	if len(statuses) > 0 {
		query += " WHERE status IN (?" + strings.Repeat(", ?", len(statuses)-1) + ")"
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += " ORDER BY id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	byID := make(map[int64]*models.Member)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	rows.Close()

	if len(members) == 0 {
		return members, nil
	}
	if err := r.attachFamily(byID); err != nil {
		return nil, err
	}
	if err := r.attachBusinesses(byID); err != nil {
		return nil, err
	}

	return members, nil
}

// GetByID retrieves a member by ID, or nil if it doesn't exist
func (r *MemberRepository) GetByID(id int64) (*models.Member, error) {
	query := "SELECT " + memberColumns + " FROM members WHERE id = ?"
	return r.getOne(query, id)
}

// GetByEmail retrieves a member by email, ignoring case
func (r *MemberRepository) GetByEmail(email string) (*models.Member, error) {
	query := "SELECT " + memberColumns + " FROM members WHERE LOWER(email) = LOWER(?)"
	return r.getOne(query, strings.TrimSpace(email))
}

func (r *MemberRepository) getOne(query string, arg interface{}) (*models.Member, error) {
	m, err := scanMember(r.db.QueryRow(query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	byID := map[int64]*models.Member{m.ID: m}
	if err := r.attachFamily(byID, m.ID); err != nil {
		return nil, err
	}
	if err := r.attachBusinesses(byID, m.ID); err != nil {
		return nil, err
	}
	return m, nil
}

// MaxID returns the highest member id in the table, 0 when empty
func (r *MemberRepository) MaxID() (int64, error) {
	var max sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(id) FROM members").Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to read max member id: %w", err)
	}
	return max.Int64, nil
}

// Insert stores a new member with a caller-assigned ID
func (r *MemberRepository) Insert(m *models.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		m.ID, m.Name, m.Email, m.Contact, m.Address, m.Bio, m.DateOfBirth,
		m.ProfileImage, m.FamilyImage, m.PasswordHash, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}

	if err := r.replaceFamily(m.ID, m.Family); err != nil {
		return err
	}
	return r.replaceBusiness(m.ID, m.Business)
}

// Update rewrites the member row and replaces its family and business records
func (r *MemberRepository) Update(m *models.Member) error {
	query := `
		UPDATE members
		SET name = ?, email = ?, contact = ?, address = ?, bio = ?, date_of_birth = ?,
			profile_image = ?, family_image = ?, password_hash = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		m.Name, m.Email, m.Contact, m.Address, m.Bio, m.DateOfBirth,
		m.ProfileImage, m.FamilyImage, m.PasswordHash, m.Status, m.UpdatedAt, m.ID,
	)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update member: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update member %d: %w", m.ID, sql.ErrNoRows)
	}

	if err := r.replaceFamily(m.ID, m.Family); err != nil {
		return err
	}
	return r.replaceBusiness(m.ID, m.Business)
}

// Delete removes a member with its family and business records.
// It reports whether a member row was removed.
func (r *MemberRepository) Delete(id int64) (bool, error) {
	if _, err := r.db.Exec("DELETE FROM family_members WHERE member_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete family members: %w", err)
	}
	if _, err := r.db.Exec("DELETE FROM business_details WHERE member_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete business details: %w", err)
	}

	result, err := r.db.Exec("DELETE FROM members WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

func (r *MemberRepository) replaceFamily(memberID int64, family []models.FamilyMember) error {
	if _, err := r.db.Exec("DELETE FROM family_members WHERE member_id = ?", memberID); err != nil {
		return fmt.Errorf("failed to clear family members: %w", err)
	}

	query := `
		INSERT INTO family_members (member_id, position, name, relation, date_of_birth, education, image)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, f := range family {
		if _, err := r.db.Exec(query, memberID, i, f.Name, f.Relation, f.DateOfBirth, f.Education, f.Image); err != nil {
			return fmt.Errorf("failed to insert family member: %w", err)
		}
	}
	return nil
}

func (r *MemberRepository) replaceBusiness(memberID int64, b *models.BusinessDetails) error {
	if _, err := r.db.Exec("DELETE FROM business_details WHERE member_id = ?", memberID); err != nil {
		return fmt.Errorf("failed to clear business details: %w", err)
	}
	if b == nil {
		return nil
	}

	query := `
		INSERT INTO business_details (member_id, name, description, website, contact, address, logo)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, memberID, b.Name, b.Description, b.Website, b.Contact, b.Address, b.Logo); err != nil {
		return fmt.Errorf("failed to insert business details: %w", err)
	}
	return nil
}

// attachFamily loads family rows for the given members. With no ids it loads every row.
func (r *MemberRepository) attachFamily(byID map[int64]*models.Member, ids ...int64) error {
	query := "SELECT member_id, name, relation, date_of_birth, education, image FROM family_members"
	var args []interface{}
	if len(ids) == 1 {
		query += " WHERE member_id = ?"
		args = append(args, ids[0])
	}
	query += " ORDER BY member_id, position"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to query family members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID int64
		var f models.FamilyMember
		if err := rows.Scan(&memberID, &f.Name, &f.Relation, &f.DateOfBirth, &f.Education, &f.Image); err != nil {
			return fmt.Errorf("failed to scan family member: %w", err)
		}
		if m, ok := byID[memberID]; ok {
			m.Family = append(m.Family, f)
		}
	}
	return rows.Err()
}

// attachBusinesses loads business rows for the given members. With no ids it loads every row.
func (r *MemberRepository) attachBusinesses(byID map[int64]*models.Member, ids ...int64) error {
	query := "SELECT member_id, name, description, website, contact, address, logo FROM business_details"
	var args []interface{}
	if len(ids) == 1 {
		query += " WHERE member_id = ?"
		args = append(args, ids[0])
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("failed to query business details: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID int64
		b := &models.BusinessDetails{}
		if err := rows.Scan(&memberID, &b.Name, &b.Description, &b.Website, &b.Contact, &b.Address, &b.Logo); err != nil {
			return fmt.Errorf("failed to scan business details: %w", err)
		}
		if m, ok := byID[memberID]; ok {
			m.Business = b
		}
	}
	return rows.Err()
}
