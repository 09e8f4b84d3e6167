package repository

import (
	"database/sql"
	"fmt"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/models"
)

// AdminRepository handles database operations for admins and their sessions
type AdminRepository struct {
	db database.DBTX
}

// NewAdminRepository creates a new admin repository
func NewAdminRepository(db database.DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

// CreateAdmin inserts a new admin
func (r *AdminRepository) CreateAdmin(username, passwordHash string) (*models.Admin, error) {
	return r.InsertAdmin(username, passwordHash, time.Now())
}

// InsertAdmin inserts an admin with an explicit creation time
func (r *AdminRepository) InsertAdmin(username, passwordHash string, createdAt time.Time) (*models.Admin, error) {
	createdAt = createdAt.UTC()
	query := `
		INSERT INTO admins (username, password_hash, created_at)
		VALUES (?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query, username, passwordHash, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}

	return &models.Admin{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// GetByUsername retrieves an admin by username, ignoring case
func (r *AdminRepository) GetByUsername(username string) (*models.Admin, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM admins
		WHERE LOWER(username) = LOWER(?)
	`
	return r.getOne(query, username)
}

// GetByID retrieves an admin by ID
func (r *AdminRepository) GetByID(id int64) (*models.Admin, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM admins
		WHERE id = ?
	`
	return r.getOne(query, id)
}

func (r *AdminRepository) getOne(query string, arg interface{}) (*models.Admin, error) {
	admin := &models.Admin{}
	err := r.db.QueryRow(query, arg).Scan(
		&admin.ID,
		&admin.Username,
		&admin.PasswordHash,
		&admin.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	return admin, nil
}

// Count returns the number of admins
func (r *AdminRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM admins").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return n, nil
}

// List returns all admins ordered by username
func (r *AdminRepository) List() ([]models.Admin, error) {
	rows, err := r.db.Query("SELECT id, username, password_hash, created_at FROM admins ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to query admins: %w", err)
	}
	defer rows.Close()

	var admins []models.Admin
	for rows.Next() {
		var a models.Admin
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

// CreateSession creates a new session for an admin
func (r *AdminRepository) CreateSession(sessionID string, adminID int64, expiresAt time.Time) (*models.Session, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO admin_sessions (id, admin_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, sessionID, adminID, expiresAt.UTC(), now); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &models.Session{
		ID:        sessionID,
		AdminID:   adminID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// GetSession retrieves a session by ID
func (r *AdminRepository) GetSession(sessionID string) (*models.Session, error) {
	query := `
		SELECT id, admin_id, expires_at, created_at
		FROM admin_sessions
		WHERE id = ?
	`
	session := &models.Session{}
	err := r.db.QueryRow(query, sessionID).Scan(
		&session.ID,
		&session.AdminID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// DeleteSession removes a session from the database
func (r *AdminRepository) DeleteSession(sessionID string) error {
	if _, err := r.db.Exec("DELETE FROM admin_sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all sessions that expired before now and returns how many went
func (r *AdminRepository) DeleteExpiredSessions(now time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM admin_sessions WHERE expires_at < ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
