package database

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const testMigrationsPath = "../../migrations"

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.RunMigrations(testMigrationsPath); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	db := setupTestDB(t)

	tables := []string{"members", "family_members", "business_details", "registration_codes", "admins", "admin_sessions"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// A second run must be a no-op
	if err := db.RunMigrations(testMigrationsPath); err != nil {
		t.Fatalf("Re-running migrations failed: %v", err)
	}
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&count); err != nil {
		t.Fatalf("Failed to count migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 recorded migration, got %d", count)
	}
}

func TestRunMigrationsMissingDir(t *testing.T) {
	db, err := Initialize(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(t.TempDir()); err == nil {
		t.Error("RunMigrations() should fail when no migration files exist")
	}
}

// TestDatabaseTransactions tests transaction support
func TestDatabaseTransactions(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	id, err := tx.ExecReturningID("INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)",
		"root", "hashedpass", now)
	if err != nil {
		tx.Rollback()
		t.Fatalf("Failed to insert in transaction: %v", err)
	}
	if id <= 0 {
		t.Errorf("ExecReturningID() = %d, want positive id", id)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit transaction: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM admins WHERE username = ?", "root").Scan(&count); err != nil {
		t.Fatalf("Failed to query after commit: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 admin, got %d", count)
	}

	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin second transaction: %v", err)
	}
	if _, err := tx2.Exec("INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)",
		"other", "hashedpass", now); err != nil {
		tx2.Rollback()
		t.Fatalf("Failed to insert in second transaction: %v", err)
	}
	if err := tx2.Rollback(); err != nil {
		t.Fatalf("Failed to rollback transaction: %v", err)
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM admins WHERE username = ?", "other").Scan(&count); err != nil {
		t.Fatalf("Failed to query after rollback: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 admins after rollback, got %d", count)
	}
}

func TestForeignKeyCascade(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now()

	if _, err := db.Exec(`INSERT INTO members (id, name, email, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		1, "Jane Doe", "jane@x.com", "active", now, now); err != nil {
		t.Fatalf("insert member: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO family_members (member_id, position, name, relation) VALUES (?, ?, ?, ?)`,
		1, 0, "John Doe", "spouse"); err != nil {
		t.Fatalf("insert family member: %v", err)
	}
	if _, err := db.Exec("DELETE FROM members WHERE id = ?", 1); err != nil {
		t.Fatalf("delete member: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM family_members").Scan(&count); err != nil {
		t.Fatalf("count family: %v", err)
	}
	if count != 0 {
		t.Errorf("family rows should cascade, %d left", count)
	}
}

// TestConcurrentAccess tests concurrent database access
func TestConcurrentAccess(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.Exec("INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)",
		"concurrent", "hashedpass", time.Now()); err != nil {
		t.Fatalf("Failed to create test admin: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var username string
			err := db.QueryRow("SELECT username FROM admins WHERE username = ?", "concurrent").Scan(&username)
			if err != nil {
				t.Errorf("Concurrent read failed: %v", err)
				return
			}
			if username != "concurrent" {
				t.Errorf("Expected username 'concurrent', got '%s'", username)
			}
		}()
	}
	wg.Wait()
}
