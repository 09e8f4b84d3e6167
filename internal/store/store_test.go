package store

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"memberdir/internal/database"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func countAdmins(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	err := s.Read(func(q database.DBTX) error {
		return q.QueryRow("SELECT COUNT(*) FROM admins").Scan(&n)
	})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	return n
}

func TestWriteCommitsOnSuccess(t *testing.T) {
	s := New("admins", setupTestDB(t))

	err := s.Write(func(q database.DBTX) error {
		_, err := q.Exec("INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)",
			"root", "x", time.Now().UTC())
		return err
	})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n := countAdmins(t, s); n != 1 {
		t.Errorf("admins = %d, want 1", n)
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	s := New("admins", setupTestDB(t))
	boom := errors.New("boom")

	err := s.Write(func(q database.DBTX) error {
		if _, err := q.Exec("INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)",
			"root", "x", time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Write() error = %v, want %v", err, boom)
	}
	if n := countAdmins(t, s); n != 0 {
		t.Errorf("admins = %d after rollback, want 0", n)
	}
}

func TestWritesAreSerialized(t *testing.T) {
	s := New("counter", setupTestDB(t))

	// Read-modify-write on a single row; lost updates would show up as a short count.
	if err := s.Write(func(q database.DBTX) error {
		_, err := q.Exec("INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)",
			"counter", "0", time.Now().UTC())
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Write(func(q database.DBTX) error {
				var n int
				if err := q.QueryRow("SELECT CAST(password_hash AS INTEGER) FROM admins WHERE username = ?", "counter").Scan(&n); err != nil {
					return err
				}
				_, err := q.Exec("UPDATE admins SET password_hash = ? WHERE username = ?", n+1, "counter")
				return err
			})
			if err != nil {
				t.Errorf("Write() error = %v", err)
			}
		}()
	}
	wg.Wait()

	var got int
	if err := s.Read(func(q database.DBTX) error {
		return q.QueryRow("SELECT CAST(password_hash AS INTEGER) FROM admins WHERE username = ?", "counter").Scan(&got)
	}); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != workers {
		t.Errorf("counter = %d, want %d", got, workers)
	}
}
