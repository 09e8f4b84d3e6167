package service

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"memberdir/internal/database"
	"memberdir/internal/store"
	"memberdir/internal/uploads"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testEnv struct {
	db        *database.DB
	uploadDir string

	memberStore *store.Store
	codeStore   *store.Store
	adminStore  *store.Store

	members      *MemberService
	codes        *CodeService
	auth         *AuthService
	registration *RegistrationService
	backup       *BackupService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations("../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	uploadDir := t.TempDir()
	backend, err := uploads.NewLocalBackend(uploadDir)
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	images := uploads.NewStorage(backend, 1024)

	email, err := NewEmailService("", "", "", "", false)
	if err != nil {
		t.Fatalf("NewEmailService() error = %v", err)
	}

	env := &testEnv{
		db:          db,
		uploadDir:   uploadDir,
		memberStore: store.New("members", db),
		codeStore:   store.New("registration_codes", db),
		adminStore:  store.New("admins", db),
	}
	env.members = NewMemberService(env.memberStore, images, nil)
	env.codes = NewCodeService(env.codeStore, 7*24*time.Hour, nil)
	env.auth = NewAuthService(env.adminStore, time.Hour, nil)
	env.registration = NewRegistrationService(env.codes, env.members, email, nil)
	env.backup = NewBackupService(env.memberStore, env.codeStore, env.adminStore)
	return env
}

func pngUpload(name string) *uploads.Upload {
	return &uploads.Upload{Filename: name, Size: int64(len(pngBytes)), Reader: bytes.NewReader(pngBytes)}
}

func textUpload(name string) *uploads.Upload {
	data := []byte("just some text, not an image")
	return &uploads.Upload{Filename: name, Size: int64(len(data)), Reader: bytes.NewReader(data)}
}

func validApplication(name, email string) *Application {
	return &Application{
		Name:    name,
		Email:   email,
		Contact: "555-0100",
		Address: "1 Main St",
	}
}

// storedFiles lists every file under the upload directory as slash keys
func (e *testEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(e.uploadDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(e.uploadDir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("walk uploads: %v", err)
	}
	return files
}

func (e *testEnv) fileExists(key string) bool {
	_, err := os.Stat(filepath.Join(e.uploadDir, filepath.FromSlash(key)))
	return err == nil
}
