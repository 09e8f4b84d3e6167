// Package uploads validates and stores member images.
//
// Images are kept under a type-specific prefix (members/, family/,
// businesses/) and named with a random uuid plus the sniffed extension.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTooLarge        = errors.New("file is too large")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrInvalidKey      = errors.New("invalid upload key")
	ErrNotFound        = errors.New("upload not found")
)

// Kind selects the directory an image is stored under
type Kind string

const (
	KindMember   Kind = "members"
	KindFamily   Kind = "family"
	KindBusiness Kind = "businesses"
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var keyNamePattern = regexp.MustCompile(`^[0-9a-f-]{36}\.(jpg|png|gif|webp)$`)

// Upload is one file received from a form
type Upload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// Storage validates uploads and writes them to a backend
type Storage struct {
	backend Backend
	maxSize int64
}

func NewStorage(backend Backend, maxSize int64) *Storage {
	return &Storage{backend: backend, maxSize: maxSize}
}

// Backend exposes the underlying backend, used when serving images
func (s *Storage) Backend() Backend {
	return s.backend
}

// Save validates the upload and stores it, returning its key
func (s *Storage) Save(ctx context.Context, kind Kind, up Upload) (string, error) {
	if up.Size > s.maxSize {
		return "", ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(up.Reader, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	key := path.Join(string(kind), uuid.New().String()+ext)
	if err := s.backend.Save(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", up.Filename, err)
	}
	return key, nil
}

// Delete removes one image
func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	return s.backend.Delete(ctx, key)
}

// DeleteAll removes the given images concurrently. Failures are logged and
// the first one is returned; the remaining deletions still run.
func (s *Storage) DeleteAll(ctx context.Context, keys []string) error {
	// Cleanup must finish even when the request context is already done.
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(4)
	for _, key := range keys {
		g.Go(func() error {
			if err := s.Delete(ctx, key); err != nil {
				log.Printf("Failed to delete image %s: %v", key, err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Open returns the stored image after checking the key shape
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return s.backend.Open(ctx, key)
}

// ValidateKey accepts only keys produced by Save
func ValidateKey(key string) error {
	dir, name := path.Split(key)
	switch Kind(path.Clean(dir)) {
	case KindMember, KindFamily, KindBusiness:
	default:
		return ErrInvalidKey
	}
	if !keyNamePattern.MatchString(name) {
		return ErrInvalidKey
	}
	return nil
}

// Batch tracks the images written for one request so they can be
// removed if the enclosing operation fails.
type Batch struct {
	storage *Storage
	mu      sync.Mutex
	keys    []string
}

func (s *Storage) NewBatch() *Batch {
	return &Batch{storage: s}
}

// Save stores the upload and records its key in the batch
func (b *Batch) Save(ctx context.Context, kind Kind, up Upload) (string, error) {
	key, err := b.storage.Save(ctx, kind, up)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.keys = append(b.keys, key)
	b.mu.Unlock()
	return key, nil
}

// Keys returns the keys written so far
func (b *Batch) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.keys...)
}

// Rollback deletes every image in the batch and empties it
func (b *Batch) Rollback(ctx context.Context) {
	b.mu.Lock()
	keys := b.keys
	b.keys = nil
	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}
	if err := b.storage.DeleteAll(ctx, keys); err != nil {
		log.Printf("Upload rollback incomplete: %v", err)
	}
}
