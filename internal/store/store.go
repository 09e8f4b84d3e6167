// Package store serializes access to one persisted collection.
//
// Reads share the lock; writes hold it exclusively for the whole
// read-modify-write cycle and run inside a single database transaction.
package store

import (
	"fmt"
	"log"
	"sync"

	"memberdir/internal/database"
)

// Store guards one collection (members, registration codes, ...)
type Store struct {
	name string
	db   *database.DB
	mu   sync.RWMutex
}

// New creates a store named for log messages
func New(name string, db *database.DB) *Store {
	return &Store{name: name, db: db}
}

// Name returns the collection name
func (s *Store) Name() string {
	return s.name
}

// Read runs fn under the shared lock
func (s *Store) Read(fn func(q database.DBTX) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.db)
}

// Write runs fn under the exclusive lock inside a transaction.
// The transaction commits only when fn returns nil.
func (s *Store) Write(fn func(q database.DBTX) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", s.name, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("%s: rollback failed: %v", s.name, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit: %w", s.name, err)
	}
	return nil
}
