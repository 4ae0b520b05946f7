// Package file implements the persistence ports on a single JSON snapshot
// file. Every mutation rewrites the snapshot atomically (temp file + rename),
// so a crash mid-write never leaves a torn store behind. Intended for
// single-node deployments without a database; the ownership contract is
// identical to the database backends.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crewdb/crewd/internal/core/domain"
)

// snapshot is the on-disk document.
type snapshot struct {
	NextWorkerID int64           `json:"next_worker_id"`
	NextUserID   int64           `json:"next_user_id"`
	Users        []fileUser      `json:"users"`
	Workers      []domain.Worker `json:"workers"`
}

// fileUser persists the hash, which domain.User deliberately excludes from json.
type fileUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Store is a file-backed implementation of both ports.WorkerRepository and
// ports.UserRepository. The id counters live in the snapshot itself, so ids
// survive restarts and are never reused.
type Store struct {
	mu   sync.Mutex
	path string
	snap snapshot
}

// Open loads the snapshot at path, creating an empty one (and its directory)
// if the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path, snap: snapshot{NextWorkerID: 1, NextUserID: 1}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, &s.snap); err != nil {
			return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
		}
		// Defend the no-reuse invariant against hand-edited snapshots.
		for _, w := range s.snap.Workers {
			if w.ID >= s.snap.NextWorkerID {
				s.snap.NextWorkerID = w.ID + 1
			}
		}
		for _, u := range s.snap.Users {
			if u.ID >= s.snap.NextUserID {
				s.snap.NextUserID = u.ID + 1
			}
		}
	}
	return s, nil
}

// flushLocked writes the snapshot atomically. Callers hold s.mu (or own the
// store exclusively during Open).
func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(&s.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Store) Add(_ context.Context, w domain.Worker, ownerID int64) (*domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := w.Clone()
	stored.ID = s.snap.NextWorkerID
	stored.CreationDate = time.Now().UTC().Truncate(24 * time.Hour)
	stored.OwnerID = ownerID

	s.snap.NextWorkerID++
	s.snap.Workers = append(s.snap.Workers, stored.Clone())
	if err := s.flushLocked(); err != nil {
		// Roll the in-memory snapshot back so a retry does not skip an id
		// that never reached disk.
		s.snap.Workers = s.snap.Workers[:len(s.snap.Workers)-1]
		s.snap.NextWorkerID--
		return nil, err
	}
	return &stored, nil
}

func (s *Store) Update(_ context.Context, w domain.Worker, ownerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.snap.Workers {
		if s.snap.Workers[i].ID == w.ID && s.snap.Workers[i].OwnerID == ownerID {
			prev := s.snap.Workers[i]
			s.snap.Workers[i] = w.Clone()
			if err := s.flushLocked(); err != nil {
				s.snap.Workers[i] = prev
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) Delete(_ context.Context, id, ownerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.snap.Workers {
		if s.snap.Workers[i].ID == id && s.snap.Workers[i].OwnerID == ownerID {
			prev := s.snap.Workers
			s.snap.Workers = append(append([]domain.Worker{}, prev[:i]...), prev[i+1:]...)
			if err := s.flushLocked(); err != nil {
				s.snap.Workers = prev
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ClearByOwner(_ context.Context, ownerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snap.Workers
	kept := make([]domain.Worker, 0, len(prev))
	for _, w := range prev {
		if w.OwnerID != ownerID {
			kept = append(kept, w)
		}
	}
	removed := int64(len(prev) - len(kept))
	if removed == 0 {
		return 0, nil
	}
	s.snap.Workers = kept
	if err := s.flushLocked(); err != nil {
		s.snap.Workers = prev
		return 0, err
	}
	return removed, nil
}

func (s *Store) LoadAll(_ context.Context) ([]domain.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Worker, len(s.snap.Workers))
	for i, w := range s.snap.Workers {
		out[i] = w.Clone()
	}
	return out, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := os.Stat(s.path)
	return err
}

func (s *Store) Create(_ context.Context, username, passwordHash string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.snap.Users {
		if u.Username == username {
			return nil, domain.ErrUserExists
		}
	}
	user := fileUser{ID: s.snap.NextUserID, Username: username, PasswordHash: passwordHash}
	s.snap.NextUserID++
	s.snap.Users = append(s.snap.Users, user)
	if err := s.flushLocked(); err != nil {
		s.snap.Users = s.snap.Users[:len(s.snap.Users)-1]
		s.snap.NextUserID--
		return nil, err
	}
	return &domain.User{ID: user.ID, Username: user.Username, PasswordHash: user.PasswordHash}, nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.snap.Users {
		if u.Username == username {
			return &domain.User{ID: u.ID, Username: u.Username, PasswordHash: u.PasswordHash}, nil
		}
	}
	return nil, domain.ErrUserNotFound
}
