package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/crewdb/crewd/internal/core/domain"
	"github.com/crewdb/crewd/internal/core/ports"
	"github.com/crewdb/crewd/internal/ops/metrics"
)

// CollectionStore holds the canonical in-memory collection of workers,
// mirrored against a WorkerRepository. Every operation, reads included, runs
// under a single mutex: the backing slice is mutated in place, so lock-free
// reads would observe torn state.
//
// Mutations are durable-first. The repository call happens before the
// in-memory change, and a repository failure leaves memory untouched. When the
// durable effect and the in-memory effect of a remove or clear disagree, the
// store repairs itself with a full reload from the repository.
type CollectionStore struct {
	mu      sync.Mutex
	workers []domain.Worker

	repo   ports.WorkerRepository
	log    zerolog.Logger
	initAt time.Time
}

// CollectionInfo is the result of the info command.
type CollectionInfo struct {
	Kind          string
	InitializedAt time.Time
	Size          int
}

// NewCollectionStore creates an empty store. Call Load before serving requests.
func NewCollectionStore(repo ports.WorkerRepository, log zerolog.Logger) *CollectionStore {
	return &CollectionStore{
		repo:   repo,
		log:    log.With().Str("component", "collection_store").Logger(),
		initAt: time.Now().UTC(),
	}
}

// Load replaces the entire in-memory contents from the repository. Called at
// startup and whenever a desync is detected.
func (s *CollectionStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

// reloadLocked is the reconciliation primitive. Callers must hold s.mu.
func (s *CollectionStore) reloadLocked(ctx context.Context) error {
	loaded, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	s.workers = loaded
	metrics.CollectionSize.Set(float64(len(s.workers)))
	s.log.Info().Int("count", len(loaded)).Msg("collection loaded from repository")
	return nil
}

// Add persists the worker and, on success, mirrors the repository-assigned
// record (id, creation date, owner) into memory.
func (s *CollectionStore) Add(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, error) {
	if err := domain.ValidateWorker(&w); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.repo.Add(ctx, w, ownerID)
	if err != nil {
		s.log.Warn().Err(err).Int64("owner_id", ownerID).Msg("repository add failed")
		return nil, fmt.Errorf("%w: add worker: %w", domain.ErrStorage, err)
	}
	s.workers = append(s.workers, stored.Clone())
	metrics.CollectionSize.Set(float64(len(s.workers)))
	s.log.Info().Int64("worker_id", stored.ID).Int64("owner_id", ownerID).Msg("worker added")
	return stored, nil
}

// Update overwrites the mutable fields of the worker with the given id,
// preserving id, creation date and owner. It fails closed: a missing record
// yields ErrWorkerNotFound, a record owned by someone else yields ErrNotOwner,
// and nothing is changed unless the repository accepted the update first.
func (s *CollectionStore) Update(ctx context.Context, id int64, data domain.Worker, callerID int64) (*domain.Worker, error) {
	if err := domain.ValidateWorker(&data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByIDLocked(id)
	if idx < 0 {
		return nil, domain.ErrWorkerNotFound
	}
	existing := &s.workers[idx]
	if existing.OwnerID != callerID {
		s.log.Warn().Int64("worker_id", id).Int64("caller_id", callerID).
			Int64("owner_id", existing.OwnerID).Msg("update denied: caller is not the owner")
		return nil, domain.ErrNotOwner
	}

	data.ID = id
	data.CreationDate = existing.CreationDate
	data.OwnerID = existing.OwnerID

	ok, err := s.repo.Update(ctx, data, callerID)
	if err != nil {
		s.log.Warn().Err(err).Int64("worker_id", id).Msg("repository update failed")
		return nil, fmt.Errorf("%w: update worker %d: %w", domain.ErrStorage, id, err)
	}
	if !ok {
		// Memory said the row exists and is ours, the repository disagreed.
		// Trust the repository and resync.
		s.log.Error().Int64("worker_id", id).Msg("update affected no durable row, reconciling")
		metrics.ReconciliationsTotal.Inc()
		if rerr := s.reloadLocked(ctx); rerr != nil {
			s.log.Error().Err(rerr).Msg("reconciliation reload failed")
		}
		return nil, domain.ErrWorkerNotFound
	}

	*existing = data.Clone()
	s.log.Info().Int64("worker_id", id).Int64("caller_id", callerID).Msg("worker updated")
	updated := existing.Clone()
	return &updated, nil
}

// RemoveByID deletes the worker with the given id, ownership-checked. The
// returned flag reports whether a reconciliation reload was performed because
// the durable delete succeeded but the in-memory removal found nothing.
func (s *CollectionStore) RemoveByID(ctx context.Context, id, callerID int64) (reconciled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByIDLocked(id)
	if idx < 0 {
		return false, domain.ErrWorkerNotFound
	}
	if s.workers[idx].OwnerID != callerID {
		s.log.Warn().Int64("worker_id", id).Int64("caller_id", callerID).Msg("remove denied: caller is not the owner")
		return false, domain.ErrNotOwner
	}

	ok, err := s.repo.Delete(ctx, id, callerID)
	if err != nil {
		s.log.Warn().Err(err).Int64("worker_id", id).Msg("repository delete failed")
		return false, fmt.Errorf("%w: delete worker %d: %w", domain.ErrStorage, id, err)
	}
	if !ok {
		return false, domain.ErrWorkerNotFound
	}

	// The index may have shifted only if something mutated the slice between
	// the lookup and here, which the lock forbids. Still verify before cutting.
	if idx < len(s.workers) && s.workers[idx].ID == id {
		s.workers = slices.Delete(s.workers, idx, idx+1)
		metrics.CollectionSize.Set(float64(len(s.workers)))
		s.log.Info().Int64("worker_id", id).Int64("caller_id", callerID).Msg("worker removed")
		return false, nil
	}

	s.log.Error().Int64("worker_id", id).Msg("worker deleted durably but missing in memory, reconciling")
	metrics.ReconciliationsTotal.Inc()
	if rerr := s.reloadLocked(ctx); rerr != nil {
		s.log.Error().Err(rerr).Msg("reconciliation reload failed")
	}
	return true, nil
}

// Clear removes every worker owned by callerID. Returns the number of records
// removed durably and whether a count mismatch forced a reconciliation reload.
func (s *CollectionStore) Clear(ctx context.Context, callerID int64) (removed int64, reconciled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected, err := s.repo.ClearByOwner(ctx, callerID)
	if err != nil {
		s.log.Warn().Err(err).Int64("caller_id", callerID).Msg("repository clear failed")
		return 0, false, fmt.Errorf("%w: clear workers: %w", domain.ErrStorage, err)
	}

	before := len(s.workers)
	s.workers = slices.DeleteFunc(s.workers, func(w domain.Worker) bool {
		return w.OwnerID == callerID
	})
	removedFromMemory := int64(before - len(s.workers))
	metrics.CollectionSize.Set(float64(len(s.workers)))
	s.log.Info().Int64("caller_id", callerID).Int64("db_removed", affected).
		Int64("memory_removed", removedFromMemory).Msg("owner's workers cleared")

	if affected != removedFromMemory {
		s.log.Warn().Int64("db_removed", affected).Int64("memory_removed", removedFromMemory).
			Msg("clear counts disagree, reconciling")
		metrics.ReconciliationsTotal.Inc()
		if rerr := s.reloadLocked(ctx); rerr != nil {
			s.log.Error().Err(rerr).Msg("reconciliation reload failed")
		}
		return affected, true, nil
	}
	return affected, false, nil
}

// AddIfMax inserts the candidate only when the collection is empty or the
// candidate is strictly greater than the current maximum by natural order
// (id, with an unset id sorting below everything). A tie never inserts.
func (s *CollectionStore) AddIfMax(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, bool, error) {
	if err := domain.ValidateWorker(&w); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if len(s.workers) > 0 {
		max := slices.MaxFunc(s.workers, domain.CompareByID)
		if domain.CompareByID(w, max) <= 0 {
			s.mu.Unlock()
			return nil, false, nil
		}
	}
	stored, err := s.addLocked(ctx, w, ownerID)
	s.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// AddIfMin mirrors AddIfMax for the strict minimum.
func (s *CollectionStore) AddIfMin(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, bool, error) {
	if err := domain.ValidateWorker(&w); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	if len(s.workers) > 0 {
		min := slices.MinFunc(s.workers, domain.CompareByID)
		if domain.CompareByID(w, min) >= 0 {
			s.mu.Unlock()
			return nil, false, nil
		}
	}
	stored, err := s.addLocked(ctx, w, ownerID)
	s.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// addLocked persists and mirrors without re-validating. Callers hold s.mu.
func (s *CollectionStore) addLocked(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, error) {
	stored, err := s.repo.Add(ctx, w, ownerID)
	if err != nil {
		s.log.Warn().Err(err).Int64("owner_id", ownerID).Msg("repository add failed")
		return nil, fmt.Errorf("%w: add worker: %w", domain.ErrStorage, err)
	}
	s.workers = append(s.workers, stored.Clone())
	metrics.CollectionSize.Set(float64(len(s.workers)))
	s.log.Info().Int64("worker_id", stored.ID).Int64("owner_id", ownerID).Msg("worker added")
	return stored, nil
}

// SortedDescending returns all workers ordered by id, highest first.
func (s *CollectionStore) SortedDescending() []domain.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.cloneAllLocked()
	slices.SortFunc(out, func(a, b domain.Worker) int { return domain.CompareByID(b, a) })
	return out
}

// SortedByLocation returns all workers ordered by coordinates, x then y.
func (s *CollectionStore) SortedByLocation() []domain.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.cloneAllLocked()
	slices.SortFunc(out, domain.CompareByLocation)
	return out
}

// SalariesAscending returns every set salary, lowest first. Workers without a
// salary are excluded.
func (s *CollectionStore) SalariesAscending() []int64 {
	out := s.salaries()
	slices.Sort(out)
	return out
}

// SalariesDescending returns every set salary, highest first.
func (s *CollectionStore) SalariesDescending() []int64 {
	out := s.salaries()
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// Info describes the collection for the info command.
func (s *CollectionStore) Info() CollectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CollectionInfo{
		Kind:          "in-memory slice, mirrored to durable storage",
		InitializedAt: s.initAt,
		Size:          len(s.workers),
	}
}

// Size returns the current number of workers.
func (s *CollectionStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

func (s *CollectionStore) salaries() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.workers))
	for _, w := range s.workers {
		if w.Salary != nil {
			out = append(out, *w.Salary)
		}
	}
	return out
}

func (s *CollectionStore) cloneAllLocked() []domain.Worker {
	out := make([]domain.Worker, len(s.workers))
	for i, w := range s.workers {
		out[i] = w.Clone()
	}
	return out
}

func (s *CollectionStore) indexByIDLocked(id int64) int {
	return slices.IndexFunc(s.workers, func(w domain.Worker) bool { return w.ID == id })
}
