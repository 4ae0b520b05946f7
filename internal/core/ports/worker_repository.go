package ports

import (
	"context"

	"github.com/crewdb/crewd/internal/core/domain"
)

// WorkerRepository is the durable side of the collection. Implementations
// enforce ownership at the storage layer: Update and Delete only affect rows
// matching both id and owner, and report a false match rather than an error
// when nothing qualifies.
type WorkerRepository interface {
	// Add persists a new worker, assigning id and creation date, and returns
	// the stored record with OwnerID set.
	Add(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, error)

	// Update overwrites the mutable fields of the worker with w.ID, provided
	// the row is owned by ownerID. Returns false when no such row matched.
	Update(ctx context.Context, w domain.Worker, ownerID int64) (bool, error)

	// Delete removes the worker with the given id if owned by ownerID.
	// Returns false when no such row matched.
	Delete(ctx context.Context, id, ownerID int64) (bool, error)

	// ClearByOwner removes every worker owned by ownerID and returns the
	// number of rows removed.
	ClearByOwner(ctx context.Context, ownerID int64) (int64, error)

	// LoadAll materializes the full durable contents, used at startup and on
	// reconciliation.
	LoadAll(ctx context.Context) ([]domain.Worker, error)

	// Ping reports whether the durable store is reachable.
	Ping(ctx context.Context) error
}

// UserRepository persists credentials.
type UserRepository interface {
	// Create stores a new user and returns it with the assigned id.
	// Returns domain.ErrUserExists on a duplicate username.
	Create(ctx context.Context, username, passwordHash string) (*domain.User, error)

	// FindByUsername returns the stored user, hash included, or
	// domain.ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}
