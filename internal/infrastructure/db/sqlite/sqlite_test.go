package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/crewdb/crewd/internal/core/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	u, err := NewUserRepository(db).Create(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u.ID
}

func testWorker(name string) domain.Worker {
	salary := int64(25000)
	end := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	turnover := int32(100)
	return domain.Worker{
		Name:        name,
		Coordinates: domain.Coordinates{X: 1.25, Y: -5.5},
		Salary:      &salary,
		StartDate:   time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC),
		EndDate:     &end,
		Position:    domain.PositionCook,
		Organization: domain.Organization{
			AnnualTurnover: &turnover,
			Type:           domain.OrgOpenJointStockCompany,
		},
	}
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func TestUserRepository_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)

	created, err := repo.Create(context.Background(), "alice", "bcrypt-hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created user must have an id")
	}

	found, err := repo.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != created.ID || found.PasswordHash != "bcrypt-hash" {
		t.Errorf("found user differs: %+v", found)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := openTestDB(t)
	repo := NewUserRepository(db)

	if _, err := repo.Create(context.Background(), "alice", "h1"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := repo.Create(context.Background(), "alice", "h2")
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := NewUserRepository(db).FindByUsername(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

func TestWorkerRepository_AddAndLoadAll(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "alice")
	repo := NewWorkerRepository(db)

	stored, err := repo.Add(context.Background(), testWorker("full"), owner)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if stored.ID == 0 {
		t.Fatal("add must assign an id")
	}
	if stored.OwnerID != owner {
		t.Errorf("owner not recorded: %d", stored.OwnerID)
	}

	// A minimal worker exercises every nullable column.
	minimal := domain.Worker{
		Name:         "minimal",
		Coordinates:  domain.Coordinates{X: 0, Y: 0},
		StartDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Organization: domain.Organization{Type: domain.OrgPublic},
	}
	if _, err := repo.Add(context.Background(), minimal, owner); err != nil {
		t.Fatalf("add minimal: %v", err)
	}

	loaded, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(loaded))
	}

	full := loaded[0]
	if full.Name != "full" || *full.Salary != 25000 || full.Position != domain.PositionCook {
		t.Errorf("full worker did not round-trip: %+v", full)
	}
	if full.EndDate == nil || !full.EndDate.Equal(*testWorker("").EndDate) {
		t.Errorf("end date did not round-trip: %v", full.EndDate)
	}
	if *full.Organization.AnnualTurnover != 100 {
		t.Errorf("annual turnover did not round-trip: %v", full.Organization.AnnualTurnover)
	}
	if !full.StartDate.Equal(testWorker("").StartDate) {
		t.Errorf("start date did not round-trip: %v", full.StartDate)
	}

	min := loaded[1]
	if min.Salary != nil || min.EndDate != nil || min.Position != "" || min.Organization.AnnualTurnover != nil {
		t.Errorf("null columns must load as unset: %+v", min)
	}
}

func TestWorkerRepository_IDsNeverReused(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "alice")
	repo := NewWorkerRepository(db)

	first, _ := repo.Add(context.Background(), testWorker("a"), owner)
	if ok, err := repo.Delete(context.Background(), first.ID, owner); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}

	second, err := repo.Add(context.Background(), testWorker("b"), owner)
	if err != nil {
		t.Fatalf("add after delete: %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("id %d reused after deleting %d", second.ID, first.ID)
	}
}

func TestWorkerRepository_UpdateScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	repo := NewWorkerRepository(db)

	stored, _ := repo.Add(context.Background(), testWorker("original"), alice)

	replacement := testWorker("hijacked")
	replacement.ID = stored.ID
	ok, err := repo.Update(context.Background(), replacement, bob)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if ok {
		t.Fatal("an update by a non-owner must match no rows")
	}

	replacement.Name = "renamed"
	ok, err = repo.Update(context.Background(), replacement, alice)
	if err != nil || !ok {
		t.Fatalf("owner update: ok=%v err=%v", ok, err)
	}

	loaded, _ := repo.LoadAll(context.Background())
	if loaded[0].Name != "renamed" {
		t.Errorf("update not applied: %q", loaded[0].Name)
	}
}

func TestWorkerRepository_DeleteScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	repo := NewWorkerRepository(db)

	stored, _ := repo.Add(context.Background(), testWorker("a"), alice)

	if ok, _ := repo.Delete(context.Background(), stored.ID, bob); ok {
		t.Fatal("a delete by a non-owner must match no rows")
	}
	if ok, _ := repo.Delete(context.Background(), stored.ID, alice); !ok {
		t.Fatal("the owner must be able to delete")
	}
}

func TestWorkerRepository_ClearByOwner(t *testing.T) {
	db := openTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	repo := NewWorkerRepository(db)

	repo.Add(context.Background(), testWorker("a1"), alice)
	repo.Add(context.Background(), testWorker("a2"), alice)
	repo.Add(context.Background(), testWorker("b1"), bob)

	removed, err := repo.ClearByOwner(context.Background(), alice)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}

	loaded, _ := repo.LoadAll(context.Background())
	if len(loaded) != 1 || loaded[0].OwnerID != bob {
		t.Errorf("bob's worker must survive: %+v", loaded)
	}
}

func TestWorkerRepository_ChecksEnforced(t *testing.T) {
	db := openTestDB(t)
	owner := createTestUser(t, db, "alice")
	repo := NewWorkerRepository(db)

	bad := testWorker("too-low")
	bad.Coordinates.Y = -80
	if _, err := repo.Add(context.Background(), bad, owner); err == nil {
		t.Error("the y lower bound must be enforced at the schema level too")
	}

	if _, err := repo.Add(context.Background(), testWorker("orphan"), 99999); err == nil {
		t.Error("a worker must reference an existing user")
	}
}
