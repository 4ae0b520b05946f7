package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/crewdb/crewd/internal/core/domain"
)

const workersCollection = "workers"

// WorkerRepository implements ports.WorkerRepository on MongoDB. Documents
// carry a numeric _id allocated from the counters collection so ids stay
// monotonically increasing and are never reused.
type WorkerRepository struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func NewWorkerRepository(db *mongo.Database) *WorkerRepository {
	return &WorkerRepository{db: db, coll: db.Collection(workersCollection)}
}

type mongoWorker struct {
	ID             int64      `bson:"_id"`
	Name           string     `bson:"name"`
	CoordX         float64    `bson:"coord_x"`
	CoordY         float64    `bson:"coord_y"`
	CreationDate   time.Time  `bson:"creation_date"`
	Salary         *int64     `bson:"salary,omitempty"`
	StartDate      time.Time  `bson:"start_date"`
	EndDate        *time.Time `bson:"end_date,omitempty"`
	Position       string     `bson:"position,omitempty"`
	AnnualTurnover *int32     `bson:"annual_turnover,omitempty"`
	OrgType        string     `bson:"org_type"`
	OwnerID        int64      `bson:"owner_id"`
}

func toDoc(w domain.Worker) mongoWorker {
	return mongoWorker{
		ID:             w.ID,
		Name:           w.Name,
		CoordX:         float64(w.Coordinates.X),
		CoordY:         w.Coordinates.Y,
		CreationDate:   w.CreationDate,
		Salary:         w.Salary,
		StartDate:      w.StartDate,
		EndDate:        w.EndDate,
		Position:       string(w.Position),
		AnnualTurnover: w.Organization.AnnualTurnover,
		OrgType:        string(w.Organization.Type),
		OwnerID:        w.OwnerID,
	}
}

func fromDoc(d mongoWorker) domain.Worker {
	return domain.Worker{
		ID:           d.ID,
		Name:         d.Name,
		Coordinates:  domain.Coordinates{X: float32(d.CoordX), Y: d.CoordY},
		CreationDate: d.CreationDate.UTC(),
		Salary:       d.Salary,
		StartDate:    d.StartDate.UTC(),
		EndDate:      utcPtr(d.EndDate),
		Position:     domain.Position(d.Position),
		Organization: domain.Organization{
			AnnualTurnover: d.AnnualTurnover,
			Type:           domain.OrganizationType(d.OrgType),
		},
		OwnerID: d.OwnerID,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r *WorkerRepository) Add(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, error) {
	id, err := nextSequence(ctx, r.db, "worker_id")
	if err != nil {
		return nil, err
	}

	stored := w.Clone()
	stored.ID = id
	stored.CreationDate = time.Now().UTC().Truncate(24 * time.Hour)
	stored.OwnerID = ownerID

	if _, err := r.coll.InsertOne(ctx, toDoc(stored)); err != nil {
		return nil, fmt.Errorf("insert worker: %w", err)
	}
	return &stored, nil
}

func (r *WorkerRepository) Update(ctx context.Context, w domain.Worker, ownerID int64) (bool, error) {
	doc := toDoc(w)
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": w.ID, "owner_id": ownerID},
		bson.M{"$set": bson.M{
			"name":            doc.Name,
			"coord_x":         doc.CoordX,
			"coord_y":         doc.CoordY,
			"salary":          doc.Salary,
			"start_date":      doc.StartDate,
			"end_date":        doc.EndDate,
			"position":        doc.Position,
			"annual_turnover": doc.AnnualTurnover,
			"org_type":        doc.OrgType,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("update worker %d: %w", w.ID, err)
	}
	return res.MatchedCount > 0, nil
}

func (r *WorkerRepository) Delete(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "owner_id": ownerID})
	if err != nil {
		return false, fmt.Errorf("delete worker %d: %w", id, err)
	}
	return res.DeletedCount > 0, nil
}

func (r *WorkerRepository) ClearByOwner(ctx context.Context, ownerID int64) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return 0, fmt.Errorf("clear workers for owner %d: %w", ownerID, err)
	}
	return res.DeletedCount, nil
}

func (r *WorkerRepository) LoadAll(ctx context.Context) ([]domain.Worker, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer cur.Close(ctx)

	var workers []domain.Worker
	for cur.Next(ctx) {
		var doc mongoWorker
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode worker: %w", err)
		}
		workers = append(workers, fromDoc(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate workers: %w", err)
	}
	return workers, nil
}

func (r *WorkerRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}
