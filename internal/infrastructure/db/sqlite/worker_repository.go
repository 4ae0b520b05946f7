package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crewdb/crewd/internal/core/domain"
)

const timeLayout = time.RFC3339Nano

// WorkerRepository implements ports.WorkerRepository on SQLite.
type WorkerRepository struct {
	db *sql.DB
}

func NewWorkerRepository(db *sql.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

func (r *WorkerRepository) Add(ctx context.Context, w domain.Worker, ownerID int64) (*domain.Worker, error) {
	creationDate := time.Now().UTC().Truncate(24 * time.Hour)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO workers (name, coordinates_x, coordinates_y, creation_date, salary,
		                      start_date, end_date, position, organization_annual_turnover,
		                      organization_type, owner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.Name, w.Coordinates.X, w.Coordinates.Y, creationDate.Format(timeLayout),
		nullableInt64(w.Salary), w.StartDate.UTC().Format(timeLayout), nullableTime(w.EndDate),
		nullableString(string(w.Position)), nullableInt32(w.Organization.AnnualTurnover),
		string(w.Organization.Type), ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert worker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	stored := w.Clone()
	stored.ID = id
	stored.CreationDate = creationDate
	stored.OwnerID = ownerID
	return &stored, nil
}

func (r *WorkerRepository) Update(ctx context.Context, w domain.Worker, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE workers SET name = ?, coordinates_x = ?, coordinates_y = ?, salary = ?,
		        start_date = ?, end_date = ?, position = ?,
		        organization_annual_turnover = ?, organization_type = ?
		 WHERE id = ? AND owner_id = ?`,
		w.Name, w.Coordinates.X, w.Coordinates.Y, nullableInt64(w.Salary),
		w.StartDate.UTC().Format(timeLayout), nullableTime(w.EndDate),
		nullableString(string(w.Position)), nullableInt32(w.Organization.AnnualTurnover),
		string(w.Organization.Type), w.ID, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("update worker %d: %w", w.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *WorkerRepository) Delete(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM workers WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete worker %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *WorkerRepository) ClearByOwner(ctx context.Context, ownerID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM workers WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("clear workers for owner %d: %w", ownerID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

func (r *WorkerRepository) LoadAll(ctx context.Context) ([]domain.Worker, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, coordinates_x, coordinates_y, creation_date, salary,
		        start_date, end_date, position, organization_annual_turnover,
		        organization_type, owner_id
		 FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var workers []domain.Worker
	for rows.Next() {
		var (
			w              domain.Worker
			creationDate   string
			startDate      string
			salary         sql.NullInt64
			endDate        sql.NullString
			position       sql.NullString
			annualTurnover sql.NullInt32
			orgType        string
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.Coordinates.X, &w.Coordinates.Y,
			&creationDate, &salary, &startDate, &endDate, &position,
			&annualTurnover, &orgType, &w.OwnerID); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}

		if w.CreationDate, err = time.Parse(timeLayout, creationDate); err != nil {
			return nil, fmt.Errorf("parse creation_date of worker %d: %w", w.ID, err)
		}
		if w.StartDate, err = time.Parse(timeLayout, startDate); err != nil {
			return nil, fmt.Errorf("parse start_date of worker %d: %w", w.ID, err)
		}
		if endDate.Valid {
			t, err := time.Parse(timeLayout, endDate.String)
			if err != nil {
				return nil, fmt.Errorf("parse end_date of worker %d: %w", w.ID, err)
			}
			w.EndDate = &t
		}
		if salary.Valid {
			v := salary.Int64
			w.Salary = &v
		}
		if position.Valid {
			w.Position = domain.Position(position.String)
		}
		if annualTurnover.Valid {
			v := annualTurnover.Int32
			w.Organization.AnnualTurnover = &v
		}
		w.Organization.Type = domain.OrganizationType(orgType)

		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workers: %w", err)
	}
	return workers, nil
}

func (r *WorkerRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt32(v *int32) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}
