package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taharah_tracker/internal/domain/cycle"
)

type PostgresCycleRepository struct {
	db *sql.DB
}

func NewPostgresCycleRepository(db *sql.DB) *PostgresCycleRepository {
	return &PostgresCycleRepository{db: db}
}

const cycleColumns = `id, user_id, period_start, hefsek_tahara, shiva_nekiyim_start, mikvah_date,
               notes, private_notes, is_deleted, deleted_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*cycle.Record, error) {
	r := &cycle.Record{}
	var hefsek, shiva, mikvah, deletedAt sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.PeriodStart, &hefsek, &shiva, &mikvah,
		&r.Notes, &r.PrivateNotes, &r.IsDeleted, &deletedAt, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.HefsekTahara = timePtr(hefsek)
	r.ShivaNekiyimStart = timePtr(shiva)
	r.MikvahDate = timePtr(mikvah)
	r.DeletedAt = timePtr(deletedAt)
	return r, nil
}

func (r *PostgresCycleRepository) Create(ctx context.Context, rec *cycle.Record) error {
	query := `INSERT INTO cycles (` + cycleColumns + `)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.UserID, rec.PeriodStart,
		nullTime(rec.HefsekTahara), nullTime(rec.ShivaNekiyimStart), nullTime(rec.MikvahDate),
		rec.Notes, rec.PrivateNotes, rec.IsDeleted, nullTime(rec.DeletedAt), rec.Version, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "cycles_user_period_start_key") {
			return fmt.Errorf("%w: a cycle already starts at %s", cycle.ErrInvalidSequence, rec.PeriodStart.Format(time.RFC3339))
		}
		return fmt.Errorf("error creating cycle: %w", err)
	}
	return nil
}

func (r *PostgresCycleRepository) GetByID(ctx context.Context, id string) (*cycle.Record, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1`
	rec, err := scanCycle(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cycle.ErrNotFound
		}
		return nil, fmt.Errorf("error getting cycle by ID: %w", err)
	}
	return rec, nil
}

func (r *PostgresCycleRepository) ListByUser(ctx context.Context, userID string) ([]*cycle.Record, error) {
	query := `SELECT ` + cycleColumns + `
               FROM cycles WHERE user_id = $1 AND NOT is_deleted ORDER BY period_start`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing cycles for user: %w", err)
	}
	defer rows.Close()

	records := make([]*cycle.Record, 0)
	for rows.Next() {
		rec, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning cycle: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}
	return records, nil
}

// Update writes rec only if the stored version still equals expectedVersion.
// On success rec.Version holds the new version.
func (r *PostgresCycleRepository) Update(ctx context.Context, rec *cycle.Record, expectedVersion int64) error {
	query := `UPDATE cycles
               SET hefsek_tahara = $1, shiva_nekiyim_start = $2, mikvah_date = $3,
                   notes = $4, private_notes = $5, is_deleted = $6, deleted_at = $7,
                   updated_at = $8, version = version + 1
               WHERE id = $9 AND version = $10
               RETURNING version`
	err := r.db.QueryRowContext(ctx, query,
		nullTime(rec.HefsekTahara), nullTime(rec.ShivaNekiyimStart), nullTime(rec.MikvahDate),
		rec.Notes, rec.PrivateNotes, rec.IsDeleted, nullTime(rec.DeletedAt),
		rec.UpdatedAt, rec.ID, expectedVersion,
	).Scan(&rec.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("error updating cycle: %w", err)
	}

	// Nothing matched: either the row is gone or another writer got there first.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM cycles WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("error checking cycle existence: %w", err)
	}
	if !exists {
		return cycle.ErrNotFound
	}
	return cycle.ErrConflict
}

func (r *PostgresCycleRepository) DeleteExpired(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cycles WHERE NOT is_deleted AND created_at < $1`, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("error deleting expired cycles: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresCycleRepository) DeleteSoftDeleted(ctx context.Context, deletedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cycles WHERE is_deleted AND deleted_at < $1`, deletedBefore)
	if err != nil {
		return 0, fmt.Errorf("error deleting soft-deleted cycles: %w", err)
	}
	return res.RowsAffected()
}

// --- Activity log ---

func (r *PostgresCycleRepository) AppendActivity(ctx context.Context, a *cycle.ActivityLog) error {
	query := `INSERT INTO activity_logs (id, user_id, cycle_id, action, detail, created_at)
               VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.UserID, a.CycleID, a.Action, a.Detail, a.CreatedAt); err != nil {
		return fmt.Errorf("error appending activity: %w", err)
	}
	return nil
}

func (r *PostgresCycleRepository) ListActivity(ctx context.Context, userID string, limit int) ([]*cycle.ActivityLog, error) {
	query := `SELECT id, user_id, cycle_id, action, detail, created_at
               FROM activity_logs WHERE user_id = $1
               ORDER BY created_at DESC
               LIMIT $2`
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := r.db.QueryContext(ctx, query, userID, lim) // NULL means no limit
	if err != nil {
		return nil, fmt.Errorf("error listing activity: %w", err)
	}
	defer rows.Close()

	logs := make([]*cycle.ActivityLog, 0)
	for rows.Next() {
		a := &cycle.ActivityLog{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.CycleID, &a.Action, &a.Detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning activity: %w", err)
		}
		logs = append(logs, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity: %w", err)
	}
	return logs, nil
}

func (r *PostgresCycleRepository) DeleteActivityBefore(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activity_logs WHERE created_at < $1`, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("error deleting activity: %w", err)
	}
	return res.RowsAffected()
}
