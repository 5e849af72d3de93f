// Package memory holds in-process repositories used with STORAGE_DRIVER=memory
// and by service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"taharah_tracker/internal/domain/cycle"
)

type CycleRepository struct {
	mu       sync.Mutex
	records  map[string]*cycle.Record
	activity []*cycle.ActivityLog
}

func NewCycleRepository() *CycleRepository {
	return &CycleRepository{records: make(map[string]*cycle.Record)}
}

func (r *CycleRepository) Create(_ context.Context, rec *cycle.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.UserID == rec.UserID && !existing.IsDeleted && existing.PeriodStart.Equal(rec.PeriodStart) {
			return fmt.Errorf("%w: a cycle already starts at %s", cycle.ErrInvalidSequence, rec.PeriodStart.Format(time.RFC3339))
		}
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

func (r *CycleRepository) GetByID(_ context.Context, id string) (*cycle.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, cycle.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *CycleRepository) ListByUser(_ context.Context, userID string) ([]*cycle.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*cycle.Record, 0)
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.IsDeleted {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

func (r *CycleRepository) Update(_ context.Context, rec *cycle.Record, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[rec.ID]
	if !ok {
		return cycle.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return cycle.ErrConflict
	}
	rec.Version = expectedVersion + 1
	r.records[rec.ID] = rec.Clone()
	return nil
}

func (r *CycleRepository) DeleteExpired(_ context.Context, createdBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if !rec.IsDeleted && rec.CreatedAt.Before(createdBefore) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *CycleRepository) DeleteSoftDeleted(_ context.Context, deletedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.IsDeleted && rec.DeletedAt != nil && rec.DeletedAt.Before(deletedBefore) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *CycleRepository) AppendActivity(_ context.Context, a *cycle.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.activity = append(r.activity, &cp)
	return nil
}

// ListActivity returns the newest entries first.
func (r *CycleRepository) ListActivity(_ context.Context, userID string, limit int) ([]*cycle.ActivityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*cycle.ActivityLog, 0)
	for i := len(r.activity) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if a := r.activity[i]; a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *CycleRepository) DeleteActivityBefore(_ context.Context, createdBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.activity[:0]
	var n int64
	for _, a := range r.activity {
		if a.CreatedAt.Before(createdBefore) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.activity = kept
	return n, nil
}
