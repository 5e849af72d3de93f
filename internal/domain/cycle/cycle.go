// internal/domain/cycle/cycle.go
package cycle

import (
	"time"

	"github.com/google/uuid"
)

// Record is one menstrual cycle of a user, anchored by its period start.
// Corresponds to the 'cycles' table.
type Record struct {
	ID                string
	UserID            string
	PeriodStart       time.Time  // Immutable after creation
	HefsekTahara      *time.Time // Set once, end-of-bleeding declaration
	ShivaNekiyimStart *time.Time
	MikvahDate        *time.Time
	Notes             string
	PrivateNotes      string
	IsDeleted         bool
	DeletedAt         *time.Time
	Version           int64 // Optimistic concurrency token, bumped on every update
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewRecord builds a fresh cycle record. Timestamps come from the caller's clock.
func NewRecord(userID string, periodStart time.Time, notes, privateNotes string, now time.Time) *Record {
	return &Record{
		ID:           uuid.NewString(),
		UserID:       userID,
		PeriodStart:  periodStart,
		Notes:        notes,
		PrivateNotes: privateNotes,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Status returns the derived phase of the record.
func (r *Record) Status() Status {
	return DeriveStatus(r)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *Record) Clone() *Record {
	c := *r
	c.HefsekTahara = cloneTime(r.HefsekTahara)
	c.ShivaNekiyimStart = cloneTime(r.ShivaNekiyimStart)
	c.MikvahDate = cloneTime(r.MikvahDate)
	c.DeletedAt = cloneTime(r.DeletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
