// internal/domain/cycle/status.go
package cycle

import (
	"fmt"
	"time"

	"taharah_tracker/internal/domain/onah"
)

// Status is the derived phase of a cycle. It is never stored.
type Status string

const (
	StatusNiddah       Status = "niddah"
	StatusShivaNekiyim Status = "shiva_nekiyim"
	StatusCompleted    Status = "completed"
)

// rank orders statuses so callers can assert progress never regresses.
func (s Status) rank() int {
	switch s {
	case StatusShivaNekiyim:
		return 1
	case StatusCompleted:
		return 2
	default:
		return 0
	}
}

// Before reports whether s is an earlier phase than other.
func (s Status) Before(other Status) bool {
	return s.rank() < other.rank()
}

// EventType is a user-entered milestone within a cycle.
type EventType string

const (
	EventHefsekTahara      EventType = "hefsek_tahara"
	EventShivaNekiyimStart EventType = "shiva_nekiyim_start"
	EventMikvah            EventType = "mikvah"
)

// ParseEventType validates an event name coming from a transport layer.
func ParseEventType(s string) (EventType, error) {
	switch ev := EventType(s); ev {
	case EventHefsekTahara, EventShivaNekiyimStart, EventMikvah:
		return ev, nil
	}
	return "", fmt.Errorf("%w: unknown event %q", ErrInvalidSequence, s)
}

// ShivaNekiyimDays is the number of clean days before immersion.
const ShivaNekiyimDays = 7

// Policy carries the per-user inputs the state machine needs.
type Policy struct {
	MinimumNiddahDays int
	Location          *time.Location
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// DeriveStatus computes the phase from the record's timestamps alone.
// A hefsek tahara without clean days begun is still niddah.
func DeriveStatus(r *Record) Status {
	switch {
	case r.MikvahDate != nil:
		return StatusCompleted
	case r.ShivaNekiyimStart != nil:
		return StatusShivaNekiyim
	default:
		return StatusNiddah
	}
}

// ApplyEvent validates and records ev at ts on a copy of r. The input record is
// never mutated; on error nothing is returned but the reason.
func ApplyEvent(r *Record, ev EventType, ts time.Time, p Policy, now time.Time) (*Record, Status, error) {
	loc := p.location()
	next := r.Clone()

	switch ev {
	case EventHefsekTahara:
		if r.HefsekTahara != nil {
			return nil, "", fmt.Errorf("%w: hefsek tahara already recorded", ErrInvalidSequence)
		}
		if ts.Before(r.PeriodStart) {
			return nil, "", fmt.Errorf("%w: hefsek tahara cannot precede period start", ErrInvalidSequence)
		}
		if onah.DaysBetween(onah.Date(r.PeriodStart, loc), onah.Date(ts, loc)) < p.MinimumNiddahDays {
			return nil, "", fmt.Errorf("%w: hefsek tahara must be at least %d days after period start", ErrPolicyViolation, p.MinimumNiddahDays)
		}
		next.HefsekTahara = &ts

	case EventShivaNekiyimStart:
		if r.ShivaNekiyimStart != nil {
			return nil, "", fmt.Errorf("%w: shiva nekiyim already started", ErrInvalidSequence)
		}
		if r.HefsekTahara == nil {
			return nil, "", fmt.Errorf("%w: shiva nekiyim requires a hefsek tahara", ErrInvalidSequence)
		}
		if ts.Before(*r.HefsekTahara) {
			return nil, "", fmt.Errorf("%w: shiva nekiyim cannot start before hefsek tahara", ErrInvalidSequence)
		}
		next.ShivaNekiyimStart = &ts

	case EventMikvah:
		if r.MikvahDate != nil {
			return nil, "", fmt.Errorf("%w: mikvah already recorded", ErrInvalidSequence)
		}
		if r.ShivaNekiyimStart == nil {
			return nil, "", fmt.Errorf("%w: mikvah requires shiva nekiyim to have started", ErrInvalidSequence)
		}
		if ts.Before(*r.ShivaNekiyimStart) {
			return nil, "", fmt.Errorf("%w: mikvah cannot precede shiva nekiyim start", ErrInvalidSequence)
		}
		if onah.DaysBetween(onah.Date(*r.ShivaNekiyimStart, loc), onah.Date(ts, loc)) < ShivaNekiyimDays {
			return nil, "", fmt.Errorf("%w: mikvah must be at least %d days after shiva nekiyim start", ErrPolicyViolation, ShivaNekiyimDays)
		}
		next.MikvahDate = &ts

	default:
		return nil, "", fmt.Errorf("%w: unknown event %q", ErrInvalidSequence, ev)
	}

	next.UpdatedAt = now
	return next, DeriveStatus(next), nil
}

// EarliestHefsek returns the first halachic date on which a hefsek tahara is
// permitted for r.
func EarliestHefsek(r *Record, p Policy) time.Time {
	return onah.Date(r.PeriodStart, p.location()).AddDate(0, 0, p.MinimumNiddahDays)
}

// EarliestMikvah returns the first halachic date whose night permits
// immersion, or false when clean days have not started.
func EarliestMikvah(r *Record, p Policy) (time.Time, bool) {
	if r.ShivaNekiyimStart == nil {
		return time.Time{}, false
	}
	return onah.Date(*r.ShivaNekiyimStart, p.location()).AddDate(0, 0, ShivaNekiyimDays), true
}
