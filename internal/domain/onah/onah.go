// Package onah models halachic time units on top of civil time in a user's
// timezone. A halachic date starts at NightStartHour of the preceding civil
// day; the day onah runs from DayStartHour to NightStartHour.
package onah

import "time"

const (
	DayStartHour   = 6
	NightStartHour = 18
)

// Onah is one half of a halachic date.
type Onah string

const (
	Night Onah = "night"
	Day   Onah = "day"
)

// Of returns the halachic date (civil midnight in loc) and onah that t falls in.
func Of(t time.Time, loc *time.Location) (time.Time, Onah) {
	lt := t.In(loc)
	date := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	switch {
	case lt.Hour() >= NightStartHour:
		return date.AddDate(0, 0, 1), Night
	case lt.Hour() < DayStartHour:
		return date, Night
	default:
		return date, Day
	}
}

// Date is Of without the onah.
func Date(t time.Time, loc *time.Location) time.Time {
	d, _ := Of(t, loc)
	return d
}

// Start returns the instant the given onah of a halachic date begins.
// The night of date D begins on the evening of civil day D-1.
func Start(date time.Time, o Onah, loc *time.Location) time.Time {
	if o == Night {
		prev := date.AddDate(0, 0, -1)
		return time.Date(prev.Year(), prev.Month(), prev.Day(), NightStartHour, 0, 0, 0, loc)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), DayStartHour, 0, 0, 0, loc)
}

// Preceding returns the onah immediately before (date, o).
func Preceding(date time.Time, o Onah) (time.Time, Onah) {
	if o == Day {
		return date, Night
	}
	return date.AddDate(0, 0, -1), Day
}

// Opposite returns the other onah of the same halachic date.
func Opposite(o Onah) Onah {
	if o == Day {
		return Night
	}
	return Day
}

// DaysBetween counts calendar days from a to b. Both are treated as dates
// only, so DST transitions between them do not skew the count.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
