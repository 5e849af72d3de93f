package veset

import (
	"time"

	"github.com/hebcal/hdate"
)

func hebrewDay(date time.Time) int {
	return hdate.FromGregorian(date.Year(), date.Month(), date.Day()).Day()
}

// monthLength returns 29 or 30 for the Hebrew month starting on first.
func monthLength(first time.Time) int {
	if hebrewDay(first.AddDate(0, 0, 29)) == 1 {
		return 29
	}
	return 30
}

// sameDayNextHebrewMonth returns the civil date carrying the same Hebrew day
// of month in the following Hebrew month. A 30th that the next month lacks
// falls on the 1st of the month after it.
func sameDayNextHebrewMonth(date time.Time) time.Time {
	day := hebrewDay(date)
	first := date.AddDate(0, 0, -(day - 1))
	nextFirst := first.AddDate(0, 0, monthLength(first))
	if n := monthLength(nextFirst); day > n {
		return nextFirst.AddDate(0, 0, n)
	}
	return nextFirst.AddDate(0, 0, day-1)
}
