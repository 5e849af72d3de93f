// Package veset predicts anticipated onset dates from a user's cycle history.
package veset

import (
	"sort"
	"time"

	"taharah_tracker/internal/domain/onah"
)

// Rule names the pattern a prediction comes from.
type Rule string

const (
	RuleChodesh     Rule = "veset_chodesh"
	RuleHaflagah    Rule = "veset_haflagah"
	RuleHaguf       Rule = "veset_haguf"
	RuleBeinonit    Rule = "onah_beinonit"
	RuleChasamSofer Rule = "onah_chasam_sofer"
	RuleOhrZaruah   Rule = "ohr_zaruah"
)

const (
	// BeinonitDay is the day of the onah beinonit, counting the onset day as day one.
	BeinonitDay = 30
	// GufRepeats is how many equal consecutive intervals establish a fixed pattern.
	GufRepeats = 3
	// MinIntervalHistory is the number of onsets needed before anything but
	// veset ha-chodesh is predicted.
	MinIntervalHistory = 2
)

// Stringencies are the optional chumros that widen the prediction set.
type Stringencies struct {
	OhrZaruah     bool
	KreisiUpleisi bool
	ChasamSofer   bool
}

// Prediction is one anticipated onah.
type Prediction struct {
	Rule  Rule
	Date  time.Time // Halachic date, civil midnight in the user's location
	Onah  onah.Onah
	Start time.Time // Instant the onah begins
	Basis Rule      // For ohr zaruah entries, the rule whose onah is being widened
}

type predictionKey struct {
	rule Rule
	date time.Time
	onah onah.Onah
}

// PredictNextOnsets computes the candidate onsets following the latest
// period start. starts may be unordered; the result is sorted by onah start
// and then rule, and contains no duplicates. With no history it is empty;
// with one onset it holds veset ha-chodesh only (and its ohr zaruah).
func PredictNextOnsets(starts []time.Time, loc *time.Location, s Stringencies) []Prediction {
	if len(starts) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	ordered := make([]time.Time, len(starts))
	copy(ordered, starts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	dates := make([]time.Time, len(ordered))
	for i, t := range ordered {
		dates[i] = onah.Date(t, loc)
	}
	lastDate, lastOnah := onah.Of(ordered[len(ordered)-1], loc)

	base := []Prediction{
		{Rule: RuleChodesh, Date: sameDayNextHebrewMonth(lastDate), Onah: lastOnah},
	}
	// A single onset establishes only the monthly veset.
	if len(dates) >= MinIntervalHistory {
		base = append(base, Prediction{Rule: RuleBeinonit, Date: lastDate.AddDate(0, 0, BeinonitDay-1), Onah: lastOnah})
		if s.KreisiUpleisi {
			base = append(base, Prediction{Rule: RuleBeinonit, Date: lastDate.AddDate(0, 0, BeinonitDay-1), Onah: onah.Opposite(lastOnah)})
		}
		if s.ChasamSofer {
			base = append(base, Prediction{Rule: RuleChasamSofer, Date: lastDate.AddDate(0, 0, BeinonitDay), Onah: lastOnah})
		}
	}

	intervals := make([]int, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		intervals = append(intervals, onah.DaysBetween(dates[i-1], dates[i]))
	}
	if n := len(intervals); n > 0 && intervals[n-1] > 0 {
		last := intervals[n-1]
		base = append(base, Prediction{Rule: RuleHaflagah, Date: lastDate.AddDate(0, 0, last), Onah: lastOnah})
		if fixedPattern(intervals) {
			base = append(base, Prediction{Rule: RuleHaguf, Date: lastDate.AddDate(0, 0, last), Onah: lastOnah})
		}
	}

	all := base
	if s.OhrZaruah {
		for _, p := range base {
			d, o := onah.Preceding(p.Date, p.Onah)
			all = append(all, Prediction{Rule: RuleOhrZaruah, Date: d, Onah: o, Basis: p.Rule})
		}
	}

	seen := make(map[predictionKey]bool, len(all))
	out := make([]Prediction, 0, len(all))
	for _, p := range all {
		k := predictionKey{rule: p.Rule, date: p.Date, onah: p.Onah}
		if seen[k] {
			continue
		}
		seen[k] = true
		p.Start = onah.Start(p.Date, p.Onah, loc)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Rule < out[j].Rule
	})
	return out
}

// fixedPattern reports whether the last GufRepeats intervals are identical.
func fixedPattern(intervals []int) bool {
	n := len(intervals)
	if n < GufRepeats {
		return false
	}
	want := intervals[n-1]
	for _, iv := range intervals[n-GufRepeats:] {
		if iv != want {
			return false
		}
	}
	return true
}

// Upcoming filters predictions whose onah has not begun by now.
func Upcoming(preds []Prediction, now time.Time) []Prediction {
	out := make([]Prediction, 0, len(preds))
	for _, p := range preds {
		if p.Start.After(now) {
			out = append(out, p)
		}
	}
	return out
}
