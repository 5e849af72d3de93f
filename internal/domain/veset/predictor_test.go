package veset

import (
	"reflect"
	"sort"
	"testing"
	"time"

	"taharah_tracker/internal/domain/onah"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func morning(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 0, 0, 0, time.UTC)
}

func byRule(preds []Prediction, r Rule) []Prediction {
	var out []Prediction
	for _, p := range preds {
		if p.Rule == r {
			out = append(out, p)
		}
	}
	return out
}

func TestPredictNoHistory(t *testing.T) {
	if got := PredictNextOnsets(nil, time.UTC, Stringencies{}); len(got) != 0 {
		t.Errorf("expected no predictions, got %d", len(got))
	}
}

func TestPredictSingleCycle(t *testing.T) {
	tests := []struct {
		name string
		s    Stringencies
		want map[Rule]int
	}{
		{"no stringencies", Stringencies{}, map[Rule]int{RuleChodesh: 1}},
		{"all stringencies", Stringencies{OhrZaruah: true, KreisiUpleisi: true, ChasamSofer: true}, map[Rule]int{RuleChodesh: 1, RuleOhrZaruah: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preds := PredictNextOnsets([]time.Time{morning(2024, 1, 1)}, time.UTC, tt.s)
			got := map[Rule]int{}
			for _, p := range preds {
				got[p.Rule]++
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("rules = %v, want %v", got, tt.want)
			}
			if oz := byRule(preds, RuleOhrZaruah); len(oz) == 1 && oz[0].Basis != RuleChodesh {
				t.Errorf("ohr zaruah basis = %s, want %s", oz[0].Basis, RuleChodesh)
			}
		})
	}
}

func TestPredictFixedPattern(t *testing.T) {
	starts := []time.Time{
		morning(2024, 3, 31), // deliberately unordered
		morning(2024, 1, 1),
		morning(2024, 1, 31),
		morning(2024, 3, 1),
	}
	preds := PredictNextOnsets(starts, time.UTC, Stringencies{})

	want := day(2024, 3, 31).AddDate(0, 0, 30)
	guf := byRule(preds, RuleHaguf)
	if len(guf) != 1 {
		t.Fatalf("expected veset ha-guf prediction, got %+v", preds)
	}
	if !guf[0].Date.Equal(want) {
		t.Errorf("veset ha-guf date = %v, want %v", guf[0].Date, want)
	}
	haflagah := byRule(preds, RuleHaflagah)
	if len(haflagah) != 1 || !haflagah[0].Date.Equal(want) {
		t.Errorf("haflagah = %+v, want %v", haflagah, want)
	}
}

func TestPredictNoFixedPatternWhenIntervalsDiffer(t *testing.T) {
	starts := []time.Time{morning(2024, 1, 1), morning(2024, 1, 31), morning(2024, 3, 1), morning(2024, 4, 1)}
	preds := PredictNextOnsets(starts, time.UTC, Stringencies{})

	if len(byRule(preds, RuleHaguf)) != 0 {
		t.Error("veset ha-guf fired for unequal intervals")
	}
	haflagah := byRule(preds, RuleHaflagah)
	if len(haflagah) != 1 || !haflagah[0].Date.Equal(day(2024, 5, 2)) {
		t.Errorf("haflagah = %+v, want May 2 (31-day interval)", haflagah)
	}
}

func TestPredictSortedAndIdempotent(t *testing.T) {
	starts := []time.Time{morning(2024, 1, 1), morning(2024, 1, 29), morning(2024, 2, 27)}
	s := Stringencies{OhrZaruah: true, ChasamSofer: true, KreisiUpleisi: true}

	first := PredictNextOnsets(starts, time.UTC, s)
	second := PredictNextOnsets(starts, time.UTC, s)
	if !reflect.DeepEqual(first, second) {
		t.Error("repeated predictions differ")
	}
	if !sort.SliceIsSorted(first, func(i, j int) bool { return first[i].Start.Before(first[j].Start) }) {
		t.Error("predictions not sorted by onah start")
	}

	type key struct {
		r Rule
		d time.Time
		o onah.Onah
	}
	seen := map[key]bool{}
	for _, p := range first {
		k := key{p.Rule, p.Date, p.Onah}
		if seen[k] {
			t.Errorf("duplicate prediction %+v", p)
		}
		seen[k] = true
	}
}

func TestPredictStringencies(t *testing.T) {
	// The second onset on Jan 29 anchors the beinonit day on Feb 27.
	starts := []time.Time{morning(2024, 1, 1), morning(2024, 1, 29)}

	t.Run("beinonit on day 30", func(t *testing.T) {
		b := byRule(PredictNextOnsets(starts, time.UTC, Stringencies{}), RuleBeinonit)
		if len(b) != 1 || !b[0].Date.Equal(day(2024, 2, 27)) || b[0].Onah != onah.Day {
			t.Errorf("onah beinonit = %+v, want day onah of Feb 27", b)
		}
	})

	t.Run("chasam sofer adds day 31", func(t *testing.T) {
		cs := byRule(PredictNextOnsets(starts, time.UTC, Stringencies{ChasamSofer: true}), RuleChasamSofer)
		if len(cs) != 1 || !cs[0].Date.Equal(day(2024, 2, 28)) {
			t.Errorf("chasam sofer = %+v, want Feb 28", cs)
		}
	})

	t.Run("kreisi upleisi covers both onot of day 30", func(t *testing.T) {
		b := byRule(PredictNextOnsets(starts, time.UTC, Stringencies{KreisiUpleisi: true}), RuleBeinonit)
		if len(b) != 2 || b[0].Onah == b[1].Onah {
			t.Errorf("onah beinonit = %+v, want day and night", b)
		}
	})

	t.Run("ohr zaruah flags the preceding onah", func(t *testing.T) {
		preds := PredictNextOnsets(starts, time.UTC, Stringencies{OhrZaruah: true})
		var found bool
		for _, p := range byRule(preds, RuleOhrZaruah) {
			if p.Basis == RuleBeinonit {
				found = true
				if !p.Date.Equal(day(2024, 2, 27)) || p.Onah != onah.Night {
					t.Errorf("ohr zaruah for beinonit = %+v, want night of Feb 27", p)
				}
				if !p.Start.Equal(time.Date(2024, 2, 26, 18, 0, 0, 0, time.UTC)) {
					t.Errorf("ohr zaruah start = %v", p.Start)
				}
			}
		}
		if !found {
			t.Error("no ohr zaruah entry for onah beinonit")
		}
	})
}

func TestPredictNightOnset(t *testing.T) {
	// 21:00 on Jan 1 is the night of Jan 2.
	start := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)
	preds := PredictNextOnsets([]time.Time{morning(2023, 12, 4), start}, time.UTC, Stringencies{})
	b := byRule(preds, RuleBeinonit)
	if len(b) != 1 || !b[0].Date.Equal(day(2024, 1, 31)) || b[0].Onah != onah.Night {
		t.Fatalf("onah beinonit = %+v, want night of Jan 31", b)
	}
	if want := time.Date(2024, 1, 30, 18, 0, 0, 0, time.UTC); !b[0].Start.Equal(want) {
		t.Errorf("start = %v, want %v", b[0].Start, want)
	}
}

func TestPredictUsesUserTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 03:00 UTC on Mar 2 is 19:00 on Mar 1 in Los Angeles: night of Mar 2 there.
	start := time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)
	preds := PredictNextOnsets([]time.Time{morning(2024, 2, 1), start}, loc, Stringencies{})
	b := byRule(preds, RuleBeinonit)
	want := time.Date(2024, 3, 31, 0, 0, 0, 0, loc)
	if len(b) != 1 || !b[0].Date.Equal(want) || b[0].Onah != onah.Night {
		t.Errorf("onah beinonit = %+v, want night of %v", b, want)
	}
}

func TestSameDayNextHebrewMonth(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"15 Nisan to 15 Iyar", day(2024, 4, 23), day(2024, 5, 23)},
		{"1 Tishrei to 1 Cheshvan", day(2024, 10, 3), day(2024, 11, 2)},
		{"30 Tishrei to 30 Cheshvan", day(2024, 11, 1), day(2024, 12, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sameDayNextHebrewMonth(tt.in); !got.Equal(tt.want) {
				t.Errorf("sameDayNextHebrewMonth(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestUpcoming(t *testing.T) {
	preds := PredictNextOnsets([]time.Time{morning(2024, 1, 1)}, time.UTC, Stringencies{ChasamSofer: true})
	cutoff := time.Date(2024, 1, 30, 12, 0, 0, 0, time.UTC)
	for _, p := range Upcoming(preds, cutoff) {
		if !p.Start.After(cutoff) {
			t.Errorf("prediction %+v not after cutoff", p)
		}
	}
	if len(Upcoming(preds, cutoff)) == 0 {
		t.Error("expected day 31 to remain upcoming")
	}
}
