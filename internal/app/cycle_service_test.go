package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/notification"
	"taharah_tracker/internal/domain/veset"
	"taharah_tracker/internal/infra/memory"
	"taharah_tracker/internal/infra/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

var jan1 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type cycleFixture struct {
	svc    *CycleService
	notifs *NotificationService
	cycles *memory.CycleRepository
	nrepo  *memory.NotificationRepository
	clock  *fixedClock
}

func newCycleFixture(cr cycle.Repository) *cycleFixture {
	mem, _ := cr.(*memory.CycleRepository)
	clock := newFixedClock(jan1)
	profiles := memory.NewProfileRepository()
	nrepo := memory.NewNotificationRepository()
	notifs := NewNotificationService(nrepo, cr, profiles, &recordingSender{}, clock, testLogger(), NotificationConfig{})
	return &cycleFixture{
		svc:    NewCycleService(cr, profiles, notifs, clock, testLogger()),
		notifs: notifs,
		cycles: mem,
		nrepo:  nrepo,
		clock:  clock,
	}
}

func TestCycleService_StartCycle(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())

	rec, err := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "first", "")
	if err != nil {
		t.Fatalf("StartCycle() error: %v", err)
	}
	if rec.Status() != cycle.StatusNiddah {
		t.Errorf("new cycle status = %s, want %s", rec.Status(), cycle.StatusNiddah)
	}
	if rec.Version != 1 {
		t.Errorf("new cycle version = %d, want 1", rec.Version)
	}

	notifs, err := f.notifs.ListForUser(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ListForUser() error: %v", err)
	}
	types := make(map[notification.Type]bool)
	for _, n := range notifs {
		types[n.Type] = true
		if !n.ScheduledFor.After(jan1) {
			t.Errorf("notification %s scheduled in the past: %s", n.Type, n.ScheduledFor)
		}
	}
	for _, want := range []notification.Type{notification.TypeHefsekReminder, notification.TypeVesetChodesh} {
		if !types[want] {
			t.Errorf("missing %s reminder, got %v", want, types)
		}
	}
	if types[notification.TypeOnahBeinonit] {
		t.Error("onah beinonit reminder scheduled from a single onset")
	}

	activity, _ := f.svc.Activity(ctx, "user-1", 10)
	if len(activity) != 1 || activity[0].Action != cycle.ActionCreated {
		t.Errorf("activity = %+v, want one %s entry", activity, cycle.ActionCreated)
	}
}

func TestCycleService_StartCycleRejects(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())
	if _, err := f.svc.StartCycle(ctx, "user-1", jan1.Add(-30*time.Hour), "", ""); err != nil {
		t.Fatalf("StartCycle() error: %v", err)
	}

	tests := []struct {
		name  string
		start time.Time
	}{
		{"future start", jan1.Add(time.Hour)},
		// 2023-12-31 06:00 and 2023-12-31 08:00 share a halachic date.
		{"same halachic date", jan1.Add(-28 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.StartCycle(ctx, "user-1", tt.start, "", "")
			if !errors.Is(err, cycle.ErrInvalidSequence) {
				t.Errorf("StartCycle() error = %v, want ErrInvalidSequence", err)
			}
		})
	}

	list, _ := f.svc.List(ctx, "user-1")
	if len(list) != 1 {
		t.Errorf("List() returned %d cycles, want 1", len(list))
	}
}

func TestCycleService_ApplyEventSequence(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())
	rec, err := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "", "")
	if err != nil {
		t.Fatalf("StartCycle() error: %v", err)
	}

	hefsek := time.Date(2024, 1, 6, 16, 0, 0, 0, time.UTC)
	shiva := time.Date(2024, 1, 7, 8, 0, 0, 0, time.UTC)
	mikvah := time.Date(2024, 1, 13, 20, 0, 0, 0, time.UTC)

	f.clock.Advance(20 * 24 * time.Hour)

	before := testutil.ToFloat64(metrics.CycleEvents.WithLabelValues(string(cycle.EventMikvah), "policy_violation"))
	if _, _, err := f.svc.ApplyEvent(ctx, "user-1", rec.ID, cycle.EventMikvah, mikvah); !errors.Is(err, cycle.ErrInvalidSequence) {
		t.Fatalf("mikvah before clean days error = %v, want ErrInvalidSequence", err)
	}
	if after := testutil.ToFloat64(metrics.CycleEvents.WithLabelValues(string(cycle.EventMikvah), "policy_violation")); after != before {
		t.Errorf("policy_violation counter moved on a sequence error")
	}

	steps := []struct {
		ev   cycle.EventType
		ts   time.Time
		want cycle.Status
	}{
		{cycle.EventHefsekTahara, hefsek, cycle.StatusNiddah},
		{cycle.EventShivaNekiyimStart, shiva, cycle.StatusShivaNekiyim},
		{cycle.EventMikvah, mikvah, cycle.StatusCompleted},
	}
	for _, step := range steps {
		next, status, err := f.svc.ApplyEvent(ctx, "user-1", rec.ID, step.ev, step.ts)
		if err != nil {
			t.Fatalf("ApplyEvent(%s) error: %v", step.ev, err)
		}
		if status != step.want {
			t.Errorf("ApplyEvent(%s) status = %s, want %s", step.ev, status, step.want)
		}
		if next.Status() != status {
			t.Errorf("returned record status %s disagrees with %s", next.Status(), status)
		}
	}

	stored, err := f.svc.Get(ctx, "user-1", rec.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if stored.Version != 4 {
		t.Errorf("version after three events = %d, want 4", stored.Version)
	}
	if !stored.MikvahDate.Equal(mikvah) {
		t.Errorf("mikvah date = %v, want %v", stored.MikvahDate, mikvah)
	}
}

func TestCycleService_ApplyEventRejectionLeavesRecord(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())
	rec, _ := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "", "")

	_, _, err := f.svc.ApplyEvent(ctx, "user-1", rec.ID, cycle.EventHefsekTahara, jan1.Add(24*time.Hour))
	if !errors.Is(err, cycle.ErrPolicyViolation) {
		t.Fatalf("early hefsek error = %v, want ErrPolicyViolation", err)
	}

	stored, _ := f.svc.Get(ctx, "user-1", rec.ID)
	if stored.HefsekTahara != nil || stored.Version != rec.Version {
		t.Errorf("rejected event changed the record: %+v", stored)
	}
}

func TestCycleService_ApplyEventOwnership(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())
	rec, _ := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "", "")

	_, _, err := f.svc.ApplyEvent(ctx, "user-2", rec.ID, cycle.EventHefsekTahara, jan1.Add(6*24*time.Hour))
	if !errors.Is(err, cycle.ErrNotFound) {
		t.Errorf("foreign cycle error = %v, want ErrNotFound", err)
	}
}

func TestCycleService_ConcurrentApplyEvent(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())
	rec, _ := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "", "")
	f.clock.Advance(10 * 24 * time.Hour)
	hefsek := time.Date(2024, 1, 6, 16, 0, 0, 0, time.UTC)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.ApplyEvent(ctx, "user-1", rec.ID, cycle.EventHefsekTahara, hefsek)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, cycle.ErrInvalidSequence), errors.Is(err, cycle.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d writers succeeded, want exactly 1", succeeded)
	}

	stored, _ := f.svc.Get(ctx, "user-1", rec.ID)
	if stored.HefsekTahara == nil || !stored.HefsekTahara.Equal(hefsek) {
		t.Errorf("hefsek = %v, want %v", stored.HefsekTahara, hefsek)
	}
	if stored.Version != 2 {
		t.Errorf("version = %d, want 2", stored.Version)
	}
}

// racingRepository lets another writer win the first update.
type racingRepository struct {
	*memory.CycleRepository
	mu         sync.Mutex
	races      int
	alwaysLose bool
}

func (r *racingRepository) Update(ctx context.Context, rec *cycle.Record, expectedVersion int64) error {
	r.mu.Lock()
	lose := r.alwaysLose || r.races == 0
	r.races++
	r.mu.Unlock()

	if lose {
		if r.alwaysLose {
			return cycle.ErrConflict
		}
		other, err := r.CycleRepository.GetByID(ctx, rec.ID)
		if err != nil {
			return err
		}
		other.Notes = "edited elsewhere"
		if err := r.CycleRepository.Update(ctx, other, other.Version); err != nil {
			return err
		}
	}
	return r.CycleRepository.Update(ctx, rec, expectedVersion)
}

func TestCycleService_ApplyEventRetriesOnce(t *testing.T) {
	ctx := context.Background()
	repo := &racingRepository{CycleRepository: memory.NewCycleRepository()}
	f := newCycleFixture(repo)
	rec, _ := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "", "")
	f.clock.Advance(10 * 24 * time.Hour)

	hefsek := time.Date(2024, 1, 6, 16, 0, 0, 0, time.UTC)
	if _, _, err := f.svc.ApplyEvent(ctx, "user-1", rec.ID, cycle.EventHefsekTahara, hefsek); err != nil {
		t.Fatalf("ApplyEvent() error after one lost race: %v", err)
	}

	stored, _ := f.svc.Get(ctx, "user-1", rec.ID)
	if stored.Notes != "edited elsewhere" {
		t.Errorf("concurrent edit was overwritten: notes = %q", stored.Notes)
	}
	if stored.HefsekTahara == nil {
		t.Error("hefsek not recorded after retry")
	}
	if stored.Version != 3 {
		t.Errorf("version = %d, want 3", stored.Version)
	}
}

func TestCycleService_ApplyEventGivesUpAfterSecondConflict(t *testing.T) {
	ctx := context.Background()
	repo := &racingRepository{CycleRepository: memory.NewCycleRepository(), alwaysLose: true}
	f := newCycleFixture(repo)
	rec, _ := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "", "")
	f.clock.Advance(10 * 24 * time.Hour)

	before := testutil.ToFloat64(metrics.CycleEvents.WithLabelValues(string(cycle.EventHefsekTahara), "conflict"))
	_, _, err := f.svc.ApplyEvent(ctx, "user-1", rec.ID, cycle.EventHefsekTahara, time.Date(2024, 1, 6, 16, 0, 0, 0, time.UTC))
	if !errors.Is(err, cycle.ErrConflict) {
		t.Fatalf("ApplyEvent() error = %v, want ErrConflict", err)
	}
	if after := testutil.ToFloat64(metrics.CycleEvents.WithLabelValues(string(cycle.EventHefsekTahara), "conflict")); after != before+1 {
		t.Errorf("conflict counter delta = %v, want 1", after-before)
	}
}

func TestCycleService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())
	rec, _ := f.svc.StartCycle(ctx, "user-1", jan1.Add(-2*time.Hour), "", "")

	if err := f.svc.Delete(ctx, "user-1", rec.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := f.svc.Get(ctx, "user-1", rec.ID); !errors.Is(err, cycle.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if list, _ := f.svc.List(ctx, "user-1"); len(list) != 0 {
		t.Errorf("List() after delete = %d cycles, want 0", len(list))
	}

	// Soft delete keeps the row for the retention sweeper.
	raw, err := f.cycles.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("raw GetByID() error: %v", err)
	}
	if !raw.IsDeleted || raw.DeletedAt == nil {
		t.Errorf("record not marked deleted: %+v", raw)
	}

	if err := f.svc.Delete(ctx, "user-1", rec.ID); !errors.Is(err, cycle.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestCycleService_PredictUsesHistory(t *testing.T) {
	ctx := context.Background()
	f := newCycleFixture(memory.NewCycleRepository())

	if preds, err := f.svc.Predict(ctx, "user-1"); err != nil || len(preds) != 0 {
		t.Fatalf("Predict() with no history = %v, %v; want empty", preds, err)
	}

	starts := []time.Time{
		time.Date(2023, 11, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2023, 11, 29, 10, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 27, 10, 0, 0, 0, time.UTC),
	}
	for _, s := range starts {
		if _, err := f.svc.StartCycle(ctx, "user-1", s, "", ""); err != nil {
			t.Fatalf("StartCycle(%s) error: %v", s, err)
		}
	}

	preds, err := f.svc.Predict(ctx, "user-1")
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	var haflagah bool
	for _, p := range preds {
		if p.Rule == veset.RuleHaflagah {
			haflagah = true
			if want := time.Date(2024, 1, 24, 0, 0, 0, 0, time.UTC); !p.Date.Equal(want) {
				t.Errorf("haflagah date = %s, want %s", p.Date, want)
			}
		}
	}
	if !haflagah {
		t.Error("no haflagah prediction with three cycles")
	}
}
