package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tasktrack/internal/eventbus"
	"tasktrack/internal/task"
	"tasktrack/internal/taskerr"
)

func fixedClock(date string) func() time.Time {
	d, err := time.Parse(task.DateLayout, date)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return d.Add(12 * time.Hour) }
}

func names(ts []task.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name()
	}
	return out
}

func equalNames(got []task.Task, want ...string) bool {
	g := names(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func mustAdd(t *testing.T, r *Registry, ts ...task.Task) {
	t.Helper()
	for _, tk := range ts {
		if err := r.Add(tk); err != nil {
			t.Fatalf("Add(%v): %v", tk, err)
		}
	}
}

func TestAddThenFindByName(t *testing.T) {
	t.Parallel()
	r := New()
	for i := 0; i < 20; i++ {
		tk := task.MustNew(fmt.Sprintf("Task %d", i), "", fmt.Sprintf("2030-01-%02d", i+1))
		mustAdd(t, r, tk)
		got, ok := r.FindByName(fmt.Sprintf("task %d", i))
		if !ok || !got.Equal(tk) {
			t.Fatalf("FindByName after Add: got %v (ok=%v), want %v", got, ok, tk)
		}
	}
}

func TestAddDuplicate(t *testing.T) {
	t.Parallel()
	r := New()
	mustAdd(t, r, task.MustNew("Pay rent", "", "2030-01-01"))

	dup := task.MustNew("Pay rent", "other description", "2030-01-01")
	if err := r.Add(dup); !errors.Is(err, taskerr.ErrDuplicate) {
		t.Fatalf("Add duplicate err = %v, want ErrDuplicate", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d after duplicate add, want 1", r.Len())
	}
	// Same name, different deadline is a different task.
	mustAdd(t, r, task.MustNew("Pay rent", "", "2030-02-01"))
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestAddRejectsZeroTask(t *testing.T) {
	t.Parallel()
	r := New()
	if err := r.Add(task.Task{}); !errors.Is(err, taskerr.ErrValidation) {
		t.Fatalf("Add(zero) err = %v, want ErrValidation", err)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	r := New()
	a := task.MustNew("A", "", "2030-01-01")
	b := task.MustNew("B", "", "2030-01-02")
	mustAdd(t, r, a, b)

	// Removal is by identity, not by reference.
	if err := r.Remove(task.MustNew("A", "whatever", "2030-01-01")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := r.FindByName("A"); ok {
		t.Fatal("A still findable after Remove")
	}
	if err := r.Remove(a); !errors.Is(err, taskerr.ErrNotFound) {
		t.Fatalf("second Remove err = %v, want ErrNotFound", err)
	}
	if !equalNames(r.List(), "B") {
		t.Fatalf("List = %v", names(r.List()))
	}
	// A can be re-added after removal.
	mustAdd(t, r, a)
}

func TestCompleteMarksStoredTask(t *testing.T) {
	t.Parallel()
	r := New()
	caller := task.MustNew("A", "", "2030-01-01")
	mustAdd(t, r, caller)

	if err := r.Complete(caller); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if caller.Completed() {
		t.Fatal("caller's copy must not be mutated")
	}
	stored, _ := r.Get(caller.Key())
	if !stored.Completed() {
		t.Fatal("stored task not completed")
	}
	if err := r.Complete(caller); err != nil {
		t.Fatalf("completing twice must be a no-op, got %v", err)
	}
	if err := r.Complete(task.MustNew("missing", "", "2030-01-01")); !errors.Is(err, taskerr.ErrNotFound) {
		t.Fatalf("Complete missing err = %v", err)
	}
}

func TestUpdateKeepsPosition(t *testing.T) {
	t.Parallel()
	r := New()
	a := task.MustNew("A", "", "2030-01-01")
	b := task.MustNew("B", "", "2030-01-02")
	c := task.MustNew("C", "", "2030-01-03")
	mustAdd(t, r, a, b, c)

	b2 := task.MustNew("B2", "renamed", "2031-01-01")
	if err := r.Update(b, b2); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !equalNames(r.List(), "A", "B2", "C") {
		t.Fatalf("List = %v", names(r.List()))
	}
	if err := r.Update(b, b2); !errors.Is(err, taskerr.ErrNotFound) {
		t.Fatalf("Update of old identity err = %v, want ErrNotFound", err)
	}
	if err := r.Update(a, c); !errors.Is(err, taskerr.ErrDuplicate) {
		t.Fatalf("Update into existing identity err = %v, want ErrDuplicate", err)
	}
	// Same identity, new description.
	a2 := task.MustNew("A", "new description", "2030-01-01")
	if err := r.Update(a, a2); err != nil {
		t.Fatalf("Update same identity: %v", err)
	}
	got, _ := r.Get(a.Key())
	if got.Description() != "new description" {
		t.Fatalf("Description = %q", got.Description())
	}
}

func TestExtendDeadline(t *testing.T) {
	t.Parallel()
	r := New()
	a := task.MustNew("A", "", "2030-01-01")
	a2 := task.MustNew("A", "", "2030-01-03")
	mustAdd(t, r, a, a2)

	if _, err := r.ExtendDeadline(a, 2); !errors.Is(err, taskerr.ErrDuplicate) {
		t.Fatalf("extension colliding with another task err = %v", err)
	}
	if _, err := r.ExtendDeadline(a, -1); !errors.Is(err, taskerr.ErrValidation) {
		t.Fatalf("negative extension err = %v", err)
	}
	got, err := r.ExtendDeadline(a, 1)
	if err != nil {
		t.Fatalf("ExtendDeadline: %v", err)
	}
	if got.DeadlineString() != "2030-01-02" {
		t.Fatalf("deadline = %s", got.DeadlineString())
	}
	if _, ok := r.Get(a.Key()); ok {
		t.Fatal("old identity still present")
	}
}

func TestOverdueScenario(t *testing.T) {
	t.Parallel()
	r := New(WithClock(fixedClock("2025-01-01")))
	mustAdd(t, r,
		task.MustNew("Pay rent", "", "2030-01-01"),
		task.MustNew("Buy milk", "", "2020-01-01"),
	)
	if got := r.FilterOverdue(); !equalNames(got, "Buy milk") {
		t.Fatalf("FilterOverdue = %v, want [Buy milk]", names(got))
	}
}

func TestFiltersAndCounts(t *testing.T) {
	t.Parallel()
	r := New(WithClock(fixedClock("2025-01-01")))
	a := task.MustNew("A", "", "2020-01-01")
	b := task.MustNew("B", "", "2019-01-01")
	c := task.MustNew("C", "", "2030-01-01")
	d := task.MustNew("D", "", "2024-12-31")
	mustAdd(t, r, a, b, c, d)
	if err := r.Complete(b); err != nil {
		t.Fatal(err)
	}

	if got := r.FilterCompleted(); !equalNames(got, "B") {
		t.Fatalf("FilterCompleted = %v", names(got))
	}
	if got := r.FilterPending(); !equalNames(got, "A", "C", "D") {
		t.Fatalf("FilterPending = %v", names(got))
	}
	if got := r.FilterOverdue(); !equalNames(got, "A", "D") {
		t.Fatalf("FilterOverdue = %v", names(got))
	}
	want := Counts{Total: 4, Completed: 1, Pending: 3, Overdue: 2}
	if got := r.Counts(); got != want {
		t.Fatalf("Counts = %+v, want %+v", got, want)
	}
}

func TestSortByDeadlineIsStable(t *testing.T) {
	t.Parallel()
	r := New()
	mustAdd(t, r,
		task.MustNew("late", "", "2030-05-01"),
		task.MustNew("tie-1", "", "2030-01-01"),
		task.MustNew("early", "", "2029-01-01"),
		task.MustNew("tie-2", "", "2030-01-01"),
		task.MustNew("tie-3", "", "2030-01-01"),
	)
	r.SortByDeadline()

	got := r.List()
	if !equalNames(got, "early", "tie-1", "tie-2", "tie-3", "late") {
		t.Fatalf("sorted = %v", names(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Deadline().Before(got[i-1].Deadline()) {
			t.Fatalf("deadlines not non-decreasing at %d", i)
		}
	}
}

func TestClearCompleted(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		complete []int
		want     []string
	}{
		{name: "none completed", complete: nil, want: []string{"A", "B", "C"}},
		{name: "one completed", complete: []int{1}, want: []string{"A", "C"}},
		{name: "all completed", complete: []int{0, 1, 2}, want: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New()
			ts := []task.Task{
				task.MustNew("A", "", "2030-01-01"),
				task.MustNew("B", "", "2030-01-02"),
				task.MustNew("C", "", "2030-01-03"),
			}
			mustAdd(t, r, ts...)
			for _, i := range tt.complete {
				if err := r.Complete(ts[i]); err != nil {
					t.Fatal(err)
				}
			}
			removed := r.ClearCompleted()
			if removed != len(tt.complete) {
				t.Fatalf("removed = %d, want %d", removed, len(tt.complete))
			}
			if got := r.List(); !equalNames(got, tt.want...) {
				t.Fatalf("List = %v, want %v", names(got), tt.want)
			}
			// Cleared identities can be added again.
			for _, i := range tt.complete {
				mustAdd(t, r, ts[i])
			}
		})
	}
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()
	r := New()
	mustAdd(t, r, task.MustNew("B", "", "2030-02-01"), task.MustNew("A", "", "2030-01-01"))

	snap := r.List()
	snap[0].MarkCompleted()
	snap[1] = task.MustNew("Z", "", "2030-03-01")

	mustAdd(t, r, task.MustNew("C", "", "2029-01-01"))
	r.SortByDeadline()

	if len(snap) != 2 || snap[0].Name() != "B" {
		t.Fatalf("snapshot changed by later mutations: %v", names(snap))
	}
	if c := r.Counts(); c.Completed != 0 {
		t.Fatal("mutating a snapshot leaked into the registry")
	}
	if !equalNames(r.List(), "C", "A", "B") {
		t.Fatalf("List = %v", names(r.List()))
	}
}

func TestLoadSkipsInvalidAndDuplicates(t *testing.T) {
	t.Parallel()
	r := New()
	mustAdd(t, r, task.MustNew("A", "", "2030-01-01"))
	added, skipped := r.Load([]task.Task{
		task.MustNew("A", "", "2030-01-01"),
		{},
		task.MustNew("B", "", "2030-01-02"),
		task.MustNew("B", "", "2030-01-02"),
	})
	if added != 1 || skipped != 3 {
		t.Fatalf("Load = (%d, %d), want (1, 3)", added, skipped)
	}
	if !equalNames(r.List(), "A", "B") {
		t.Fatalf("List = %v", names(r.List()))
	}
}

func TestEventsPublished(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16, EventPrefix)
	defer unsub()

	r := New(WithBus(bus))
	a := task.MustNew("A", "", "2030-01-01")
	mustAdd(t, r, a)
	_ = r.Add(a) // duplicate: no event
	_ = r.Complete(a)
	_ = r.Complete(a) // no change: no event
	r.ClearCompleted()

	want := []string{EventAdded, EventCompleted, EventCleared}
	for _, w := range want {
		select {
		case e := <-ch:
			if e.Type != w {
				t.Fatalf("event = %s, want %s", e.Type, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %s", w)
		}
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected extra event %s", e.Type)
	default:
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()
	r := New()
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				tk := task.MustNew(fmt.Sprintf("w%d-%d", w, i), "", fmt.Sprintf("2030-%02d-%02d", i%12+1, i%28+1))
				if err := r.Add(tk); err != nil {
					t.Errorf("Add: %v", err)
					return
				}
				if i%3 == 0 {
					_ = r.Complete(tk)
				}
			}
		}()
	}
	// Everyone races on the same identity; exactly one Add may win.
	var dupWins sync.Map
	for w := 0; w < writers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Add(task.MustNew("shared", "", "2030-01-01")); err == nil {
				dupWins.Store(w, true)
			}
		}()
	}
	// Readers run alongside and must always see a consistent view.
	stop := make(chan struct{})
	var rg sync.WaitGroup
	for i := 0; i < 4; i++ {
		rg.Add(1)
		go func() {
			defer rg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				c := r.Counts()
				if c.Completed+c.Pending != c.Total {
					t.Errorf("inconsistent counts %+v", c)
					return
				}
				seen := map[task.Key]bool{}
				for _, tk := range r.List() {
					if seen[tk.Key()] {
						t.Errorf("duplicate visible in snapshot: %v", tk)
						return
					}
					seen[tk.Key()] = true
				}
				r.SortByDeadline()
			}
		}()
	}
	wg.Wait()
	close(stop)
	rg.Wait()

	wins := 0
	dupWins.Range(func(_, _ any) bool { wins++; return true })
	if wins != 1 {
		t.Fatalf("shared identity added %d times, want 1", wins)
	}
	if got, want := r.Len(), writers*perWriter+1; got != want {
		t.Fatalf("Len = %d, want %d", got, want)
	}
	removed := r.ClearCompleted()
	if r.Len() != writers*perWriter+1-removed {
		t.Fatalf("ClearCompleted left %d tasks", r.Len())
	}
	if len(r.FilterCompleted()) != 0 {
		t.Fatal("completed tasks remain after ClearCompleted")
	}
}
