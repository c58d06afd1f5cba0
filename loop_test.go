// -*- tab-width:2 -*-
package sim

import (
	"errors"
	"math/rand"
	"os"
	"testing"

	ll "github.com/jayalane/go-lll"
)

func TestMain(m *testing.M) {
	ll.SetWriter(os.Stdout)
	Init()
	os.Exit(m.Run())
}

type firing struct {
	at  SimTime
	idx int
}

// TestLoopOrder schedules a random batch, some from inside callbacks,
// and checks the firing order.
func TestLoopOrder(t *testing.T) {
	loop := NewLoop("order")
	r := rand.New(rand.NewSource(42)) //nolint:gosec

	var fired []firing

	idx := 0
	add := func(delay SimTime) {
		i := idx
		idx++

		_, err := loop.Schedule(delay, func() {
			fired = append(fired, firing{at: loop.Now(), idx: i})
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 500; i++ {
		add(SimTime(r.Intn(50)) * Millisecond)
	}

	// a few callbacks schedule more work at the same and later times
	for i := 0; i < 20; i++ {
		_, err := loop.Schedule(SimTime(r.Intn(50))*Millisecond, func() {
			add(0)
			add(SimTime(r.Intn(10)) * Millisecond)
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if len(fired) != idx {
		t.Fatalf("fired %d of %d", len(fired), idx)
	}

	for i := 1; i < len(fired); i++ {
		prev, cur := fired[i-1], fired[i]
		if cur.at < prev.at {
			t.Fatalf("time went backward: %v then %v", prev, cur)
		}

		if cur.at == prev.at && cur.idx < prev.idx {
			t.Fatalf("equal time events out of insertion order: %v then %v", prev, cur)
		}
	}

	if loop.Pending() != 0 {
		t.Errorf("pending %d after run", loop.Pending())
	}
}

func TestLoopNowTracksEvent(t *testing.T) {
	loop := NewLoop("now")

	last := SimTime(0)

	for _, d := range []SimTime{5, 1, 3, 3, 0} {
		want := d * Second

		_, err := loop.Schedule(want, func() {
			if loop.Now() != want {
				t.Errorf("now %s, event due %s", loop.Now(), want)
			}

			if loop.Now() < last {
				t.Errorf("clock went back from %s to %s", last, loop.Now())
			}

			last = loop.Now()
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if loop.Now() != 5*Second {
		t.Errorf("final time %s", loop.Now())
	}

	if loop.Dispatched() != 5 {
		t.Errorf("dispatched %d", loop.Dispatched())
	}
}

func TestLoopCancel(t *testing.T) {
	loop := NewLoop("cancel")
	ran := map[string]bool{}

	a, _ := loop.Schedule(Second, func() { ran["a"] = true })
	b, _ := loop.Schedule(2*Second, func() { ran["b"] = true })

	// c cancels b before b is due
	_, _ = loop.Schedule(Second, func() {
		if !loop.Cancel(b) {
			t.Error("cancel of pending b returned false")
		}
	})

	if !loop.IsPending(a) || loop.Pending() != 3 {
		t.Fatalf("pending %d", loop.Pending())
	}

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if !ran["a"] || ran["b"] {
		t.Errorf("ran %v", ran)
	}

	// both are consumed now: no-ops
	if loop.Cancel(a) {
		t.Error("cancel after fire should be a no-op")
	}

	if loop.Cancel(b) {
		t.Error("second cancel should be a no-op")
	}

	if loop.Cancel(EventHandle{}) {
		t.Error("cancel of zero handle should be a no-op")
	}

	if loop.IsPending(a) || loop.IsPending(b) {
		t.Error("consumed handles are not pending")
	}
}

func TestLoopInvalidDelay(t *testing.T) {
	loop := NewLoop("invalid")

	if _, err := loop.Schedule(-1, func() {}); !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("want ErrInvalidDelay, got %v", err)
	}

	_, _ = loop.Schedule(Second, func() {})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if _, err := loop.ScheduleAt(0, func() {}); !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("scheduling in the past: want ErrInvalidDelay, got %v", err)
	}

	if err := loop.StopAt(0); !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("stop in the past: want ErrInvalidDelay, got %v", err)
	}
}

// TestLoopFatalInCallback checks a bad schedule inside a callback
// ends the run and frees what was pending.
func TestLoopFatalInCallback(t *testing.T) {
	loop := NewLoop("fatal")
	later := false

	_, _ = loop.Schedule(Second, func() {
		_, _ = loop.Schedule(-Second, func() {})
	})
	_, _ = loop.Schedule(2*Second, func() { later = true })

	err := loop.Run()
	if !errors.Is(err, ErrInvalidDelay) {
		t.Fatalf("want ErrInvalidDelay from Run, got %v", err)
	}

	if later {
		t.Error("event after the failure ran")
	}

	if loop.Pending() != 0 {
		t.Errorf("pending %d after abort", loop.Pending())
	}

	if loop.Now() != Second {
		t.Errorf("clock %s", loop.Now())
	}
}

func TestLoopStopAt(t *testing.T) {
	loop := NewLoop("stop")

	var fired []SimTime

	for _, at := range []SimTime{1, 2, 3, 4} {
		_, _ = loop.ScheduleAt(at*Second, func() { fired = append(fired, loop.Now()) })
	}

	if err := loop.StopAt(2 * Second); err != nil {
		t.Fatal(err)
	}

	// scheduled after the stop, at the same time: stays queued
	_, _ = loop.ScheduleAt(2*Second, func() { fired = append(fired, -loop.Now()) })

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if len(fired) != 2 || fired[1] != 2*Second {
		t.Fatalf("fired %v", fired)
	}

	if loop.Now() != 2*Second {
		t.Errorf("stopped at %s", loop.Now())
	}

	if loop.Pending() != 3 {
		t.Errorf("want 3 events kept, got %d", loop.Pending())
	}

	// running again continues where it stopped
	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if len(fired) != 5 || fired[2] != -2*Second || fired[4] != 4*Second {
		t.Fatalf("fired %v", fired)
	}

	loop.Destroy()

	if loop.Pending() != 0 {
		t.Error("destroy left events")
	}
}

func TestLoopStop(t *testing.T) {
	loop := NewLoop("stop-now")
	n := 0

	var tick func()
	tick = func() {
		n++
		if n == 10 {
			loop.Stop()
		}

		_, _ = loop.Schedule(Millisecond, tick)
	}

	_, _ = loop.Schedule(0, tick)

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	if n != 10 || loop.Pending() != 1 {
		t.Fatalf("ticks %d pending %d", n, loop.Pending())
	}

	loop.Destroy()
}
