// -*- tab-width:2 -*-

package sim

import (
	"fmt"

	count "github.com/jayalane/go-counter"
)

// Loop is the main driver for the simulation: it owns the virtual
// clock and the queue of pending events.  Schedule work, call Run(),
// and every callback fires in (time, insertion) order on the calling
// goroutine.  A Loop is not safe for concurrent use; callbacks may
// schedule and cancel further events.
type Loop struct {
	name       string
	now        SimTime
	seq        uint64
	queue      eventQueue
	live       int // scheduled, not yet fired or cancelled
	dispatched uint64
	running    bool
	stopped    bool
	fatal      error
}

// EventHandle refers to a scheduled event.  The zero value refers to
// no event.
type EventHandle struct {
	e *event
}

// NewLoop initializes and returns a simulation main loop.
func NewLoop(name string) *Loop {
	Init()

	return &Loop{name: name}
}

// Name returns the loop name given to NewLoop.
func (l *Loop) Name() string {
	return l.name
}

// Now returns the current sim time.
func (l *Loop) Now() SimTime {
	return l.now
}

// Pending returns the number of events that are scheduled and
// neither fired nor cancelled.
func (l *Loop) Pending() int {
	return l.live
}

// Dispatched returns how many callbacks have run.
func (l *Loop) Dispatched() uint64 {
	return l.dispatched
}

// Schedule runs cb after delay.  A negative delay is an error; if it
// happens inside a callback the running loop also stops with it.
func (l *Loop) Schedule(delay SimTime, cb func()) (EventHandle, error) {
	if delay < 0 {
		return EventHandle{}, l.fail(fmt.Errorf("%w: %s at %s", ErrInvalidDelay, delay.Duration(), l.now))
	}

	return l.insert(l.now+delay, cb, false), nil
}

// ScheduleAt runs cb at the absolute time at, which cannot be in the
// past.
func (l *Loop) ScheduleAt(at SimTime, cb func()) (EventHandle, error) {
	if at < l.now {
		return EventHandle{}, l.fail(fmt.Errorf("%w: %s is before %s", ErrInvalidDelay, at, l.now))
	}

	return l.insert(at, cb, false), nil
}

// StopAt makes Run return once the clock reaches at.  Events at the
// same time that were scheduled earlier still fire; everything else
// stays queued.
func (l *Loop) StopAt(at SimTime) error {
	if at < l.now {
		return l.fail(fmt.Errorf("%w: stop at %s is before %s", ErrInvalidDelay, at, l.now))
	}

	l.insert(at, nil, true)
	ml.Ls(l.name+": stop scheduled at", at)

	return nil
}

// Stop makes Run return after the current callback.
func (l *Loop) Stop() {
	l.stopped = true
}

// Cancel keeps the event from firing.  It returns false, and does
// nothing, when the event already fired or was already cancelled.
func (l *Loop) Cancel(h EventHandle) bool {
	if h.e == nil || h.e.fired || h.e.cancelled {
		return false
	}

	h.e.cancelled = true
	h.e.cb = nil
	l.live--

	count.Incr("loop_event_cancelled")
	ml.La(l.name+": cancelled event", h.e.seq, "due", h.e.at)

	return true
}

// IsPending is true while the event is waiting to fire.
func (l *Loop) IsPending(h EventHandle) bool {
	return h.e != nil && !h.e.fired && !h.e.cancelled
}

// Run fires events until the queue is empty, a StopAt time is
// reached or Stop is called.  A scheduling error raised by a
// callback ends the run: the queue is destroyed and the error
// returned.
func (l *Loop) Run() error {
	if l.running {
		return fmt.Errorf("%s: Run called from a callback", l.name)
	}

	l.running = true
	l.stopped = false

	defer func() { l.running = false }()

	ml.Ls(l.name+": run starting at", l.now, "with", l.live, "events")

	for !l.stopped && l.queue.Len() > 0 {
		e := l.queue.pop()

		if e.cancelled {
			count.Incr("loop_event_skipped")

			continue
		}

		l.now = e.at
		e.fired = true

		if e.sentinel {
			ml.Ls(l.name+": stop time reached", l.now)

			break
		}

		l.live--
		l.dispatched++
		count.Incr("loop_event_dispatched")

		cb := e.cb
		e.cb = nil
		cb()

		if l.fatal != nil {
			err := l.fatal
			l.fatal = nil
			l.Destroy()
			ml.Ls(l.name+": run aborted at", l.now, err.Error())

			return err
		}
	}

	ml.Ls(l.name+": run done at", l.now, "dispatched", l.dispatched, "pending", l.live)

	return nil
}

// Destroy drops every pending event.
func (l *Loop) Destroy() {
	for _, e := range l.queue {
		e.cancelled = true
		e.cb = nil
		e.index = -1
	}

	l.queue = nil
	l.live = 0
}

func (l *Loop) insert(at SimTime, cb func(), sentinel bool) EventHandle {
	l.seq++
	e := &event{at: at, seq: l.seq, cb: cb, sentinel: sentinel}
	l.queue.push(e)

	if !sentinel {
		l.live++

		count.Incr("loop_event_scheduled")
	}

	return EventHandle{e: e}
}

// fail records err as fatal when raised during Run and returns it.
func (l *Loop) fail(err error) error {
	if l.running && l.fatal == nil {
		l.fatal = err
	}

	return err
}
