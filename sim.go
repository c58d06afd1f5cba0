// -*- tab-width:2 -*-

// Package sim provides a deterministic discrete event simulator for
// packet switched networks: a virtual clock and event loop, point to
// point channels, sockets, traffic generators and per-flow statistics.
package sim

import (
	"errors"
	"fmt"
	"sync"

	count "github.com/jayalane/go-counter"
	ll "github.com/jayalane/go-lll"
	"golang.org/x/exp/slices"
)

var (
	ml     *ll.Lll
	mlOnce sync.Once
)

var (
	// ErrInvalidDelay is returned when an event would fire before the current time.
	ErrInvalidDelay = errors.New("invalid delay")
	// ErrInvalidRate is returned for a zero data rate.
	ErrInvalidRate = errors.New("invalid data rate")
	// ErrInvariantViolation flags flow statistics that cannot happen in a correct run.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrSocketClosed is returned when using a socket after Close.
	ErrSocketClosed = errors.New("socket closed")
	// ErrNoRoute is returned when no path exists to a destination.
	ErrNoRoute = errors.New("no route to host")
	// ErrUnknownNode is returned when a node name or address is not in the network.
	ErrUnknownNode = errors.New("unknown node")
	// ErrPortInUse is returned when binding an already bound port.
	ErrPortInUse = errors.New("port in use")
	// ErrBadScenario is returned for malformed scenario descriptions.
	ErrBadScenario = errors.New("bad scenario")
	// ErrBadLogLevel is returned by CheckLogLevel.
	ErrBadLogLevel = errors.New("unknown log level")
)

// LogLevels are the go-lll levels the commands accept, quietest first.
var LogLevels = []string{"none", "network", "state", "all"}

// CheckLogLevel returns ErrBadLogLevel unless level is one of LogLevels.
func CheckLogLevel(level string) error {
	if slices.Contains(LogLevels, level) {
		return nil
	}

	return fmt.Errorf("%w %q", ErrBadLogLevel, level)
}

// Init must be called before any simulation stuff
// it inits the logger and the counters.
func Init() {
	InitWithLogger(nil)
}

// InitWithLogger is an init where you can
// pass in the go-lll logger.  A nil logger
// gets a default one that logs nothing.
func InitWithLogger(l *ll.Lll) {
	mlOnce.Do(func() {
		if l == nil {
			l = ll.Init("SIM", "none")
		}

		ml = l

		count.InitCounters()
	})
}
