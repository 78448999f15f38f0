// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package acquire implements the bounded position acquisition session. A session runs
// the position source, progressively accepts readings with strictly improving accuracy
// and ends once the target accuracy is reached, the position has settled, the deadline
// expires or the source fails fatally. Accepted readings are handed to the geocode
// single-flight controller for address resolution.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/waybar-locate/internal/geocode"
	"github.com/wneessen/waybar-locate/internal/logger"
	"github.com/wneessen/waybar-locate/internal/position"
	"github.com/wneessen/waybar-locate/internal/vartype"
)

// Session defaults, used for any Config field left at its zero value.
const (
	DefaultTargetAccuracy = position.AccuracyStreet
	DefaultDeadline       = time.Second * 60
	DefaultMaxReadingAge  = time.Second * 5
	DefaultSettleDistance = 1.0
	DefaultSettleAfter    = time.Second * 10
)

// ErrTimedOut is recorded as the session error when the deadline expires before any
// reading was accepted.
var ErrTimedOut = errors.New("location acquisition timed out")

// Config carries the tunables of an acquisition session.
type Config struct {
	// TargetAccuracy ends the session once a fix with at most this accuracy in meters
	// has been accepted.
	TargetAccuracy float64
	// Deadline is the hard session timeout.
	Deadline time.Duration
	// MaxReadingAge discards readings whose timestamp is older than this, such as
	// cached fixes replayed by a sensor on startup.
	MaxReadingAge time.Duration
	// SettleDistance is the radius in meters within which non-improving readings count
	// as converged.
	SettleDistance float64
	// SettleAfter is the minimum age of the held fix before convergence may end the
	// session.
	SettleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.TargetAccuracy <= 0 {
		c.TargetAccuracy = DefaultTargetAccuracy
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	if c.MaxReadingAge <= 0 {
		c.MaxReadingAge = DefaultMaxReadingAge
	}
	if c.SettleDistance <= 0 {
		c.SettleDistance = DefaultSettleDistance
	}
	if c.SettleAfter <= 0 {
		c.SettleAfter = DefaultSettleAfter
	}
	return c
}

// Acquirer owns the state of the acquisition session. All transitions are serialized
// through its mutex, events arriving concurrently from the source pump, the deadline
// timer and geocode completions observe each other's effects atomically. An Acquirer is
// reusable: a new session can be started once the previous one has ended.
type Acquirer struct {
	config   Config
	source   position.Source
	flight   *geocode.SingleFlight
	clock    clockwork.Clock
	logger   *logger.Logger
	onChange func()

	mu        sync.Mutex
	ctx       context.Context
	acquiring bool
	session   uint64
	best      vartype.Variable[position.Reading]
	lastErr   error
	deadline  clockwork.Timer
}

// New returns an Acquirer using the given position source, geocode controller and
// clock. The onChange callback is invoked, without internal locks held, after every
// state change that is worth re-rendering. A nil clock falls back to the wall clock.
func New(conf Config, source position.Source, flight *geocode.SingleFlight,
	clock clockwork.Clock, log *logger.Logger, onChange func(),
) *Acquirer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Acquirer{
		config:   conf.withDefaults(),
		source:   source,
		flight:   flight,
		clock:    clock,
		logger:   log,
		onChange: onChange,
	}
}

// Start begins a new acquisition session: it clears all state of the previous session,
// starts the position source and arms the deadline. Start returns immediately, results
// arrive through the onChange notifications and Snapshot. Starting while a session is
// already running is a no-op; callers that want toggle semantics check Acquiring first.
// The given context must outlive the session, it also scopes address lookups that
// complete after the session has ended.
func (a *Acquirer) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.acquiring {
		a.mu.Unlock()
		return nil
	}
	a.session++
	gen := a.session
	a.acquiring = true
	a.ctx = ctx
	a.best.Reset()
	a.lastErr = nil
	a.flight.Reset()

	events, err := a.source.Start(ctx)
	if err != nil {
		err = fmt.Errorf("failed to start position source: %w", err)
		a.acquiring = false
		a.lastErr = err
		a.mu.Unlock()
		a.notify()
		return err
	}
	a.deadline = a.clock.AfterFunc(a.config.Deadline, func() { a.onDeadline(gen) })
	a.mu.Unlock()

	a.logger.Debug("acquisition session started", slog.String("source", a.source.Name()),
		slog.Duration("deadline", a.config.Deadline))
	go a.consume(gen, events)
	a.notify()
	return nil
}

// Stop ends the running acquisition session: it stops the position source and cancels
// the deadline. An address lookup that is still in flight completes on its own and is
// surfaced once done. Stop is idempotent and a no-op when no session is running.
func (a *Acquirer) Stop() {
	a.mu.Lock()
	stopped := a.stopLocked()
	a.mu.Unlock()
	if stopped {
		a.logger.Debug("acquisition session stopped")
		a.notify()
	}
}

// Acquiring reports whether an acquisition session is currently running.
func (a *Acquirer) Acquiring() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acquiring
}

// Snapshot assembles a fresh point-in-time view of the acquisition and geocode state.
func (a *Acquirer) Snapshot() Snapshot {
	a.mu.Lock()
	snap := Snapshot{
		Acquiring:   a.acquiring,
		Best:        a.best,
		PositionErr: a.lastErr,
	}
	a.mu.Unlock()

	addr, geocodeErr, inFlight := a.flight.State()
	snap.Address = addr
	snap.GeocodeErr = geocodeErr
	snap.GeocodeInFlight = inFlight
	return snap
}

// stopLocked performs the actual session teardown. The caller must hold the mutex.
func (a *Acquirer) stopLocked() bool {
	if !a.acquiring {
		return false
	}
	a.acquiring = false
	if a.deadline != nil {
		a.deadline.Stop()
		a.deadline = nil
	}
	a.source.Stop()
	return true
}

// consume pumps source events into the transition logic until the source closes its
// event channel. The session generation guards against events of an ended session.
func (a *Acquirer) consume(gen uint64, events <-chan position.Event) {
	for event := range events {
		if event.Err != nil {
			a.onSourceFailure(gen, event.Err)
			continue
		}
		a.onReading(gen, event.Reading)
	}
}

func (a *Acquirer) onSourceFailure(gen uint64, err error) {
	if position.IsTransient(err) {
		a.logger.Debug("ignoring transient position source failure", logger.Err(err))
		return
	}
	a.mu.Lock()
	if gen != a.session || !a.acquiring {
		a.mu.Unlock()
		return
	}
	a.lastErr = err
	a.stopLocked()
	a.mu.Unlock()

	a.logger.Error("position source failed, acquisition ended", logger.Err(err))
	a.notify()
}

func (a *Acquirer) onReading(gen uint64, reading position.Reading) {
	a.mu.Lock()
	if gen != a.session || !a.acquiring {
		a.mu.Unlock()
		return
	}
	if age := a.clock.Since(reading.At); age > a.config.MaxReadingAge {
		a.mu.Unlock()
		a.logger.Debug("discarding stale position reading", slog.Duration("age", age))
		return
	}
	if reading.Accuracy < 0 {
		a.mu.Unlock()
		a.logger.Debug("discarding invalid position reading",
			slog.Float64("accuracy", reading.Accuracy))
		return
	}

	if a.best.IsSet() && reading.Accuracy >= a.best.Value().Accuracy {
		// The reading does not improve the held fix. When it sits within the settle
		// radius of a sufficiently aged fix, the sensor has converged and further
		// readings will not get any better.
		best := a.best.Value()
		if reading.DistanceTo(best) < a.config.SettleDistance &&
			reading.At.Sub(best.At) > a.config.SettleAfter {
			a.stopLocked()
			a.mu.Unlock()
			a.logger.Debug("position settled, acquisition ended",
				slog.Float64("accuracy", best.Accuracy))
			a.notify()
			return
		}
		a.mu.Unlock()
		return
	}

	a.lastErr = nil
	a.best.Set(reading)
	reachedTarget := reading.Accuracy <= a.config.TargetAccuracy
	if reachedTarget {
		a.stopLocked()
	}
	wantLookup := !a.flight.InFlight()
	ctx := a.ctx
	a.mu.Unlock()

	a.logger.Debug("accepted position reading", slog.Float64("lat", reading.Lat),
		slog.Float64("lon", reading.Lon), slog.Float64("accuracy", reading.Accuracy),
		slog.Bool("target_reached", reachedTarget))
	if wantLookup {
		a.flight.Lookup(ctx, reading)
	}
	a.notify()
}

func (a *Acquirer) onDeadline(gen uint64) {
	a.mu.Lock()
	if gen != a.session || !a.acquiring {
		a.mu.Unlock()
		return
	}
	if a.best.IsSet() {
		// A fix is already held, a late deadline must not degrade it.
		a.mu.Unlock()
		return
	}
	a.lastErr = ErrTimedOut
	a.stopLocked()
	a.mu.Unlock()

	a.logger.Info("no position fix within the deadline, acquisition ended")
	a.notify()
}

func (a *Acquirer) notify() {
	if a.onChange != nil {
		a.onChange()
	}
}
