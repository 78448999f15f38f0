// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd provides a position source backed by a local gpsd daemon. It subscribes
// to the TPV report stream and translates every report into a position event.
package gpsd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wneessen/waybar-locate/internal/logger"
	"github.com/wneessen/waybar-locate/internal/position"

	"github.com/stratoberry/go-gpsd"
)

const (
	fallbackAccuracy3DFix = 10 // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25 // worse than 3D, but still accurate enough
)

// session is the subset of the go-gpsd client the source relies on. Tests substitute a
// scripted stream for the real daemon connection.
type session interface {
	AddFilter(class string, f gpsd.Filter)
	Watch() chan bool
}

// Source streams position readings from a gpsd daemon.
type Source struct {
	name   string
	addr   string
	logger *logger.Logger
	dialFn func(addr string) (session, error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns a position source reading from the gpsd daemon at addr. An empty addr
// falls back to the default gpsd address.
func New(log *logger.Logger, addr string) *Source {
	if addr == "" {
		addr = gpsd.DefaultAddress
	}
	return &Source{
		name:   "gpsd",
		addr:   addr,
		logger: log,
		dialFn: dialSession,
	}
}

func dialSession(addr string) (session, error) {
	return gpsd.Dial(addr)
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return s.name
}

// Start connects to gpsd and begins streaming TPV reports as position events. The
// connection attempt is synchronous, a daemon that cannot be reached fails the start.
func (s *Source) Start(ctx context.Context) (<-chan position.Event, error) {
	sess, err := s.dialFn(s.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gpsd at %q: %w", s.addr, err)
	}
	s.logger.Debug("connected to gpsd", slog.String("address", s.addr))

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan position.Event)
	go s.watch(ctx, sess, out)
	return out, nil
}

// Stop ends the report stream and closes the event channel. Stop is idempotent.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// watch forwards TPV reports to the event channel until the stream ends or the source
// is stopped. The filter callback runs on go-gpsd's watch goroutine and never touches
// the event channel directly, so closing it here cannot race with a late report.
func (s *Source) watch(ctx context.Context, sess session, out chan<- position.Event) {
	defer close(out)

	reports := make(chan position.Event)
	sess.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
		case reports <- s.eventFromTPV(tpv):
		}
	})
	done := sess.Watch()

	for {
		select {
		case <-ctx.Done():
			// Stop requested. The lingering daemon connection is torn down with the
			// process; go-gpsd itself has no Close().
			return
		case <-done:
			s.emit(ctx, out, position.Event{
				Err: fmt.Errorf("connection to gpsd at %q ended", s.addr),
			})
			return
		case event := <-reports:
			if !s.emit(ctx, out, event) {
				return
			}
		}
	}
}

func (s *Source) emit(ctx context.Context, out chan<- position.Event, event position.Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- event:
		return true
	}
}

// eventFromTPV converts a TPV report into a position event. Reports without at least a
// 2D fix carry no usable coordinates and surface as a transient failure.
func (s *Source) eventFromTPV(tpv *gpsd.TPVReport) position.Event {
	if tpv.Mode < gpsd.Mode2D {
		return position.Event{
			Err: fmt.Errorf("no satellite fix yet (mode %d): %w", tpv.Mode, position.ErrUnavailable),
		}
	}
	at := tpv.Time
	if at.IsZero() {
		at = time.Now()
	}
	return position.Event{
		Reading: position.Reading{
			Lat:      tpv.Lat,
			Lon:      tpv.Lon,
			Accuracy: horizontalAccuracyMeters(tpv),
			At:       at,
			Source:   s.name,
		},
	}
}

// horizontalAccuracyMeters derives the horizontal accuracy of a TPV report. gpsd sends
// eph when the receiver reports one, otherwise it is approximated from the per-axis
// errors, with a mode-based estimate as the last resort.
func horizontalAccuracyMeters(tpv *gpsd.TPVReport) float64 {
	switch {
	case tpv.Eph > 0:
		return tpv.Eph
	case tpv.Epx > 0 && tpv.Epy > 0:
		// sqrt(epx² + epy²)
		return math.Hypot(tpv.Epx, tpv.Epy)
	case tpv.Mode == gpsd.Mode3D:
		return fallbackAccuracy3DFix
	default:
		return fallbackAccuracy2DFix
	}
}
