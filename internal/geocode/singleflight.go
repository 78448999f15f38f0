// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"sync"
	"time"

	"github.com/wneessen/waybar-locate/internal/logger"
	"github.com/wneessen/waybar-locate/internal/position"
	"github.com/wneessen/waybar-locate/internal/vartype"
)

// DefaultTimeout is the fallback per-lookup timeout when none is configured.
const DefaultTimeout = time.Second * 10

// SingleFlight bounds reverse-geocoding to at most one outstanding lookup. Callers are
// expected to check InFlight before requesting a lookup; Lookup additionally guards
// against concurrent requests under its own lock and reports whether a lookup was
// started. A lookup, once started, always runs to completion. It is never cancelled or
// restarted when a better reading arrives, the result is allowed to lag the newest fix.
type SingleFlight struct {
	mu         sync.Mutex
	resolver   Resolver
	timeout    time.Duration
	logger     *logger.Logger
	onComplete func()

	inFlight bool
	address  vartype.Variable[Address]
	lastErr  error
}

// NewSingleFlight returns a SingleFlight controller around the given resolver. The
// onComplete callback is invoked after every finished lookup, successful or not, and is
// always called without any internal lock held.
func NewSingleFlight(resolver Resolver, timeout time.Duration, log *logger.Logger, onComplete func()) *SingleFlight {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &SingleFlight{
		resolver:   resolver,
		timeout:    timeout,
		logger:     log,
		onComplete: onComplete,
	}
}

// Lookup requests an asynchronous reverse-geocode of the given reading and reports
// whether the lookup was started. A request while another lookup is outstanding is
// dropped and returns false. The previous address result stays visible until the new
// lookup completes; completion then replaces address and error state in a single update.
func (g *SingleFlight) Lookup(ctx context.Context, reading position.Reading) bool {
	g.mu.Lock()
	if g.inFlight {
		g.mu.Unlock()
		return false
	}
	g.inFlight = true
	g.mu.Unlock()

	g.logger.Debug("starting reverse geocode lookup", "resolver", g.resolver.Name(),
		"lat", reading.Lat, "lon", reading.Lon)
	go g.resolve(ctx, reading)
	return true
}

// InFlight reports whether a lookup is currently outstanding.
func (g *SingleFlight) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Reset clears the stored address and error at the start of a new acquisition session.
// An outstanding lookup is deliberately left untouched: it still completes, keeps the
// one-lookup bound intact and delivers its result into the new session.
func (g *SingleFlight) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.address.Reset()
	g.lastErr = nil
}

// State returns the current address result, the last lookup error and the in-flight flag.
func (g *SingleFlight) State() (vartype.Variable[Address], error, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.address, g.lastErr, g.inFlight
}

func (g *SingleFlight) resolve(ctx context.Context, reading position.Reading) {
	ctxLookup, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	addr, err := g.resolver.Reverse(ctxLookup, reading)

	g.mu.Lock()
	g.inFlight = false
	if err != nil {
		g.address.Reset()
		g.lastErr = err
	} else {
		g.address.Set(addr)
		g.lastErr = nil
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.Error("reverse geocode lookup failed", logger.Err(err))
	}
	if g.onComplete != nil {
		g.onComplete()
	}
}
