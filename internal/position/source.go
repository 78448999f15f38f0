// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package position

import (
	"context"
	"errors"
)

// ErrUnavailable marks a transient no-position condition, such as a GPS receiver that has
// not obtained a satellite fix yet or a momentary network failure during a network-based
// lookup. Events carrying it are ignored by the acquisition engine.
var ErrUnavailable = errors.New("position temporarily unavailable")

// Event is a single emission from a Source: a position reading, or a source failure when
// Err is non-nil.
type Event struct {
	Reading Reading
	Err     error
}

// Source is implemented by each positioning backend. Start begins emitting events on the
// returned channel until Stop is called or ctx is cancelled, whichever comes first. The
// channel is closed once the source has shut down. Stop is idempotent and safe to call
// without a preceding successful Start.
type Source interface {
	Name() string
	Start(ctx context.Context) (<-chan Event, error)
	Stop()
}

// IsTransient reports whether err represents a temporary condition that should not
// terminate an acquisition session.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
