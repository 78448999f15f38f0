// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package acquire

import (
	"github.com/wneessen/waybar-locate/internal/geocode"
	"github.com/wneessen/waybar-locate/internal/position"
	"github.com/wneessen/waybar-locate/internal/vartype"
)

// Snapshot is a point-in-time view of the combined acquisition and geocode state. It is
// assembled fresh on every Acquirer.Snapshot call and never cached.
type Snapshot struct {
	Acquiring   bool
	Best        vartype.Variable[position.Reading]
	PositionErr error

	GeocodeInFlight bool
	Address         vartype.Variable[geocode.Address]
	GeocodeErr      error
}

// HasFix reports whether the snapshot holds an accepted position reading.
func (s Snapshot) HasFix() bool {
	return s.Best.IsSet()
}

// HasAddress reports whether the snapshot holds a resolved address.
func (s Snapshot) HasAddress() bool {
	return s.Address.IsSet() && s.Address.Value().Found
}

// Status is the display case selected from a snapshot.
type Status int

const (
	StatusIdle Status = iota
	StatusSearching
	StatusFound
	StatusDisabled
	StatusError
)

// Status selects the display case for the snapshot. A session error takes precedence
// over disabled location services, which take precedence over a running session, which
// takes precedence over a held fix. Geocode errors never drive the status, they only
// show up in the address fields.
func (s Snapshot) Status(servicesDisabled bool) Status {
	switch {
	case s.PositionErr != nil:
		return StatusError
	case servicesDisabled:
		return StatusDisabled
	case s.Acquiring:
		return StatusSearching
	case s.HasFix():
		return StatusFound
	default:
		return StatusIdle
	}
}

func (s Status) String() string {
	switch s {
	case StatusSearching:
		return "searching"
	case StatusFound:
		return "located"
	case StatusDisabled:
		return "disabled"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}
