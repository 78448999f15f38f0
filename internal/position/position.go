// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package position defines the position reading model and the interface implemented by
// the positioning backends.
package position

import (
	"time"

	"github.com/golang/geo/s2"
)

// EarthRadius is the mean earth radius in meters, used for great-circle distance calculations.
const EarthRadius = 6371000.0

// Coarse accuracy tiers in meters. Sources that cannot derive a per-reading accuracy
// estimate report one of these instead.
const (
	AccuracyStreet  = 100.0
	AccuracyZip     = 3000.0
	AccuracyCity    = 25000.0
	AccuracyRegion  = 50000.0
	AccuracyCountry = 300000.0
	AccuracyUnknown = 500000.0
)

// Reading is a single position fix estimate reported by a Source. A Reading is immutable
// once emitted. Accuracy is the estimated horizontal error radius in meters, smaller is
// better; a negative Accuracy marks the reading as invalid.
type Reading struct {
	Lat      float64
	Lon      float64
	Accuracy float64
	At       time.Time
	Source   string
}

// Valid reports whether the reading carries a usable coordinate: latitude and longitude
// within their defined ranges and a non-negative accuracy estimate.
func (r Reading) Valid() bool {
	if r.Lat < -90 || r.Lat > 90 {
		return false
	}
	if r.Lon < -180 || r.Lon > 180 {
		return false
	}
	return r.Accuracy >= 0
}

// DistanceTo returns the great-circle distance between two readings in meters.
func (r Reading) DistanceTo(other Reading) float64 {
	p1 := s2.LatLngFromDegrees(r.Lat, r.Lon)
	p2 := s2.LatLngFromDegrees(other.Lat, other.Lon)
	return p1.Distance(p2).Radians() * EarthRadius
}
