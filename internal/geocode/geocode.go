// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geocode defines the reverse-geocoding resolver interface and the single-flight
// controller that bounds concurrent lookups.
package geocode

import (
	"context"

	"github.com/wneessen/waybar-locate/internal/position"
)

// Address is the structured result of a reverse-geocoding lookup. Found reports whether
// the resolver produced a usable address; individual fields may be empty even then,
// depending on the resolver and the location.
type Address struct {
	Found        bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	State        string
	Municipality string
	CityDistrict string
	Postcode     string
	City         string
	Suburb       string
	Street       string
	HouseNumber  string
}

// Resolver is implemented by each reverse-geocoding backend. Reverse resolves the given
// position reading into an Address. Resolvers impose no concurrency limit of their own,
// the single-flight discipline is enforced by SingleFlight.
type Resolver interface {
	Name() string
	Reverse(ctx context.Context, reading position.Reading) (Address, error)
}
