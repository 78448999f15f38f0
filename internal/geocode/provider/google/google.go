// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package google

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"googlemaps.github.io/maps"

	"github.com/wneessen/waybar-locate/internal/geocode"
	"github.com/wneessen/waybar-locate/internal/position"
)

const name = "google"

// APIClient is the subset of the Google Maps client used for reverse geocoding.
type APIClient interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

type Google struct {
	client APIClient
	lang   language.Tag
}

func New(lang language.Tag, apikey string) (*Google, error) {
	if apikey == "" {
		return nil, errors.New("an API key is required for the Google Maps resolver")
	}
	client, err := maps.NewClient(maps.WithAPIKey(apikey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}
	return NewWithClient(client, lang), nil
}

func NewWithClient(client APIClient, lang language.Tag) *Google {
	return &Google{
		client: client,
		lang:   lang,
	}
}

func (g *Google) Name() string {
	return name
}

func (g *Google) Reverse(ctx context.Context, reading position.Reading) (geocode.Address, error) {
	var address geocode.Address

	req := &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: reading.Lat, Lng: reading.Lon},
		Language: g.lang.String(),
	}
	results, err := g.client.ReverseGeocode(ctx, req)
	if err != nil {
		return address, fmt.Errorf("failed to reverse geocode via Google Maps API: %w", err)
	}
	if len(results) == 0 {
		return address, nil
	}

	// The first result is the most specific one.
	best := results[0]
	address = geocode.Address{
		Found:       true,
		Latitude:    best.Geometry.Location.Lat,
		Longitude:   best.Geometry.Location.Lng,
		DisplayName: best.FormattedAddress,
	}
	for _, component := range best.AddressComponents {
		assignComponent(&address, component)
	}
	return address, nil
}

// assignComponent maps a single Google address component onto the address fields.
func assignComponent(address *geocode.Address, component maps.AddressComponent) {
	for _, typ := range component.Types {
		switch typ {
		case "street_number":
			address.HouseNumber = component.LongName
		case "route":
			address.Street = component.LongName
		case "neighborhood":
			address.Suburb = component.LongName
		case "sublocality_level_1":
			address.CityDistrict = component.LongName
		case "locality":
			address.City = component.LongName
		case "postal_town":
			if address.City == "" {
				address.City = component.LongName
			}
		case "administrative_area_level_3":
			address.Municipality = component.LongName
		case "administrative_area_level_1":
			address.State = component.LongName
		case "postal_code":
			address.Postcode = component.LongName
		case "country":
			address.Country = component.LongName
		}
	}
}
