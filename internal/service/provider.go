// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locate/internal/authz"
	"github.com/wneessen/waybar-locate/internal/geocode"
	geocodeearth "github.com/wneessen/waybar-locate/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/waybar-locate/internal/geocode/provider/google"
	"github.com/wneessen/waybar-locate/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/waybar-locate/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/waybar-locate/internal/http"
	"github.com/wneessen/waybar-locate/internal/position"
	"github.com/wneessen/waybar-locate/internal/position/provider/gpsd"
	"github.com/wneessen/waybar-locate/internal/position/provider/ichnaea"
	"github.com/wneessen/waybar-locate/internal/position/provider/position_file"
)

// Cache lifetimes for resolved addresses. A repeated lookup from an unchanged position,
// as the refresh job tends to produce, is answered from the cache instead of hitting
// the geocoding backend again.
const (
	cacheHitTTL  = time.Hour * 24
	cacheMissTTL = time.Minute * 10
)

func (s *Service) selectPositionSource() (position.Source, error) {
	switch strings.ToLower(s.config.Position.Provider) {
	case "gpsd":
		return gpsd.New(s.logger, s.config.Position.GPSDAddress), nil
	case "ichnaea":
		source, err := ichnaea.New(s.logger, http.New(s.logger), s.config.Position.ScanPeriod)
		if err != nil {
			return nil, fmt.Errorf("failed to create ichnaea position source: %w", err)
		}
		return source, nil
	case "file":
		return position_file.New(s.logger, s.config.Position.File, s.config.Position.ScanPeriod), nil
	default:
		return nil, fmt.Errorf("unsupported position provider: %s", s.config.Position.Provider)
	}
}

func (s *Service) selectResolver(lang language.Tag) (geocode.Resolver, error) {
	var resolver geocode.Resolver

	// The geocoder language may diverge from the display locale.
	if s.config.GeoCoder.Language != "" {
		lang = language.Make(s.config.GeoCoder.Language)
	}

	switch strings.ToLower(s.config.GeoCoder.Provider) {
	case "nominatim":
		resolver = nominatim.New(http.New(s.logger), lang)
	case "google":
		if s.config.GeoCoder.APIKey == "" {
			return nil, fmt.Errorf("google geocoder requires an API key")
		}
		gres, err := google.New(lang, s.config.GeoCoder.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google geocoder: %w", err)
		}
		resolver = gres
	case "opencage":
		if s.config.GeoCoder.APIKey == "" {
			return nil, fmt.Errorf("opencage geocoder requires an API key")
		}
		resolver = opencage.New(http.New(s.logger), lang, s.config.GeoCoder.APIKey)
	case "geocode-earth":
		if s.config.GeoCoder.APIKey == "" {
			return nil, fmt.Errorf("geocode-earth geocoder requires an API key")
		}
		resolver = geocodeearth.New(http.New(s.logger), lang, s.config.GeoCoder.APIKey)
	default:
		return nil, fmt.Errorf("unsupported geocoder provider: %s", s.config.GeoCoder.Provider)
	}

	return geocode.NewCachedResolver(resolver, cacheHitTTL, cacheMissTTL), nil
}

func (s *Service) selectAuthority() authz.Authority {
	switch strings.ToLower(s.config.Authorization.Mode) {
	case "always":
		return authz.NewStatic(authz.StateAuthorized)
	default:
		return authz.NewGeoClue(s.logger)
	}
}
