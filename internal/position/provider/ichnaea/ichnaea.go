// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package ichnaea provides a network-based position source. It scans the visible
// wireless access points and submits them to a BeaconDB geolocation endpoint, which
// implements the Ichnaea geolocate API. Without usable access points the lookup falls
// back to IP-based location.
package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/waybar-locate/internal/http"
	"github.com/wneessen/waybar-locate/internal/logger"
	"github.com/wneessen/waybar-locate/internal/position"

	"github.com/mdlayher/wifi"
)

const (
	apiEndpoint       = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout     = time.Second * 5
	defaultScanPeriod = time.Second * 10
	name              = "ichnaea"
)

// Source periodically scans for wireless networks and resolves them into position
// readings through the BeaconDB API.
type Source struct {
	name     string
	http     *http.Client
	wlan     *wifi.Client
	period   time.Duration
	logger   *logger.Logger
	locateFn func(ctx context.Context) (lat, lon, acc float64, err error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// APIResult is the subset of the Ichnaea geolocate response the source cares about.
type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

// WirelessNetwork is a single observed access point in the geolocate request.
type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// New returns a BeaconDB-backed position source scanning every scanPeriod. It fails
// when the system has no netlink wifi support.
func New(log *logger.Logger, client *http.Client, scanPeriod time.Duration) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	if scanPeriod <= 0 {
		scanPeriod = defaultScanPeriod
	}

	source := &Source{
		name:   name,
		http:   client,
		wlan:   wlan,
		period: scanPeriod,
		logger: log,
	}
	source.locateFn = source.locate
	return source, nil
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return s.name
}

// Start verifies that wireless interfaces can be enumerated and begins the periodic
// scan-and-locate loop.
func (s *Source) Start(ctx context.Context) (<-chan position.Event, error) {
	if s.wlan != nil {
		if _, err := s.stationInterfaces(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan position.Event)
	go s.run(ctx, out)
	return out, nil
}

// Stop ends the scan loop and closes the event channel. Stop is idempotent.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run performs a lookup per scan period. Every result is emitted, repeated identical
// fixes included, the acquisition engine draws its own conclusions from them. Lookup
// failures are transient, the next period retries.
func (s *Source) run(ctx context.Context, out chan<- position.Event) {
	defer close(out)

	for {
		lat, lon, acc, err := s.locateFn(ctx)
		if ctx.Err() != nil {
			return
		}

		var event position.Event
		if err != nil {
			event = position.Event{
				Err: fmt.Errorf("wifi geolocation lookup failed: %s: %w", err, position.ErrUnavailable),
			}
		} else {
			event = position.Event{
				Reading: position.Reading{
					Lat:      lat,
					Lon:      lon,
					Accuracy: acc,
					At:       time.Now(),
					Source:   s.name,
				},
			}
		}

		select {
		case <-ctx.Done():
			return
		case out <- event:
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.period):
		}
	}
}

// locate scans for access points and asks the geolocation API for a position. A failing
// scan degrades to an IP-based lookup instead of failing the cycle.
func (s *Source) locate(ctx context.Context) (lat, lon, acc float64, err error) {
	aps, err := s.wifiAccessPoints()
	if err != nil {
		s.logger.Debug("wireless scan failed, continuing with IP-based location", logger.Err(err))
		aps = nil
	}

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: aps,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err = json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	ctxHTTP, cancelHTTP := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHTTP()
	result := new(APIResult)
	if _, err = s.http.Post(ctxHTTP, apiEndpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	return result.Location.Latitude, result.Location.Longitude, result.Accuracy, nil
}

// stationInterfaces returns the wireless interfaces operating in station mode.
func (s *Source) stationInterfaces() ([]*wifi.Interface, error) {
	ifaces, err := s.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list wireless interfaces: %w", err)
	}

	var stations []*wifi.Interface
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		stations = append(stations, iface)
	}
	return stations, nil
}

// wifiAccessPoints collects the visible access points of all station interfaces.
// Hidden networks and networks opted out of location services are left out.
func (s *Source) wifiAccessPoints() ([]WirelessNetwork, error) {
	if s.wlan == nil {
		return nil, nil
	}
	stations, err := s.stationInterfaces()
	if err != nil {
		return nil, err
	}

	var list []WirelessNetwork
	for _, iface := range stations {
		aps, err := s.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}
