// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package position_file provides a position source reading coordinates from a local
// file, typically maintained by an external agent or script. The file carries one
// "lat,lon" or "lat,lon,accuracy" line, lines starting with "#" are ignored.
package position_file

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/waybar-locate/internal/logger"
	"github.com/wneessen/waybar-locate/internal/position"
)

const (
	name              = "position_file"
	defaultPollPeriod = time.Second * 10
)

// ErrNoCoordinates is returned when the file contains no parsable coordinate line.
var ErrNoCoordinates = fmt.Errorf("no valid coordinates found in position file")

// Source polls a coordinate file and emits its content as position readings.
type Source struct {
	name     string
	path     string
	period   time.Duration
	logger   *logger.Logger
	locateFn func() (lat, lon, acc float64, err error)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New returns a file-backed position source polling path every pollPeriod.
func New(log *logger.Logger, path string, pollPeriod time.Duration) *Source {
	if pollPeriod <= 0 {
		pollPeriod = defaultPollPeriod
	}
	source := &Source{
		name:   name,
		path:   path,
		period: pollPeriod,
		logger: log,
	}
	source.locateFn = source.readFile
	return source
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return s.name
}

// Start verifies that the coordinate file exists and begins polling it. A file that is
// missing at start fails the start, a file that turns unreadable later only surfaces as
// a transient failure.
func (s *Source) Start(ctx context.Context) (<-chan position.Event, error) {
	if _, err := os.Stat(s.path); err != nil {
		return nil, fmt.Errorf("failed to access position file %q: %w", s.path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan position.Event)
	go s.run(ctx, out)
	return out, nil
}

// Stop ends the polling loop and closes the event channel. Stop is idempotent.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// run emits the file content once per poll period. Every read is emitted, unchanged
// coordinates included, the acquisition engine handles repeats itself.
func (s *Source) run(ctx context.Context, out chan<- position.Event) {
	defer close(out)

	for {
		lat, lon, acc, err := s.locateFn()

		var event position.Event
		if err != nil {
			event = position.Event{
				Err: fmt.Errorf("position file read failed: %s: %w", err, position.ErrUnavailable),
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

// readFile parses the first usable coordinate line of the file. Lines that are empty,
// comments or unparsable are skipped. A line without an accuracy field falls back to
// the zip-code tier.
func (s *Source) readFile() (lat, lon, acc float64, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to read position file %q: %w", s.path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 && len(fields) != 3 {
			continue
		}
		lat, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			continue
		}
		lon, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			continue
		}
		acc = position.AccuracyZip
		if len(fields) == 3 {
			acc, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				continue
			}
		}
		return lat, lon, acc, nil
	}

	return 0, 0, 0, ErrNoCoordinates
}
