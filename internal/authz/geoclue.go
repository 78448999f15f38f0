// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-locate/internal/logger"
)

const (
	DBusListNamesAddress    = "org.freedesktop.DBus.ListNames"
	DBusStartServiceAddress = "org.freedesktop.DBus.StartServiceByName"
	GeoclueAgentDBusName    = "org.freedesktop.GeoClue2.DemoAgent"
)

// GeoClue derives the authorization state from the session bus: a running GeoClue
// agent means the user has granted location access, an unreachable bus means location
// services are unavailable altogether, anything else is still undetermined.
type GeoClue struct {
	logger  *logger.Logger
	listFn  func(ctx context.Context) ([]string, error)
	startFn func(ctx context.Context, service string) error
}

func NewGeoClue(log *logger.Logger) *GeoClue {
	return &GeoClue{
		logger:  log,
		listFn:  listBusNames,
		startFn: startBusService,
	}
}

func (g *GeoClue) Name() string {
	return "geoclue"
}

func (g *GeoClue) Status(ctx context.Context) State {
	names, err := g.listFn(ctx)
	if err != nil {
		g.logger.Debug("location authorization unavailable", logger.Err(err))
		return StateDenied
	}
	for _, name := range names {
		if strings.EqualFold(name, GeoclueAgentDBusName) {
			return StateAuthorized
		}
	}
	return StateUndetermined
}

func (g *GeoClue) Request(ctx context.Context) error {
	if err := g.startFn(ctx, GeoclueAgentDBusName); err != nil {
		return fmt.Errorf("failed to request location authorization: %w", err)
	}
	return nil
}

func listBusNames(ctx context.Context) (names []string, err error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
		}
	}()

	if err = conn.BusObject().Call(DBusListNamesAddress, 0).Store(&names); err != nil {
		return nil, fmt.Errorf("failed to call DBus ListNames: %w", err)
	}
	return names, nil
}

func startBusService(ctx context.Context, service string) (err error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close session bus: %w", closeErr))
		}
	}()

	var reply uint32
	if err = conn.BusObject().Call(DBusStartServiceAddress, 0, service, uint32(0)).Store(&reply); err != nil {
		return fmt.Errorf("failed to call DBus StartServiceByName: %w", err)
	}
	return nil
}
