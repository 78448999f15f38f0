// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires the acquisition engine, the geocode controller, the permission
// authority and the output rendering into the waybar-locate process: it owns the
// toggle entry point, the scheduled jobs, the control signals and the sleep monitor.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locate/internal/acquire"
	"github.com/wneessen/waybar-locate/internal/authz"
	"github.com/wneessen/waybar-locate/internal/config"
	"github.com/wneessen/waybar-locate/internal/geocode"
	"github.com/wneessen/waybar-locate/internal/logger"
	"github.com/wneessen/waybar-locate/internal/presenter"
	"github.com/wneessen/waybar-locate/internal/template"
)

// LookupTimeout bounds a single reverse-geocode lookup.
const LookupTimeout = time.Second * 10

// Snapshot merges the acquisition snapshot with the session-level disabled flag.
type Snapshot struct {
	acquire.Snapshot
	Disabled bool
}

// Status selects the display case for the merged snapshot.
func (s Snapshot) Status() acquire.Status {
	return s.Snapshot.Status(s.Disabled)
}

// Service is the session controller of waybar-locate.
type Service struct {
	config    *config.Config
	logger    *logger.Logger
	clock     clockwork.Clock
	scheduler gocron.Scheduler
	presenter *presenter.Presenter
	templates *template.Templates
	acquirer  *acquire.Acquirer
	flight    *geocode.SingleFlight
	authority authz.Authority
	signals   signalSource

	stateLock sync.Mutex
	disabled  bool

	outLock sync.Mutex
	out     io.Writer
}

// New builds a Service from the given configuration: it selects the position source,
// the address resolver and the permission authority and prepares the output pipeline.
// Output is written to STDOUT.
func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer, lang language.Tag) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	pres := presenter.New(loc, lang, conf.Acquire.TargetAccuracy)
	tpls, err := template.New(conf.Templates.Text, conf.Templates.Tooltip, pres.FuncMap())
	if err != nil {
		return nil, fmt.Errorf("failed to parse output templates: %w", err)
	}

	service := &Service{
		config:    conf,
		logger:    log,
		clock:     clockwork.NewRealClock(),
		scheduler: scheduler,
		presenter: pres,
		templates: tpls,
		signals:   stdLibSignalSource{},
		out:       os.Stdout,
	}

	source, err := service.selectPositionSource()
	if err != nil {
		return nil, err
	}
	resolver, err := service.selectResolver(lang)
	if err != nil {
		return nil, err
	}
	service.authority = service.selectAuthority()
	service.flight = geocode.NewSingleFlight(resolver, LookupTimeout, log, service.render)
	service.acquirer = acquire.New(acquire.Config{
		TargetAccuracy: conf.Acquire.TargetAccuracy,
		Deadline:       conf.Acquire.Deadline,
		MaxReadingAge:  conf.Acquire.MaxReadingAge,
		SettleDistance: conf.Acquire.SettleDistance,
		SettleAfter:    conf.Acquire.SettleAfter,
	}, source, service.flight, service.clock, log, service.render)

	return service, nil
}

// Toggle stops the running acquisition session or, when idle, starts a new one after
// consulting the permission authority: an undetermined authorization is requested and
// nothing is started, a denied one flags location services as disabled.
func (s *Service) Toggle(ctx context.Context) {
	if s.acquirer.Acquiring() {
		s.acquirer.Stop()
		return
	}

	switch state := s.authority.Status(ctx); state {
	case authz.StateUndetermined:
		s.logger.Debug("location authorization undetermined, requesting it")
		if err := s.authority.Request(ctx); err != nil {
			s.logger.Error("failed to request location authorization", logger.Err(err))
		}
	case authz.StateDenied:
		s.setDisabled(true)
		s.logger.Info("location services are disabled, not acquiring")
		s.render()
	case authz.StateAuthorized:
		s.setDisabled(false)
		if err := s.acquirer.Start(ctx); err != nil {
			s.logger.Error("failed to start acquisition session", logger.Err(err))
		}
	default:
		s.logger.Error("unexpected authorization state", "state", state)
	}
}

// Snapshot returns a fresh merged view of the acquisition, geocode and session state.
func (s *Service) Snapshot() Snapshot {
	s.stateLock.Lock()
	disabled := s.disabled
	s.stateLock.Unlock()
	return Snapshot{Snapshot: s.acquirer.Snapshot(), Disabled: disabled}
}

// Run starts the scheduled jobs, the control signal handling and the sleep monitor,
// optionally begins a first acquisition session and blocks until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Intervals.Render, s.renderJob,
		"render_output_job"); err != nil {
		return err
	}
	if s.config.Intervals.Refresh > 0 {
		if err := s.createScheduledJob(ctx, s.config.Intervals.Refresh, s.refreshJob,
			"location_refresh_job"); err != nil {
			return err
		}
	}
	s.scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	s.signals.Notify(sigChan, toggleSignal, renderSignal)
	go s.handleControlSignals(ctx, sigChan)
	go s.monitorSleepResume(ctx)

	if !s.config.Acquire.DisableOnStart {
		s.Toggle(ctx)
	}
	s.render()

	<-ctx.Done()
	s.signals.Stop(sigChan)
	s.acquirer.Stop()
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

func (s *Service) renderJob(context.Context) {
	s.render()
}

// refreshJob periodically re-starts acquisition when idle, keeping the displayed
// location current on moving devices.
func (s *Service) refreshJob(ctx context.Context) {
	if s.acquirer.Acquiring() {
		return
	}
	s.logger.Debug("refresh interval elapsed, re-acquiring location")
	s.Toggle(ctx)
}

// render writes the current snapshot as a waybar JSON line to the output writer. It is
// invoked by the acquisition engine and the geocode controller on every state change,
// by the render job and on SIGUSR2.
func (s *Service) render() {
	snap := s.Snapshot()
	status := snap.Status()
	tplCtx := s.presenter.BuildContext(snap.Snapshot, snap.Disabled, s.clock.Now())

	text, tooltip, err := s.templates.Render(tplCtx)
	if err != nil {
		s.logger.Error("failed to render output templates", logger.Err(err))
		return
	}
	output := template.Output{
		Text:       text,
		Alt:        status.String(),
		Class:      tplCtx.Class,
		Tooltip:    tooltip,
		Percentage: tplCtx.Percentage,
	}

	s.outLock.Lock()
	defer s.outLock.Unlock()
	if err = json.NewEncoder(s.out).Encode(output); err != nil {
		s.logger.Error("failed to encode waybar output", logger.Err(err))
	}
}

func (s *Service) setDisabled(disabled bool) {
	s.stateLock.Lock()
	s.disabled = disabled
	s.stateLock.Unlock()
}
