// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Control signals of the waybar module: SIGUSR1 toggles acquisition, SIGUSR2 forces an
// immediate re-render of the current snapshot.
const (
	toggleSignal = syscall.SIGUSR1
	renderSignal = syscall.SIGUSR2
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// handleControlSignals dispatches the module's control signals until the context is
// cancelled.
func (s *Service) handleControlSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case toggleSignal:
				s.Toggle(ctx)
			case renderSignal:
				s.render()
			}
		}
	}
}
