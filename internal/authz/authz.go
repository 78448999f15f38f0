// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package authz answers whether the user has authorized location access before an
// acquisition session is started.
package authz

import "context"

// State is the tri-state outcome of an authorization check.
type State int

const (
	StateUndetermined State = iota
	StateDenied
	StateAuthorized
)

// Authority reports the current authorization state and can request authorization
// from the user when it is still undetermined.
type Authority interface {
	Name() string
	Status(ctx context.Context) State
	Request(ctx context.Context) error
}

func (s State) String() string {
	switch s {
	case StateDenied:
		return "denied"
	case StateAuthorized:
		return "authorized"
	default:
		return "undetermined"
	}
}

// Static is an Authority with a fixed state. It backs the "always" authorization
// mode and keeps tests independent of a session bus.
type Static struct {
	state State
}

func NewStatic(state State) *Static {
	return &Static{state: state}
}

func (s *Static) Name() string {
	return "static"
}

func (s *Static) Status(_ context.Context) State {
	return s.state
}

func (s *Static) Request(_ context.Context) error {
	return nil
}
