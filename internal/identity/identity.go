// Package identity models authentication identities and resolves them to
// canonical user profiles.
//
// The same external account can be issued different identity ids by
// different backend environments; the provider account id is the stable
// secondary key that ties them back together.
package identity

import (
	"context"
	"errors"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Identity is an authentication-provider-issued reference to a signed-in
// user.
type Identity struct {
	// ID is the identifier issued by the provider for this environment.
	ID string
	// AccountID is the provider account identifier, stable across backend
	// environments.
	AccountID string
	Email     string
}

// Event is one element of the provider's identity-change stream.
// A nil Identity is the signed-out sentinel.
type Event struct {
	Identity *Identity
}

// Provider emits identity-change events as an append-only stream.
type Provider interface {
	Events() <-chan Event
}

// EventStream is a channel-backed Provider fed by the front-end as the user
// signs in and out.
type EventStream struct {
	ch chan Event
}

var _ Provider = (*EventStream)(nil)

func NewEventStream(buffer int) *EventStream {
	return &EventStream{ch: make(chan Event, buffer)}
}

// Publish appends one event. A nil identity is the signed-out sentinel.
func (s *EventStream) Publish(id *Identity) {
	s.ch <- Event{Identity: id}
}

// Close ends the stream. Consumers drain buffered events first.
func (s *EventStream) Close() {
	close(s.ch)
}

func (s *EventStream) Events() <-chan Event {
	return s.ch
}

// ProfileType classifies the canonical profile an identity resolved to.
type ProfileType string

const (
	ProfileTypeVendor     ProfileType = "vendor"
	ProfileTypeRegular    ProfileType = "regular"
	ProfileTypeUnresolved ProfileType = "unresolved"
)

// Link is the result of resolving an identity.
type Link struct {
	CanonicalProfileID string
	Type               ProfileType
}

// Resolver turns an identity into its canonical profile link.
type Resolver interface {
	Resolve(ctx context.Context, id *Identity) (*Link, error)
}
