// Package session owns the signed-in state of the app. A single manager
// consumes the identity provider's event stream, resolves each identity to
// its canonical profile exactly once, and exposes the result to the rest of
// the pipeline.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vendora/mediasync/internal/identity"
	"github.com/vendora/mediasync/internal/logging"
)

// State is the session lifecycle phase.
type State string

const (
	StateSignedOut      State = "signed_out"
	StateAuthenticating State = "authenticating"
	StateLinkingProfile State = "linking_profile"
	StateReady          State = "ready"
	StateError          State = "error"
)

// Session is a fully initialized signed-in session.
type Session struct {
	IdentityID         string
	CanonicalProfileID string
	ProfileType        identity.ProfileType

	// InitToken is minted once per initialization. Two sessions carrying the
	// same token went through a single resolver run.
	InitToken string
}

// Snapshot is the externally visible session state at a point in time.
type Snapshot struct {
	State   State
	Session *Session
	Err     error
}

// Manager serializes identity events into session state.
//
// Initialization for an identity runs at most once: repeat events for the
// identity that is already signed in reuse the memoized session without
// touching the resolver. The memo is dropped only when the identity changes
// or on sign-out. Concurrent events for the same identity collapse into one
// resolver call via singleflight.
type Manager struct {
	resolver identity.Resolver
	log      logging.Logger

	group singleflight.Group

	mu      sync.RWMutex
	state   State
	session *Session
	err     error

	// gen is bumped whenever the session is invalidated (sign-out or
	// identity change). An initialization commits its result only if gen is
	// still the value it started with, so a stale resolve can never
	// resurrect a session the user left.
	gen      uint64
	inflight string
}

func NewManager(resolver identity.Resolver, log logging.Logger) *Manager {
	return &Manager{
		resolver: resolver,
		log:      log.With("component", "session"),
		state:    StateSignedOut,
	}
}

// CurrentSession returns the session snapshot without blocking. The session
// pointer is only non-nil in StateReady.
func (m *Manager) CurrentSession() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{State: m.state, Session: m.session, Err: m.err}
}

// OnIdentityEvent applies one element of the identity stream. A nil identity
// signs the session out. It is the sole mutator of session state.
func (m *Manager) OnIdentityEvent(ctx context.Context, id *identity.Identity) Snapshot {
	if id == nil {
		m.signOut(ctx)
		return m.CurrentSession()
	}

	m.mu.Lock()
	if m.state == StateReady && m.session != nil && m.session.IdentityID == id.ID {
		// same identity, session already initialized: reuse, never recompute
		snap := Snapshot{State: m.state, Session: m.session}
		m.mu.Unlock()
		return snap
	}
	if m.inflight != id.ID {
		// a different identity invalidates whatever was cached or in flight
		if m.inflight != "" {
			m.group.Forget(m.inflight)
		}
		m.inflight = id.ID
		m.gen++
		m.session = nil
		m.err = nil
		m.state = StateAuthenticating
	}
	gen := m.gen
	m.mu.Unlock()

	sess, err := m.initialize(ctx, id, gen)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// a sign-out or identity change overtook this initialization; its
		// result is stale and must not be committed
		return Snapshot{State: m.state, Session: m.session, Err: m.err}
	}
	m.inflight = ""
	if err != nil {
		m.state = StateError
		m.session = nil
		m.err = err
		m.log.Error(ctx, "session initialization failed", "identity", id.ID, "error", err)
		return Snapshot{State: m.state, Err: m.err}
	}
	m.state = StateReady
	m.session = sess
	m.err = nil
	m.log.Info(ctx, "session ready",
		"identity", sess.IdentityID, "profile", sess.CanonicalProfileID, "type", sess.ProfileType)
	return Snapshot{State: m.state, Session: m.session}
}

// Run consumes the provider's event stream until the context is cancelled or
// the stream closes.
func (m *Manager) Run(ctx context.Context, provider identity.Provider) error {
	events := provider.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.OnIdentityEvent(ctx, ev.Identity)
		}
	}
}

func (m *Manager) signOut(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateSignedOut {
		m.log.Info(ctx, "signed out")
	}
	m.gen++
	if m.inflight != "" {
		m.group.Forget(m.inflight)
		m.inflight = ""
	}
	m.state = StateSignedOut
	m.session = nil
	m.err = nil
}

// initialize resolves the identity's profile link, collapsing concurrent
// calls for the same identity into a single resolver run.
func (m *Manager) initialize(ctx context.Context, id *identity.Identity, gen uint64) (*Session, error) {
	v, err, _ := m.group.Do(id.ID, func() (any, error) {
		m.setState(gen, StateLinkingProfile)
		link, err := m.resolver.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Session{
			IdentityID:         id.ID,
			CanonicalProfileID: link.CanonicalProfileID,
			ProfileType:        link.Type,
			InitToken:          uuid.NewString(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) setState(gen uint64, s State) {
	m.mu.Lock()
	if m.gen == gen {
		m.state = s
	}
	m.mu.Unlock()
}
