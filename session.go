package adapter

import (
	"context"
	"time"
)

// Subscription is one entry in a SessionState's subscription list (§3
// "Subscription"). CreatedAt gates which messages it may match (§4.8,
// invariant P7): a subscription only matches a message whose CreatedAt is
// strictly after the subscription's own.
type Subscription struct {
	TopicFilter string
	QoS         QoS
	CreatedAt   time.Time
}

// SessionState is the per-identity session (§3 "Session State"). Payload is
// an opaque blob the collaborator store may use for its own bookkeeping;
// the adapter never interprets it.
type SessionState struct {
	Identity      string
	Transient     bool
	Subscriptions []Subscription
	Payload       []byte
}

// Copy returns an independent copy suitable for copy-on-write mutation
// during a subscription change (§4.3 step 1). The adapter never mutates a
// SessionState in place while it may still be visible to a concurrent
// reader (there is at most one in flight per connection, but the store may
// retain the pre-swap value until the persist completes).
func (s *SessionState) Copy() *SessionState {
	out := &SessionState{
		Identity:  s.Identity,
		Transient: s.Transient,
	}
	if s.Subscriptions != nil {
		out.Subscriptions = append([]Subscription(nil), s.Subscriptions...)
	}
	if s.Payload != nil {
		out.Payload = append([]byte(nil), s.Payload...)
	}
	return out
}

// SessionStore persists SessionState across reconnects (§6 "Session-state
// store"). All methods are called from the adapter's single event-loop
// goroutine and block until their I/O completes; the adapter treats the
// resulting suspension as a point where externally-visible Closed state
// must be re-checked (§5).
type SessionStore interface {
	// Get loads existing state for identity, or ok=false if none exists.
	Get(ctx context.Context, identity string) (state *SessionState, ok bool, err error)

	// Set persists state atomically. Never called for a Transient state.
	Set(ctx context.Context, state *SessionState) error

	// Delete removes any persisted state for identity.
	Delete(ctx context.Context, identity string) error

	// Create returns a fresh, empty state. transient marks it as never
	// persisted (discarded on disconnect, §3 "Transient session").
	Create(identity string, transient bool) *SessionState
}
