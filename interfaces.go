package adapter

import (
	"context"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	ID              string
	IsAuthenticated bool
}

// Authenticator validates CONNECT credentials. It is an external
// collaborator (§6 "Authentication provider"); the adapter never inspects
// credentials itself.
type Authenticator interface {
	Authenticate(ctx context.Context, clientID, username, password, remoteAddress string) (Identity, error)
}

// Transport is the decoded-packet stream and write path the adapter drives
// (§6 "Transport (inbound/outbound)"). The TCP/TLS framing and packet codec
// live below this interface and are out of scope for this package.
type Transport interface {
	// Read blocks for the next decoded packet. It is only ever called when
	// flow control (§4.9) permits.
	Read(ctx context.Context) (packets.Packet, error)

	// Write queues a packet for sending; Flush pushes queued writes to the
	// wire. Callers await or attach faults to these per §5.
	Write(ctx context.Context, pkt packets.Packet) error
	Flush(ctx context.Context) error

	// Close closes the underlying connection. Idempotent.
	Close() error

	// RemoteAddress returns the peer address for authentication and logging.
	RemoteAddress() string
}

// FeedbackChannel is the per-upstream-message handle used to acknowledge
// (Complete), return for redelivery (Abandon), or dead-letter (Reject) a
// message received from the bridge (§6 "Feedback channel"). Exactly one of
// the three is ever called for a given message (invariant P2).
type FeedbackChannel interface {
	Complete(ctx context.Context) error
	Abandon(ctx context.Context) error
	Reject(ctx context.Context) error
}

// SendingClient is the per-topic upstream client resolved by the bridge for
// an inbound PUBLISH (§6 "Sending client").
type SendingClient interface {
	// CreateMessage builds an upstream message envelope for topic/payload.
	CreateMessage(topic string, payload []byte) any

	// SendAsync forwards the message upstream.
	SendAsync(ctx context.Context, message any) error

	// MaxPendingMessages bounds this client's inbound processor backlog for
	// flow control (§4.9).
	MaxPendingMessages() int
}

// MessagingBridge connects the adapter to the upstream messaging system
// (§6 "Messaging bridge").
type MessagingBridge interface {
	// BindMessagingChannel begins upstream delivery to handle, which the
	// adapter implements. The bridge must not retain an owning reference
	// back to the adapter beyond this handle (§9 "Back-references").
	BindMessagingChannel(handle UpstreamHandle) error

	// TryResolveClient resolves the per-topic sending client for an inbound
	// PUBLISH's topic name, or ok=false if unresolved.
	TryResolveClient(topicName string) (client SendingClient, ok bool)

	// DisposeAsync releases the bridge. cause is non-nil when the dispose is
	// part of an error-driven shutdown.
	DisposeAsync(ctx context.Context, cause error) error
}

// UpstreamHandle is the one-way channel the adapter hands to the bridge at
// bind time (§9 "model as ... a one-way message channel"), so the bridge
// never holds a mutual owning reference to the adapter.
type UpstreamHandle interface {
	// Handle delivers one upstream message to the adapter's outbound
	// publish processor (§4.5).
	Handle(ctx context.Context, msg UpstreamMessage) error

	// CapabilitiesChanged notifies the adapter's handle that the
	// subscription set changed, so bridge-side filtering can be refreshed
	// (§4.3 step 5).
	CapabilitiesChanged()
}
