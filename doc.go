// Package adapter implements a per-connection MQTT v3.1.1 server-side
// protocol adapter. It mediates between a single MQTT client connection and
// an upstream messaging bridge (for example an IoT hub): CONNECT
// authentication, subscription management with persisted session state,
// bi-directional PUBLISH handling across all three Quality-of-Service
// levels, retransmission on reconnect, flow control, keep-alive
// enforcement, and orderly shutdown with last-will delivery.
//
// # Execution model
//
// Every Connection runs a single-threaded event loop (Run) that serializes
// all inbound packets, upstream messages, scheduled timers, and transport
// errors onto one goroutine. All per-connection state — subscriptions,
// pending acks, QoS-2 bookkeeping — is owned exclusively by that goroutine;
// no locks guard it. Store I/O, upstream sends, and transport writes are
// issued from the loop and block it until they return.
//
// # Collaborators
//
// The adapter treats the transport, authentication provider, session-state
// store, QoS-2 delivery-state store, and messaging bridge as external
// collaborators specified only by the interfaces in this package
// (Transport, Authenticator, SessionStore, QoS2Store, MessagingBridge,
// SendingClient, FeedbackChannel). MQTT v5, client-to-client brokering, and
// TLS termination are out of scope.
//
// # Quick start
//
//	opts := adapter.NewOptions(
//	    adapter.WithMaxKeepAliveTimeout(10*time.Minute),
//	    adapter.WithDeviceReceiveAckTimeout(30*time.Second, true),
//	    adapter.WithSessionStore(adapter.NewMemoryStore()),
//	)
//	conn := adapter.New(transport, authenticator, bridge, opts)
//	err := conn.Run(ctx)
package adapter
