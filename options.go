package adapter

import (
	"io"
	"log/slog"
	"time"
)

// Options holds the adapter's recognized configuration (§6
// "Configuration"). Build one with NewOptions and the WithXxx
// constructors; the zero value of Options is never used directly.
type Options struct {
	// ConnectArrivalTimeout bounds the time from channel activation to
	// CONNECT. Zero disables the timer.
	ConnectArrivalTimeout time.Duration

	// MaxKeepAliveTimeout caps the derived keep-alive timeout
	// (1.5x client-requested, or this cap if the client requested zero).
	// Zero means no cap.
	MaxKeepAliveTimeout time.Duration

	// DeviceReceiveAckTimeout is the ack timeout for each of the three
	// outbound Request/Ack processors (§4.6), active only when
	// DeviceReceiveAckCanTimeout is true.
	DeviceReceiveAckTimeout    time.Duration
	DeviceReceiveAckCanTimeout bool

	// AbortOnOutOfOrderPubAck selects the fatal-vs-tolerant out-of-order-ack
	// policy (§4.6, P4).
	AbortOnOutOfOrderPubAck bool

	// MaxPendingInboundAcknowledgements bounds the three outbound
	// processors' aggregate backlog (§4.9). Zero disables the bound.
	MaxPendingInboundAcknowledgements int

	// ServicePropertyPrefix prefixes system-set message properties.
	ServicePropertyPrefix string

	// ServerMaxQoS caps negotiated subscription QoS and per-delivery QoS
	// (§4.8, P8). Defaults to ExactlyOnce.
	ServerMaxQoS QoS

	// MaxPayloadSize bounds an inbound PUBLISH payload (§4.4). Zero uses
	// DefaultMaxPayloadSize.
	MaxPayloadSize int

	// Logger receives structured adapter events. Defaults to discarding
	// logs.
	Logger *slog.Logger

	// SessionStore persists SessionState. Defaults to an in-memory store.
	SessionStore SessionStore

	// QoS2Store persists QoS2State. Defaults to an in-memory store.
	QoS2Store QoS2Store
}

// Option configures an Options value.
type Option func(*Options)

// NewOptions builds an Options from the given constructors, filling in
// defaults for anything left unset.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		ServerMaxQoS: ExactlyOnce,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.SessionStore == nil {
		o.SessionStore = NewMemoryStore()
	}
	if o.QoS2Store == nil {
		o.QoS2Store = NewMemoryQoS2Store()
	}
	return o
}

// WithConnectArrivalTimeout sets the CONNECT arrival deadline (§4.7).
func WithConnectArrivalTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectArrivalTimeout = d }
}

// WithMaxKeepAliveTimeout caps the derived keep-alive timeout.
func WithMaxKeepAliveTimeout(d time.Duration) Option {
	return func(o *Options) { o.MaxKeepAliveTimeout = d }
}

// WithDeviceReceiveAckTimeout sets the outbound ack timeout and whether it
// is enforced.
func WithDeviceReceiveAckTimeout(d time.Duration, canTimeout bool) Option {
	return func(o *Options) {
		o.DeviceReceiveAckTimeout = d
		o.DeviceReceiveAckCanTimeout = canTimeout
	}
}

// WithAbortOnOutOfOrderPubAck selects the out-of-order-ack policy.
func WithAbortOnOutOfOrderPubAck(abort bool) Option {
	return func(o *Options) { o.AbortOnOutOfOrderPubAck = abort }
}

// WithMaxPendingInboundAcknowledgements bounds aggregate outbound backlog.
func WithMaxPendingInboundAcknowledgements(max int) Option {
	return func(o *Options) { o.MaxPendingInboundAcknowledgements = max }
}

// WithServicePropertyPrefix sets the system message-property prefix.
func WithServicePropertyPrefix(prefix string) Option {
	return func(o *Options) { o.ServicePropertyPrefix = prefix }
}

// WithServerMaxQoS caps negotiated and per-delivery QoS.
func WithServerMaxQoS(q QoS) Option {
	return func(o *Options) { o.ServerMaxQoS = q }
}

// WithMaxPayloadSize bounds an inbound PUBLISH payload.
func WithMaxPayloadSize(max int) Option {
	return func(o *Options) { o.MaxPayloadSize = max }
}

// WithLogger sets the adapter's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithSessionStore sets the session-state persistence collaborator.
func WithSessionStore(store SessionStore) Option {
	return func(o *Options) { o.SessionStore = store }
}

// WithQoS2Store sets the QoS-2 delivery-state persistence collaborator.
func WithQoS2Store(store QoS2Store) Option {
	return func(o *Options) { o.QoS2Store = store }
}
