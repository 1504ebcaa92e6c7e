package adapter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// Connection is the per-channel adapter instance (§1 "Scope"): one value per
// accepted transport connection, running a single-threaded event loop that
// owns all connection state (§5 "Execution Model"). There is no shared
// mutable state between Connections; concurrency across channels is handled
// entirely by running one goroutine per Connection.
type Connection struct {
	id            string
	transport     Transport
	authenticator Authenticator
	bridge        MessagingBridge
	opts          *Options
	logger        *slog.Logger

	state    StateFlags
	identity Identity
	session  *SessionState
	will     *WillMessage

	keepAlive       time.Duration
	lastActivity    time.Time
	connectDeadline time.Time

	nextPacketID uint16

	// Three independent Request/Ack Processors for the outbound delivery
	// pipeline (§4.5, §4.6): publishedQoS1 awaits PUBACK; publishedQoS2
	// awaits PUBREC; publishedQoS2Comp awaits PUBCOMP after this Connection
	// has sent the matching PUBREL.
	publishedQoS1     *ackProcessor
	publishedQoS2     *ackProcessor
	publishedQoS2Comp *ackProcessor

	// subChangeQueue holds SUBSCRIBE/UNSUBSCRIBE packets awaiting the next
	// draining pass (§4.3); connectPendingQueue holds any packet that
	// arrives while ProcessingConnect, drained in order once CONNECT
	// completes (§4.1, §4.2).
	subChangeQueue      []subscriptionChange
	connectPendingQueue []packets.Packet

	// inboundProcessors is the per-sending-client FIFO backlog tracker for
	// §4.4 / §4.9.
	inboundProcessors map[SendingClient]*inboundProcessor

	incoming   chan incomingEvent
	upstream   chan UpstreamMessage
	readPermit chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	closeErr error
}

// incomingEvent wraps a packet read from the transport, or the read error
// that ended the read loop, for delivery onto the event loop (§5).
type incomingEvent struct {
	pkt packets.Packet
	err error
}

// New creates a Connection bound to transport, authenticator and bridge. The
// caller must call Run to start the event loop.
func New(transport Transport, authenticator Authenticator, bridge MessagingBridge, opts *Options) *Connection {
	if opts == nil {
		opts = NewOptions()
	}
	id := uuid.NewString()
	c := &Connection{
		id:            id,
		transport:     transport,
		authenticator: authenticator,
		bridge:        bridge,
		opts:          opts,
		logger:        opts.Logger.With("channel_id", id),
		state:         WaitingForConnect,
		incoming:      make(chan incomingEvent, 1),
		upstream:      make(chan UpstreamMessage, 16),
		readPermit:    make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}
	if opts.ConnectArrivalTimeout > 0 {
		c.connectDeadline = time.Now().Add(opts.ConnectArrivalTimeout)
	}
	c.publishedQoS1 = newAckProcessor("PUBACK", opts.AbortOnOutOfOrderPubAck, c.sendTrackedPublish)
	c.publishedQoS2 = newAckProcessor("PUBREC", opts.AbortOnOutOfOrderPubAck, c.sendTrackedPublish)
	c.publishedQoS2Comp = newAckProcessor("PUBCOMP", opts.AbortOnOutOfOrderPubAck, c.sendTrackedPubrel)
	c.readPermit <- struct{}{}
	return c
}

// ID returns the correlation ID used in this Connection's log lines and in
// the ChannelID of the *Error that ends it (§9 "Back-references").
func (c *Connection) ID() string { return c.id }

// Handle implements UpstreamHandle, delivering one upstream message onto the
// event loop (§4.5). It blocks only on the loop's small buffered channel; a
// full buffer signals the bridge to slow down.
func (c *Connection) Handle(ctx context.Context, msg UpstreamMessage) error {
	select {
	case c.upstream <- msg:
		return nil
	case <-c.stop:
		return NewError(KindUpstreamReceive, "Handle", context.Canceled)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CapabilitiesChanged implements UpstreamHandle. The bridge is not required
// to act on it synchronously; the adapter's own subscription table is
// authoritative for delivery decisions (§4.8).
func (c *Connection) CapabilitiesChanged() {}

// Run drives the connection to completion: it starts the read pump and the
// event loop, and blocks until both have exited (§5). The returned error is
// nil only for a clean, client-initiated DISCONNECT.
func (c *Connection) Run(ctx context.Context) error {
	c.wg.Add(1)
	go c.readPump()

	c.logicLoop(ctx)
	c.wg.Wait()
	return c.closeErr
}

// readPump owns Transport.Read and is the only goroutine besides the event
// loop; every packet (or terminal read error) it observes is funneled onto
// incoming for the event loop to process (§5).
func (c *Connection) readPump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.readPermit:
		case <-c.stop:
			return
		}

		pkt, err := c.transport.Read(context.Background())
		select {
		case c.incoming <- incomingEvent{pkt: pkt, err: err}:
		case <-c.stop:
			return
		}
		if err != nil {
			return
		}
	}
}
