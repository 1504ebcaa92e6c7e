package adapter

import (
	"context"
	"time"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// checkConnectTimeout implements the connect-arrival half of §4.7: still
// WaitingForConnect when the deadline passes is fatal.
func (c *Connection) checkConnectTimeout(now time.Time) error {
	if c.opts.ConnectArrivalTimeout <= 0 {
		return nil
	}
	if c.state.phase() != WaitingForConnect {
		return nil
	}
	if now.Before(c.connectDeadline) {
		return nil
	}
	return NewError(KindConnectTimedOut, "CONNECT", nil)
}

// checkKeepAlive implements the keep-alive half of §4.7. The spec describes
// a self-rescheduling one-shot timer computing the next firing from elapsed
// activity; this adapter achieves the same effect with a periodic ticker
// (the teacher's logicLoop retry-ticker idiom) that compares elapsed time on
// every tick instead of re-arming a one-shot timer, which is simpler to
// drive from a single select loop and has identical externally observable
// behavior.
func (c *Connection) checkKeepAlive(now time.Time) error {
	if c.state.phase() != Connected || c.keepAlive <= 0 {
		return nil
	}
	if now.Sub(c.lastActivity) > c.keepAlive {
		return NewError(KindKeepAliveTimedOut, "", nil)
	}
	return nil
}

// handlePingreq writes PINGRESP synchronously (§4.1 dispatch table).
func (c *Connection) handlePingreq() error {
	ctx := context.Background()
	if err := c.transport.Write(ctx, &packets.PingrespPacket{}); err != nil {
		return NewError(KindPacketProcessing, "PINGRESP", err)
	}
	return c.transport.Flush(ctx)
}

// handleDisconnect implements graceful, client-initiated shutdown: the will
// (if any) is discarded per §4.10 step 3 ("capture the will iff cause !=
// nil"), since a clean DISCONNECT is not a cause.
func (c *Connection) handleDisconnect() error {
	c.will = nil
	c.shutdown(context.Background(), nil)
	return nil
}
