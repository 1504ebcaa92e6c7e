package adapter

import (
	"context"
	"time"
)

// logicLoop is the single-threaded state machine that owns every piece of
// this Connection's state (§5). It is the only place state is mutated,
// which is what lets the rest of the package skip locking entirely.
func (c *Connection) logicLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-c.incoming:
			if evt.err != nil {
				c.shutdown(ctx, NewError(KindPacketProcessing, "Read", evt.err))
				return
			}
			c.lastActivity = time.Now()
			if err := c.dispatch(evt.pkt); err != nil {
				c.shutdown(ctx, err)
				return
			}
			c.refreshReadThrottle()
			if c.state.Has(Closed) {
				return
			}

		case msg := <-c.upstream:
			if err := c.processUpstreamMessage(msg); err != nil {
				c.shutdownOnReceiveError(ctx, err)
				return
			}
			if c.state.Has(Closed) {
				return
			}

		case now := <-ticker.C:
			if err := c.checkConnectTimeout(now); err != nil {
				c.shutdown(ctx, err)
				return
			}
			if err := c.checkKeepAlive(now); err != nil {
				c.shutdown(ctx, err)
				return
			}
			if err := c.publishedQoS1.checkTimeouts(now, c.opts.DeviceReceiveAckTimeout, c.opts.DeviceReceiveAckCanTimeout); err != nil {
				c.shutdown(ctx, err)
				return
			}
			if err := c.publishedQoS2.checkTimeouts(now, c.opts.DeviceReceiveAckTimeout, c.opts.DeviceReceiveAckCanTimeout); err != nil {
				c.shutdown(ctx, err)
				return
			}
			if err := c.publishedQoS2Comp.checkTimeouts(now, c.opts.DeviceReceiveAckTimeout, c.opts.DeviceReceiveAckCanTimeout); err != nil {
				c.shutdown(ctx, err)
				return
			}

		case <-c.stop:
			return
		}
	}
}

// completeConnect finishes §4.2's last sentence: once Connected, drain any
// packet that arrived while ProcessingConnect, in arrival order, before any
// subsequent packet from the read pump is processed.
func (c *Connection) completeConnect() error {
	for len(c.connectPendingQueue) > 0 {
		queued := c.connectPendingQueue
		c.connectPendingQueue = nil
		for _, pkt := range queued {
			if err := c.dispatch(pkt); err != nil {
				return err
			}
			if c.state.Has(Closed) {
				return nil
			}
		}
	}
	return nil
}

// shutdownOnReceiveError implements §4.10's ShutdownOnReceiveError: abort
// all three outbound processors immediately (their feedback channels are
// Abandoned so the bridge redelivers) before funneling to the normal
// shutdown path.
func (c *Connection) shutdownOnReceiveError(ctx context.Context, cause error) {
	c.publishedQoS1.drain(c.discardPending)
	c.publishedQoS2.drain(c.discardPending)
	c.publishedQoS2Comp.drain(c.discardPending)
	c.shutdown(ctx, NewError(KindUpstreamReceive, "Handle", cause))
}
