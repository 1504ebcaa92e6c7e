package adapter

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// shutdown is the error funnel (§4.10): every fatal condition observed by
// the event loop, the read pump, or a timer converges here. It is
// idempotent — only the first call actually tears the connection down — so
// every caller can invoke it unconditionally without coordinating who "owns"
// the shutdown.
func (c *Connection) shutdown(ctx context.Context, cause error) {
	c.stopOnce.Do(func() {
		var adapterErr *Error
		if errors.As(cause, &adapterErr) && adapterErr.ChannelID == "" {
			adapterErr.ChannelID = c.id
		}
		c.closeErr = cause
		c.state = c.state.with(Closed)

		if cause != nil {
			c.logger.Error("channel closing", "error", cause)
		} else {
			c.logger.Debug("channel closing")
		}

		if cause != nil && c.will != nil && c.state.phase() == Connected {
			c.publishWill(ctx)
		}

		close(c.stop)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			c.publishedQoS1.drain(c.discardPending)
			return nil
		})
		g.Go(func() error {
			c.publishedQoS2.drain(c.discardPending)
			return nil
		})
		g.Go(func() error {
			c.publishedQoS2Comp.drain(c.discardPending)
			return nil
		})
		g.Go(func() error {
			return c.bridge.DisposeAsync(gctx, cause)
		})
		if err := g.Wait(); err != nil {
			c.logger.Warn("error during shutdown drain", "error", err)
		}
		_ = c.transport.Close()
	})
}

// discardPending releases the feedback handle of an in-flight outbound
// delivery that will never be acknowledged now (§4.10): it is returned to
// the bridge as abandoned rather than silently dropped, so redelivery policy
// stays with the bridge.
func (c *Connection) discardPending(p *pendingOutbound) {
	if p.message.Feedback == nil {
		return
	}
	if err := p.message.Feedback.Abandon(context.Background()); err != nil {
		c.logger.Warn("failed to abandon in-flight delivery on shutdown", "packet_id", p.packetID, "error", err)
	}
}

// publishWill forwards the captured will message to the bridge on abnormal
// shutdown while Connected (§3 "Will Packet"). A will is never sent for a
// client-initiated DISCONNECT, which clears c.will before shutdown runs.
func (c *Connection) publishWill(ctx context.Context) {
	client, ok := c.bridge.TryResolveClient(c.will.Topic)
	if !ok {
		c.logger.Warn("will message topic has no resolvable sending client", "topic", c.will.Topic)
		return
	}
	msg := client.CreateMessage(c.will.Topic, c.will.Payload)
	if err := client.SendAsync(ctx, msg); err != nil {
		c.logger.Warn("failed to publish will message", "topic", c.will.Topic, "error", err)
	}
}
