package adapter

import (
	"context"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// inboundProcessor is the per-sending-client FIFO queue named in §4.4. The
// event loop only ever has one packet in flight per sending client at a
// time (there is a single goroutine driving it), so backlog here tracks
// queued-but-not-yet-acknowledged-upstream work for the flow-control
// computation in §4.9 rather than true concurrent dispatch.
type inboundProcessor struct {
	client  SendingClient
	backlog int
}

func (c *Connection) inboundProcessorFor(client SendingClient) *inboundProcessor {
	if c.inboundProcessors == nil {
		c.inboundProcessors = make(map[SendingClient]*inboundProcessor)
	}
	p, ok := c.inboundProcessors[client]
	if !ok {
		p = &inboundProcessor{client: client}
		c.inboundProcessors[client] = p
	}
	return p
}

// handleInboundPublish implements §4.4: resolve the sending client, forward
// upstream, and acknowledge by QoS.
func (c *Connection) handleInboundPublish(p *packets.PublishPacket) error {
	if QoS(p.QoS) == ExactlyOnce {
		return NewError(KindExactlyOnceNotSupported, "PUBLISH", nil)
	}
	if err := validatePayload(p.Payload, c.opts.MaxPayloadSize); err != nil {
		return NewError(KindPayloadTooLarge, "PUBLISH", err)
	}

	client, ok := c.bridge.TryResolveClient(p.Topic)
	if !ok {
		return NewError(KindUnresolvedSendingClient, p.Topic, nil)
	}

	proc := c.inboundProcessorFor(client)
	proc.backlog++
	defer func() {
		proc.backlog--
		c.refreshReadThrottle()
	}()

	ctx := context.Background()
	msg := client.CreateMessage(p.Topic, p.Payload)
	if err := client.SendAsync(ctx, msg); err != nil {
		return NewError(KindPacketProcessing, "PUBLISH", err)
	}

	switch QoS(p.QoS) {
	case AtMostOnce:
		return nil
	case AtLeastOnce:
		if err := c.transport.Write(ctx, &packets.PubackPacket{PacketID: p.PacketID}); err != nil {
			return NewError(KindPacketProcessing, "PUBACK", err)
		}
		return c.transport.Flush(ctx)
	default:
		return NewError(KindQoSNotSupported, "PUBLISH", nil)
	}
}

// inboundBacklogBelowLimits reports whether every inbound processor is below
// its sending client's configured MaxPendingMessages (§4.9 clause b).
func (c *Connection) inboundBacklogBelowLimits() bool {
	for _, p := range c.inboundProcessors {
		if max := p.client.MaxPendingMessages(); max > 0 && p.backlog >= max {
			return false
		}
	}
	return true
}
