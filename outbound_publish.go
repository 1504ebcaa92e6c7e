package adapter

import (
	"context"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// processUpstreamMessage implements §4.5: match subscriptions, derive
// effective QoS, and dispatch the resulting PUBLISH by QoS class.
func (c *Connection) processUpstreamMessage(msg UpstreamMessage) error {
	ctx := context.Background()

	matchedQoS, ok := matchSubscriptions(c.session.Subscriptions, msg.Topic, msg.CreatedAt, c.opts.ServerMaxQoS)
	if !ok {
		if msg.Feedback != nil {
			return msg.Feedback.Reject(ctx)
		}
		return nil
	}

	effectiveQoS := minQoS(minQoS(msg.QoS, matchedQoS), c.opts.ServerMaxQoS)
	packetID := c.nextPacketIDFor(effectiveQoS)

	pkt := &packets.PublishPacket{
		Topic:    msg.Topic,
		Payload:  msg.Payload,
		QoS:      uint8(effectiveQoS),
		PacketID: packetID,
	}

	switch effectiveQoS {
	case AtMostOnce:
		if msg.DeliveryCount == 0 {
			if err := c.transport.Write(ctx, pkt); err != nil {
				return NewError(KindPacketProcessing, "PUBLISH", err)
			}
			if err := c.transport.Flush(ctx); err != nil {
				return NewError(KindPacketProcessing, "PUBLISH", err)
			}
		}
		if msg.Feedback != nil {
			return msg.Feedback.Complete(ctx)
		}
		return nil

	case AtLeastOnce:
		return c.publishedQoS1.track(&pendingOutbound{packetID: packetID, message: msg, pkt: pkt})

	case ExactlyOnce:
		return c.dispatchQoS2(ctx, msg, pkt)

	default:
		return NewError(KindQoSNotSupported, "PUBLISH", nil)
	}
}

// dispatchQoS2 implements the QoS-2 branch of §4.5 step 5: resume from
// persisted state when this packet id already has a QoS-2 record for the
// same sequence number (a retransmit that already passed PUBREC), otherwise
// start a fresh PUBLISH/PUBREC exchange.
func (c *Connection) dispatchQoS2(ctx context.Context, msg UpstreamMessage, pkt *packets.PublishPacket) error {
	existing, ok, err := c.opts.QoS2Store.Get(ctx, c.identity.ID, pkt.PacketID)
	if err != nil {
		return NewError(KindPacketProcessing, "PUBLISH", err)
	}
	if ok && existing.Sequence != msg.Sequence {
		if err := c.opts.QoS2Store.Delete(ctx, c.identity.ID, pkt.PacketID); err != nil {
			return NewError(KindPacketProcessing, "PUBLISH", err)
		}
		ok = false
	}
	if ok && existing.Phase == AwaitingPubcomp {
		rel := &packets.PubrelPacket{PacketID: pkt.PacketID}
		return c.publishedQoS2Comp.track(&pendingOutbound{packetID: pkt.PacketID, message: msg, pkt: rel})
	}
	return c.publishedQoS2.track(&pendingOutbound{packetID: pkt.PacketID, message: msg, pkt: pkt})
}

// handlePuback implements the QoS-1 arrival branch of §4.5.
func (c *Connection) handlePuback(p *packets.PubackPacket) error {
	head, err := c.publishedQoS1.handleAck(p.PacketID)
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}
	defer c.refreshReadThrottle()
	if head.message.Feedback == nil {
		return nil
	}
	return head.message.Feedback.Complete(context.Background())
}

// handlePubrec implements the QoS-2 PUBREC arrival branch of §4.5: persist
// the two-phase delivery record, then send PUBREL via the PUBREL/PUBCOMP
// processor.
func (c *Connection) handlePubrec(p *packets.PubrecPacket) error {
	head, err := c.publishedQoS2.handleAck(p.PacketID)
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}

	ctx := context.Background()
	state := c.opts.QoS2Store.Create(head.message.Sequence)
	state.PacketID = p.PacketID
	state.Phase = AwaitingPubcomp
	if err := c.opts.QoS2Store.Set(ctx, c.identity.ID, state); err != nil {
		return NewError(KindPacketProcessing, "PUBREC", err)
	}

	rel := &packets.PubrelPacket{PacketID: p.PacketID}
	return c.publishedQoS2Comp.track(&pendingOutbound{packetID: p.PacketID, message: head.message, pkt: rel})
}

// handlePubcomp implements the QoS-2 PUBCOMP arrival branch of §4.5.
func (c *Connection) handlePubcomp(p *packets.PubcompPacket) error {
	head, err := c.publishedQoS2Comp.handleAck(p.PacketID)
	if err != nil {
		return err
	}
	if head == nil {
		return nil
	}
	defer c.refreshReadThrottle()

	ctx := context.Background()
	if err := c.opts.QoS2Store.Delete(ctx, c.identity.ID, p.PacketID); err != nil {
		c.logger.Warn("failed to delete completed QoS-2 record", "packet_id", p.PacketID, "error", err)
	}
	if head.message.Feedback == nil {
		return nil
	}
	return head.message.Feedback.Complete(ctx)
}

// sendTrackedPublish is the send action for the QoS-1 and QoS-2 (phase 1)
// processors: write the composed PUBLISH, marking it duplicate on retry.
func (c *Connection) sendTrackedPublish(p *pendingOutbound) error {
	ctx := context.Background()
	if pub, ok := p.pkt.(*packets.PublishPacket); ok && p.attempts > 1 {
		pub.Dup = true
	}
	if err := c.transport.Write(ctx, p.pkt); err != nil {
		return NewError(KindPacketProcessing, "PUBLISH", err)
	}
	return c.transport.Flush(ctx)
}

// sendTrackedPubrel is the send action for the PUBREL/PUBCOMP processor.
func (c *Connection) sendTrackedPubrel(p *pendingOutbound) error {
	ctx := context.Background()
	if err := c.transport.Write(ctx, p.pkt); err != nil {
		return NewError(KindPacketProcessing, "PUBREL", err)
	}
	return c.transport.Flush(ctx)
}

// nextPacketIDFor assigns a fresh non-zero packet id for a QoS>0 delivery.
// QoS 0 deliveries never consume the id space (§3, packet ids only exist for
// PUBLISH at QoS>0).
func (c *Connection) nextPacketIDFor(q QoS) uint16 {
	if q == AtMostOnce {
		return 0
	}
	c.nextPacketID++
	if c.nextPacketID == 0 {
		c.nextPacketID = 1
	}
	return c.nextPacketID
}
