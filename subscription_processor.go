package adapter

import (
	"context"
	"time"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// subscriptionChange is one queued SUBSCRIBE or UNSUBSCRIBE packet awaiting
// the draining pass (§4.3).
type subscriptionChange struct {
	subscribe   *packets.SubscribePacket
	unsubscribe *packets.UnsubscribePacket
}

func (c *Connection) handleSubscribe(p *packets.SubscribePacket) error {
	c.subChangeQueue = append(c.subChangeQueue, subscriptionChange{subscribe: p})
	return c.drainSubscriptionChanges()
}

func (c *Connection) handleUnsubscribe(p *packets.UnsubscribePacket) error {
	c.subChangeQueue = append(c.subChangeQueue, subscriptionChange{unsubscribe: p})
	return c.drainSubscriptionChanges()
}

// drainSubscriptionChanges implements §4.3: copy-on-write session mutation
// with at most one in-flight persist. A packet that arrives while a drain is
// already running just extends the queue; the running drain picks it up on
// its next pass.
func (c *Connection) drainSubscriptionChanges() error {
	if c.state.Has(ChangingSubscriptions) {
		return nil
	}
	c.state = c.state.with(ChangingSubscriptions)
	defer func() { c.state = c.state.without(ChangingSubscriptions) }()

	ctx := context.Background()
	for len(c.subChangeQueue) > 0 {
		batch := c.subChangeQueue
		c.subChangeQueue = nil

		candidate := c.session.Copy()
		var subAcks []*packets.SubackPacket
		var unsubAcks []*packets.UnsubackPacket
		now := time.Now()

		for _, change := range batch {
			switch {
			case change.subscribe != nil:
				ack := applySubscribe(candidate, change.subscribe, c.opts.ServerMaxQoS, now)
				subAcks = append(subAcks, ack)
			case change.unsubscribe != nil:
				ack := applyUnsubscribe(candidate, change.unsubscribe)
				unsubAcks = append(unsubAcks, ack)
			}
		}

		if !candidate.Transient {
			if err := c.opts.SessionStore.Set(ctx, candidate); err != nil {
				return NewError(KindPacketProcessing, "-> UN/SUBSCRIBE", err)
			}
		}
		c.session = candidate

		for _, ack := range subAcks {
			if err := c.transport.Write(ctx, ack); err != nil {
				return NewError(KindPacketProcessing, "-> UN/SUBSCRIBE", err)
			}
		}
		for _, ack := range unsubAcks {
			if err := c.transport.Write(ctx, ack); err != nil {
				return NewError(KindPacketProcessing, "-> UN/SUBSCRIBE", err)
			}
		}
		if err := c.transport.Flush(ctx); err != nil {
			return NewError(KindPacketProcessing, "-> UN/SUBSCRIBE", err)
		}

		if c.state.Has(Closed) {
			return nil
		}
	}

	c.upstreamHandleCapabilitiesChanged()
	return nil
}

// upstreamHandleCapabilitiesChanged fires the bridge notification from §4.3
// step 5. It is a direct local call rather than a channel send: the adapter
// is its own UpstreamHandle.
func (c *Connection) upstreamHandleCapabilitiesChanged() {
	c.CapabilitiesChanged()
}

// applySubscribe mutates state in place (it operates on the copy made by the
// caller) and returns the SUBACK for one SUBSCRIBE packet.
func applySubscribe(state *SessionState, p *packets.SubscribePacket, serverMax QoS, now time.Time) *packets.SubackPacket {
	codes := make([]uint8, len(p.Topics))
	for i, filter := range p.Topics {
		requested := QoS(p.QoS[i])
		if err := validateSubscribeTopic(filter, 0); err != nil {
			codes[i] = packets.SubackFailure
			continue
		}
		granted := minQoS(requested, serverMax)

		replaced := false
		for j := range state.Subscriptions {
			if state.Subscriptions[j].TopicFilter == filter {
				state.Subscriptions[j].QoS = granted
				state.Subscriptions[j].CreatedAt = now
				replaced = true
				break
			}
		}
		if !replaced {
			state.Subscriptions = append(state.Subscriptions, Subscription{
				TopicFilter: filter,
				QoS:         granted,
				CreatedAt:   now,
			})
		}
		codes[i] = subackCodeForQoS(granted)
	}
	return &packets.SubackPacket{PacketID: p.PacketID, ReturnCodes: codes}
}

func subackCodeForQoS(q QoS) uint8 {
	switch q {
	case AtLeastOnce:
		return packets.SubackQoS1
	case ExactlyOnce:
		return packets.SubackQoS2
	default:
		return packets.SubackQoS0
	}
}

// applyUnsubscribe mutates state in place and returns the UNSUBACK.
func applyUnsubscribe(state *SessionState, p *packets.UnsubscribePacket) *packets.UnsubackPacket {
	for _, filter := range p.Topics {
		for j := range state.Subscriptions {
			if state.Subscriptions[j].TopicFilter == filter {
				state.Subscriptions = append(state.Subscriptions[:j], state.Subscriptions[j+1:]...)
				break
			}
		}
	}
	return &packets.UnsubackPacket{PacketID: p.PacketID}
}
