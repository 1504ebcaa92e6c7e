package adapter

import (
	"fmt"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// dispatch routes one decoded packet to its handler (§4.1 Packet Classifier
// and Dispatch). It runs entirely on the event-loop goroutine; every handler
// it calls either returns quickly or suspends the loop intentionally (e.g.
// while persisting session state).
func (c *Connection) dispatch(pkt packets.Packet) error {
	switch {
	case c.state.phase() == Connected, pkt.Type() == packets.CONNECT:
		// fall through to the dispatch table below.
	case c.state.phase() == ProcessingConnect:
		c.connectPendingQueue = append(c.connectPendingQueue, pkt)
		return nil
	default:
		return NewError(KindConnectExpected, packets.PacketNames[pkt.Type()], nil)
	}

	switch p := pkt.(type) {
	case *packets.ConnectPacket:
		if c.state.phase() != WaitingForConnect {
			return NewError(KindDuplicateConnect, "CONNECT", nil)
		}
		return c.handleConnect(p)

	case *packets.PublishPacket:
		return c.handleInboundPublish(p)

	case *packets.PubackPacket:
		return c.handlePuback(p)

	case *packets.PubrecPacket:
		return c.handlePubrec(p)

	case *packets.PubrelPacket:
		// Inbound QoS-2 from the client is not supported (§4.4); a client
		// can only produce a PUBREL by completing a QoS-2 PUBLISH exchange
		// we never acknowledge with PUBREC, so this is a protocol violation.
		return NewError(KindExactlyOnceNotSupported, "PUBREL", nil)

	case *packets.PubcompPacket:
		return c.handlePubcomp(p)

	case *packets.SubscribePacket:
		return c.handleSubscribe(p)

	case *packets.UnsubscribePacket:
		return c.handleUnsubscribe(p)

	case *packets.PingreqPacket:
		return c.handlePingreq()

	case *packets.DisconnectPacket:
		return c.handleDisconnect()

	default:
		return NewError(KindUnknownPacketType, fmt.Sprintf("type=%d", pkt.Type()), nil)
	}
}
