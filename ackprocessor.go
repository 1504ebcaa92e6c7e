package adapter

import (
	"fmt"
	"time"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// pendingOutbound is one in-flight outbound delivery awaiting acknowledgment
// (§4.6 Request/Ack Processor). sentAt drives the ack-timeout check; attempts
// counts sends (1 after the first), and sendTrackedPublish sets DUP once it
// exceeds 1.
type pendingOutbound struct {
	packetID uint16
	message  UpstreamMessage
	pkt      packets.Packet
	sentAt   time.Time
	attempts int
}

// ackProcessor is a generic FIFO pending-queue keyed by packet ID, used by
// the three outbound acknowledgment stages (QoS-1 PUBACK, QoS-2 PUBREC,
// QoS-2 PUBCOMP; §4.5, §4.6). It enforces ordered acknowledgment per
// invariant P4 and drives ack-timeout retransmission per P5.
//
// All methods run on the owning Connection's single event-loop goroutine.
type ackProcessor struct {
	name              string
	pending           []*pendingOutbound
	abortOnOutOfOrder bool
	send              func(p *pendingOutbound) error
}

func newAckProcessor(name string, abortOnOutOfOrder bool, send func(p *pendingOutbound) error) *ackProcessor {
	return &ackProcessor{name: name, abortOnOutOfOrder: abortOnOutOfOrder, send: send}
}

// track enqueues p and sends it immediately.
func (a *ackProcessor) track(p *pendingOutbound) error {
	p.sentAt = time.Now()
	p.attempts = 1
	a.pending = append(a.pending, p)
	return a.send(p)
}

// handleAck processes an acknowledgment for packetID (§4.6, invariant P4).
// The oldest pending entry must match packetID; a mismatch is either fatal
// or tolerant depending on abortOnOutOfOrder.
func (a *ackProcessor) handleAck(packetID uint16) (*pendingOutbound, error) {
	if len(a.pending) == 0 {
		return nil, NewError(KindPacketProcessing, a.name, fmt.Errorf("unexpected ack for packet %d: nothing pending", packetID))
	}

	head := a.pending[0]
	if head.packetID != packetID {
		if a.abortOnOutOfOrder {
			return nil, NewError(KindPacketProcessing, a.name,
				fmt.Errorf("out-of-order ack: expected %d, got %d", head.packetID, packetID))
		}
		// Tolerant policy: drop the offending ack and leave the head pending
		// for its own ack or timeout retransmission.
		return nil, nil
	}

	a.pending = a.pending[1:]
	return head, nil
}

// checkTimeouts retransmits any entry whose ack has not arrived within
// timeout, in FIFO order (oldest first), and returns the first send error.
// Called with canTimeout=false, the method is a no-op (§6
// DeviceReceiveAckCanTimeout).
func (a *ackProcessor) checkTimeouts(now time.Time, timeout time.Duration, canTimeout bool) error {
	if !canTimeout || timeout <= 0 {
		return nil
	}
	for _, p := range a.pending {
		if now.Sub(p.sentAt) < timeout {
			break
		}
		p.attempts++
		p.sentAt = now
		if err := a.send(p); err != nil {
			return err
		}
	}
	return nil
}

// len reports the current backlog size, used for flow-control accounting
// (§4.9).
func (a *ackProcessor) len() int { return len(a.pending) }

// drain removes every pending entry and calls discard on each, used during
// shutdown to release references held by in-flight deliveries (§4.10).
func (a *ackProcessor) drain(discard func(*pendingOutbound)) {
	for _, p := range a.pending {
		discard(p)
	}
	a.pending = nil
}
