package adapter

import (
	"context"
	"time"
)

// QoS2Phase is the two-phase delivery state of an outbound QoS-2 message
// (§3 "QoS-2 Delivery State").
type QoS2Phase uint8

const (
	// AwaitingPubrec is the phase Create returns. The record is first passed
	// to the store only when the client's PUBREC arrives, already moved to
	// AwaitingPubcomp, just before PUBREL is sent (§4.5's "persist a QoS-2
	// delivery-state record ... then send PUBREL").
	AwaitingPubrec QoS2Phase = iota
	AwaitingPubcomp
)

// QoS2State is the persisted record keyed by (identity, packet id) (§3).
type QoS2State struct {
	Sequence  uint64
	PacketID  uint16
	Phase     QoS2Phase
	StartedAt time.Time
}

// QoS2Store persists QoS2State through the collaborator (§6 "QoS-2
// delivery-state store"). Like SessionStore, every method runs on the
// adapter's single event-loop goroutine.
type QoS2Store interface {
	Get(ctx context.Context, identity string, packetID uint16) (state *QoS2State, ok bool, err error)
	Set(ctx context.Context, identity string, state *QoS2State) error
	Delete(ctx context.Context, identity string, packetID uint16) error
	Create(sequence uint64) *QoS2State
}
