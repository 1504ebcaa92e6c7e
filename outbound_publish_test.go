package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

func newTestConnection(t *testing.T) (*Connection, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	auth := NewStaticAuthenticator(nil)
	bridge := newFakeBridge()
	conn := New(transport, auth, bridge, NewOptions())
	conn.identity = Identity{ID: "device-1", IsAuthenticated: true}
	conn.session = &SessionState{Identity: "device-1", Transient: true}
	conn.state = Connected
	return conn, transport
}

func TestDispatchQoS2_FreshExchange(t *testing.T) {
	conn, transport := newTestConnection(t)
	conn.session.Subscriptions = []Subscription{{TopicFilter: "a/b", QoS: ExactlyOnce, CreatedAt: time.Unix(0, 0)}}

	fb := &fakeFeedback{}
	require.NoError(t, conn.processUpstreamMessage(UpstreamMessage{
		Topic:     "a/b",
		Payload:   []byte("x"),
		QoS:       ExactlyOnce,
		CreatedAt: time.Now(),
		Sequence:  1,
		Feedback:  fb,
	}))

	require.Equal(t, 1, transport.writtenCount())
	pub, ok := transport.lastWritten().(*packets.PublishPacket)
	require.True(t, ok)
	require.Equal(t, uint8(2), pub.QoS)
	require.Equal(t, 1, conn.publishedQoS2.len())
}

func TestDispatchQoS2_ResumesFromPersistedPubcompState(t *testing.T) {
	conn, transport := newTestConnection(t)
	ctx := context.Background()

	state := conn.opts.QoS2Store.Create(7)
	state.PacketID = 1
	state.Phase = AwaitingPubcomp
	require.NoError(t, conn.opts.QoS2Store.Set(ctx, conn.identity.ID, state))
	conn.nextPacketID = 0 // so the next assigned packet id is 1, matching the persisted record

	pkt := &packets.PublishPacket{Topic: "a/b", Payload: []byte("x"), QoS: 2, PacketID: 1}
	msg := UpstreamMessage{Topic: "a/b", Sequence: 7, Feedback: &fakeFeedback{}}

	require.NoError(t, conn.dispatchQoS2(ctx, msg, pkt))

	require.Equal(t, 0, conn.publishedQoS2.len(), "resumed directly into the PUBREL/PUBCOMP processor")
	require.Equal(t, 1, conn.publishedQoS2Comp.len())

	rel, ok := transport.lastWritten().(*packets.PubrelPacket)
	require.True(t, ok)
	require.Equal(t, uint16(1), rel.PacketID)
}

func TestDispatchQoS2_SequenceMismatchDiscardsStaleRecord(t *testing.T) {
	conn, _ := newTestConnection(t)
	ctx := context.Background()

	state := conn.opts.QoS2Store.Create(5)
	state.PacketID = 1
	state.Phase = AwaitingPubcomp
	require.NoError(t, conn.opts.QoS2Store.Set(ctx, conn.identity.ID, state))

	pkt := &packets.PublishPacket{Topic: "a/b", Payload: []byte("x"), QoS: 2, PacketID: 1}
	msg := UpstreamMessage{Topic: "a/b", Sequence: 6, Feedback: &fakeFeedback{}}

	require.NoError(t, conn.dispatchQoS2(ctx, msg, pkt))

	require.Equal(t, 1, conn.publishedQoS2.len(), "mismatched sequence starts a fresh exchange instead of resuming")
	_, ok, err := conn.opts.QoS2Store.Get(ctx, conn.identity.ID, 1)
	require.NoError(t, err)
	require.False(t, ok, "the stale record was deleted")
}

func TestHandlePubrec_PersistsAndSendsPubrel(t *testing.T) {
	conn, transport := newTestConnection(t)
	fb := &fakeFeedback{}
	require.NoError(t, conn.publishedQoS2.track(&pendingOutbound{
		packetID: 9,
		message:  UpstreamMessage{Sequence: 42, Feedback: fb},
		pkt:      &packets.PublishPacket{PacketID: 9},
	}))
	transport.written = nil

	require.NoError(t, conn.handlePubrec(&packets.PubrecPacket{PacketID: 9}))

	rel, ok := transport.lastWritten().(*packets.PubrelPacket)
	require.True(t, ok)
	require.Equal(t, uint16(9), rel.PacketID)
	require.Equal(t, 1, conn.publishedQoS2Comp.len())

	stored, ok, err := conn.opts.QoS2Store.Get(context.Background(), conn.identity.ID, 9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), stored.Sequence)
	require.Equal(t, AwaitingPubcomp, stored.Phase)
}

func TestHandlePubcomp_DeletesRecordAndCompletesFeedback(t *testing.T) {
	conn, _ := newTestConnection(t)
	ctx := context.Background()

	state := conn.opts.QoS2Store.Create(3)
	state.PacketID = 2
	require.NoError(t, conn.opts.QoS2Store.Set(ctx, conn.identity.ID, state))

	fb := &fakeFeedback{}
	require.NoError(t, conn.publishedQoS2Comp.track(&pendingOutbound{
		packetID: 2,
		message:  UpstreamMessage{Sequence: 3, Feedback: fb},
		pkt:      &packets.PubrelPacket{PacketID: 2},
	}))

	require.NoError(t, conn.handlePubcomp(&packets.PubcompPacket{PacketID: 2}))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.True(t, fb.completed)

	_, ok, err := conn.opts.QoS2Store.Get(ctx, conn.identity.ID, 2)
	require.NoError(t, err)
	require.False(t, ok)
}
