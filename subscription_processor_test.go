package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

func TestApplySubscribe_GrantsCappedQoS(t *testing.T) {
	state := &SessionState{Identity: "device-1"}
	ack := applySubscribe(state, &packets.SubscribePacket{
		PacketID: 1,
		Topics:   []string{"a/b"},
		QoS:      []uint8{2},
	}, AtLeastOnce, time.Now())

	require.Len(t, state.Subscriptions, 1)
	require.Equal(t, AtLeastOnce, state.Subscriptions[0].QoS)
	require.Equal(t, []uint8{packets.SubackQoS1}, ack.ReturnCodes)
}

func TestApplySubscribe_InvalidFilterFails(t *testing.T) {
	state := &SessionState{Identity: "device-1"}
	ack := applySubscribe(state, &packets.SubscribePacket{
		PacketID: 1,
		Topics:   []string{"a/#/b"},
		QoS:      []uint8{0},
	}, ExactlyOnce, time.Now())

	require.Empty(t, state.Subscriptions)
	require.Equal(t, []uint8{packets.SubackFailure}, ack.ReturnCodes)
}

func TestApplySubscribe_ReplacesExistingFilter(t *testing.T) {
	t0 := time.Unix(1000, 0)
	state := &SessionState{
		Identity:      "device-1",
		Subscriptions: []Subscription{{TopicFilter: "a/b", QoS: AtMostOnce, CreatedAt: t0}},
	}

	t1 := t0.Add(time.Minute)
	applySubscribe(state, &packets.SubscribePacket{
		PacketID: 2,
		Topics:   []string{"a/b"},
		QoS:      []uint8{1},
	}, ExactlyOnce, t1)

	require.Len(t, state.Subscriptions, 1)
	require.Equal(t, AtLeastOnce, state.Subscriptions[0].QoS)
	require.Equal(t, t1, state.Subscriptions[0].CreatedAt)
}

func TestApplyUnsubscribe_RemovesFilter(t *testing.T) {
	state := &SessionState{
		Identity: "device-1",
		Subscriptions: []Subscription{
			{TopicFilter: "a/b", QoS: AtLeastOnce},
			{TopicFilter: "c/d", QoS: AtMostOnce},
		},
	}

	ack := applyUnsubscribe(state, &packets.UnsubscribePacket{PacketID: 3, Topics: []string{"a/b"}})

	require.Len(t, state.Subscriptions, 1)
	require.Equal(t, "c/d", state.Subscriptions[0].TopicFilter)
	require.Equal(t, uint16(3), ack.PacketID)
}
