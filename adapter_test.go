package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// fakeTransport is an in-memory Transport driven by test code instead of a
// real socket, so the event loop can be exercised deterministically.
type fakeTransport struct {
	mu      sync.Mutex
	inbound chan packets.Packet
	written []packets.Packet
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan packets.Packet, 16)}
}

func (t *fakeTransport) push(pkt packets.Packet) { t.inbound <- pkt }

func (t *fakeTransport) Read(ctx context.Context) (packets.Packet, error) {
	select {
	case pkt, ok := <-t.inbound:
		if !ok {
			return nil, context.Canceled
		}
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Write(_ context.Context, pkt packets.Packet) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, pkt)
	return nil
}

func (t *fakeTransport) Flush(context.Context) error { return nil }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbound)
	}
	return nil
}

func (t *fakeTransport) RemoteAddress() string { return "127.0.0.1:1234" }

func (t *fakeTransport) lastWritten() packets.Packet {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.written) == 0 {
		return nil
	}
	return t.written[len(t.written)-1]
}

func (t *fakeTransport) writtenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.written)
}

type fakeFeedback struct {
	mu        sync.Mutex
	completed bool
	abandoned bool
	rejected  bool
}

func (f *fakeFeedback) Complete(context.Context) error { f.mu.Lock(); f.completed = true; f.mu.Unlock(); return nil }
func (f *fakeFeedback) Abandon(context.Context) error { f.mu.Lock(); f.abandoned = true; f.mu.Unlock(); return nil }
func (f *fakeFeedback) Reject(context.Context) error { f.mu.Lock(); f.rejected = true; f.mu.Unlock(); return nil }

type fakeSendingClient struct {
	mu   sync.Mutex
	sent []any
}

func (s *fakeSendingClient) CreateMessage(topic string, payload []byte) any {
	return struct {
		Topic   string
		Payload []byte
	}{topic, payload}
}

func (s *fakeSendingClient) SendAsync(_ context.Context, message any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, message)
	return nil
}

func (s *fakeSendingClient) MaxPendingMessages() int { return 0 }

type fakeBridge struct {
	handle  UpstreamHandle
	clients map[string]SendingClient
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{clients: make(map[string]SendingClient)}
}

func (b *fakeBridge) BindMessagingChannel(handle UpstreamHandle) error {
	b.handle = handle
	return nil
}

func (b *fakeBridge) TryResolveClient(topicName string) (SendingClient, bool) {
	c, ok := b.clients[topicName]
	return c, ok
}

func (b *fakeBridge) DisposeAsync(context.Context, error) error { return nil }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestConnection_ConnectSubscribePublishAndDisconnect(t *testing.T) {
	transport := newFakeTransport()
	auth := NewStaticAuthenticator(map[string]string{"alice": "secret"})
	bridge := newFakeBridge()
	sendingClient := &fakeSendingClient{}
	bridge.clients["sensors/a/temperature"] = sendingClient

	opts := NewOptions()
	conn := New(transport, auth, bridge, opts)

	done := make(chan error, 1)
	go func() { done <- conn.Run(context.Background()) }()

	transport.push(&packets.ConnectPacket{
		ProtocolName:  "MQTT",
		ProtocolLevel: 4,
		CleanSession:  true,
		ClientID:      "device-1",
		Username:      "alice",
		Password:      "secret",
		UsernameFlag:  true,
		PasswordFlag:  true,
	})

	waitFor(t, time.Second, func() bool {
		ack, ok := transport.lastWritten().(*packets.ConnackPacket)
		return ok && ack.ReturnCode == packets.ConnAccepted
	})

	transport.push(&packets.SubscribePacket{
		PacketID: 1,
		Topics:   []string{"sensors/a/temperature"},
		QoS:      []uint8{1},
	})

	waitFor(t, time.Second, func() bool {
		_, ok := transport.lastWritten().(*packets.SubackPacket)
		return ok
	})

	fb := &fakeFeedback{}
	require.NoError(t, conn.Handle(context.Background(), UpstreamMessage{
		Topic:     "sensors/a/temperature",
		Payload:   []byte("21.5"),
		QoS:       AtLeastOnce,
		CreatedAt: time.Now().Add(time.Hour),
		Feedback:  fb,
	}))

	waitFor(t, time.Second, func() bool {
		pub, ok := transport.lastWritten().(*packets.PublishPacket)
		return ok && pub.Topic == "sensors/a/temperature"
	})

	pub := transport.lastWritten().(*packets.PublishPacket)
	require.Equal(t, uint8(1), pub.QoS)

	transport.push(&packets.PubackPacket{PacketID: pub.PacketID})

	waitFor(t, time.Second, func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.completed
	})

	transport.push(&packets.DisconnectPacket{})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("connection did not shut down after DISCONNECT")
	}
}

func TestConnection_RejectsUnauthenticated(t *testing.T) {
	transport := newFakeTransport()
	auth := NewStaticAuthenticator(map[string]string{"alice": "secret"})
	bridge := newFakeBridge()
	conn := New(transport, auth, bridge, NewOptions())

	done := make(chan error, 1)
	go func() { done <- conn.Run(context.Background()) }()

	transport.push(&packets.ConnectPacket{
		ProtocolName:  "MQTT",
		ProtocolLevel: 4,
		ClientID:      "device-1",
		Username:      "alice",
		Password:      "wrong",
		UsernameFlag:  true,
		PasswordFlag:  true,
	})

	select {
	case err := <-done:
		require.Error(t, err)
		require.ErrorIs(t, err, KindSentinel(KindAuthenticationFailed))
	case <-time.After(time.Second):
		t.Fatal("connection did not reject bad credentials")
	}

	ack, ok := transport.lastWritten().(*packets.ConnackPacket)
	require.True(t, ok)
	require.Equal(t, uint8(packets.ConnRefusedNotAuthorized), ack.ReturnCode)
}
