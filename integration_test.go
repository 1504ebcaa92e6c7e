package adapter

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

// TestIntegration_PahoClientEndToEnd drives this adapter against a real
// independent MQTT v3.1.1 client library over an actual TCP socket, rather
// than the in-process fakes the rest of this package's tests use. It
// exercises the CONNECT/SUBACK/PUBLISH wire format end to end: if this
// adapter's internal/packets encoding ever drifted from the spec, an
// interop test against its own fakeTransport would never notice, but paho
// decoding our bytes would.
func TestIntegration_PahoClientEndToEnd(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	bridge := newFakeBridge()
	sendingClient := &fakeSendingClient{}
	bridge.clients["sensors/a/temperature"] = sendingClient
	auth := NewStaticAuthenticator(map[string]string{"alice": "secret"})

	connCh := make(chan *Connection, 1)
	serverErr := make(chan error, 1)
	go func() {
		raw, err := listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		transport := NewTCPTransport(raw, 4, 0)
		conn := New(transport, auth, bridge, NewOptions())
		connCh <- conn
		serverErr <- conn.Run(context.Background())
	}()

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + listener.Addr().String()).
		SetClientID("device-1").
		SetUsername("alice").
		SetPassword("secret").
		SetAutoReconnect(false).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	connectToken := client.Connect()
	require.True(t, connectToken.WaitTimeout(5*time.Second), "CONNECT did not complete in time")
	require.NoError(t, connectToken.Error())
	defer client.Disconnect(250)

	received := make(chan mqtt.Message, 1)
	subscribeToken := client.Subscribe("sensors/a/temperature", 1, func(_ mqtt.Client, msg mqtt.Message) {
		received <- msg
	})
	require.True(t, subscribeToken.WaitTimeout(5*time.Second), "SUBSCRIBE did not complete in time")
	require.NoError(t, subscribeToken.Error())

	var conn *Connection
	select {
	case conn = <-connCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	fb := &fakeFeedback{}
	require.NoError(t, conn.Handle(context.Background(), UpstreamMessage{
		Topic:     "sensors/a/temperature",
		Payload:   []byte("21.5"),
		QoS:       AtLeastOnce,
		CreatedAt: time.Now().Add(time.Hour),
		Feedback:  fb,
	}))

	select {
	case msg := <-received:
		require.Equal(t, "sensors/a/temperature", msg.Topic())
		require.Equal(t, []byte("21.5"), msg.Payload())
		require.Equal(t, byte(1), msg.Qos())
	case <-time.After(5 * time.Second):
		t.Fatalf("paho client never received the published message; bridge state: %s", spew.Sdump(bridge))
	}
}
