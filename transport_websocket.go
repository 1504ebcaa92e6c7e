package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// errNotBinary is returned when a peer sends a text WebSocket frame; MQTT
// packets are always carried as binary messages, adapted from the gomqtt
// WebSocket transport's ErrNotBinary.
var errNotBinary = errors.New("adapter: received non-binary websocket message")

// WebSocketTransport implements Transport over binary WebSocket messages
// (grounded on the gomqtt transport package's WebSocketConn, which reads and
// writes through *websocket.Conn's NextReader/NextWriter). Write sends one
// MQTT packet per message; Read decodes any number of whole packets from
// each message. A packet split across two messages is not reassembled: the
// partial read fails and Read returns the error.
type WebSocketTransport struct {
	conn          *websocket.Conn
	version       uint8
	maxPacketSize int

	writeMu sync.Mutex
	reader  io.Reader
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport wraps an already-upgraded *websocket.Conn.
// maxPacketSize bounds a single decoded packet; 0 uses DefaultMaxIncomingPacket.
func NewWebSocketTransport(conn *websocket.Conn, maxPacketSize int) *WebSocketTransport {
	return &WebSocketTransport{conn: conn, version: 4, maxPacketSize: getLimit(maxPacketSize, DefaultMaxIncomingPacket)}
}

// nextReader returns the io.Reader for the current (possibly still being
// read) WebSocket message, advancing to the next message once the current
// one is exhausted.
func (t *WebSocketTransport) nextReader() (io.Reader, error) {
	for {
		if t.reader != nil {
			return t.reader, nil
		}
		messageType, r, err := t.conn.NextReader()
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if messageType != websocket.BinaryMessage {
			return nil, errNotBinary
		}
		t.reader = r
		return t.reader, nil
	}
}

// Read decodes the next MQTT packet from the WebSocket stream.
func (t *WebSocketTransport) Read(ctx context.Context) (packets.Packet, error) {
	for {
		r, err := t.nextReader()
		if err != nil {
			return nil, err
		}
		pkt, err := packets.ReadPacket(r, t.version, t.maxPacketSize)
		if errors.Is(err, io.EOF) {
			t.reader = nil
			continue
		}
		if err != nil {
			t.reader = nil
			return nil, err
		}
		return pkt, nil
	}
}

// Write serializes pkt into a single binary WebSocket message.
func (t *WebSocketTransport) Write(_ context.Context, pkt packets.Packet) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var buf bytes.Buffer
	if _, err := pkt.WriteTo(&buf); err != nil {
		return err
	}
	w, err := t.conn.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Flush is a no-op: each Write already produces a complete WebSocket
// message, so there is nothing buffered to push.
func (t *WebSocketTransport) Flush(context.Context) error { return nil }

// Close sends a normal-closure control frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.writeMu.Lock()
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	t.writeMu.Unlock()
	return t.conn.Close()
}

// RemoteAddress returns the peer's network address.
func (t *WebSocketTransport) RemoteAddress() string {
	return t.conn.RemoteAddr().String()
}
