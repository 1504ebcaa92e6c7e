package adapter

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// TCPTransport implements Transport over a raw net.Conn (or a *tls.Conn,
// which satisfies the same interface), buffering reads and writes the way a
// plain TCP or TLS listener is wired in production (§5 "Transport
// Collaborator").
type TCPTransport struct {
	conn          net.Conn
	version       uint8
	maxPacketSize int

	br *bufio.Reader

	writeMu sync.Mutex
	bw      *bufio.Writer
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport wraps an already-accepted connection. version is the MQTT
// protocol level reported by the decoded CONNECT packet's header framing
// (packets.ReadPacket needs it up front); maxPacketSize bounds a single
// decoded packet, 0 using DefaultMaxIncomingPacket.
func NewTCPTransport(conn net.Conn, version uint8, maxPacketSize int) *TCPTransport {
	return &TCPTransport{
		conn:          conn,
		version:       version,
		maxPacketSize: getLimit(maxPacketSize, DefaultMaxIncomingPacket),
		br:            bufio.NewReader(conn),
		bw:            bufio.NewWriter(conn),
	}
}

// Read blocks for the next decoded packet. ctx cancellation does not abort a
// read already in flight on the underlying socket; callers that need prompt
// cancellation should close the connection instead (Close is safe to call
// concurrently with a blocked Read, per net.Conn's contract).
func (t *TCPTransport) Read(ctx context.Context) (packets.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return packets.ReadPacket(t.br, t.version, t.maxPacketSize)
}

// Write serializes pkt into the buffered writer without flushing it to the
// wire, mirroring the teacher's write-then-flush-on-idle pattern.
func (t *TCPTransport) Write(_ context.Context, pkt packets.Packet) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := pkt.WriteTo(t.bw)
	return err
}

// Flush pushes buffered writes to the socket.
func (t *TCPTransport) Flush(context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.bw.Flush()
}

func (t *TCPTransport) Close() error { return t.conn.Close() }

func (t *TCPTransport) RemoteAddress() string { return t.conn.RemoteAddr().String() }
