package adapter

import "github.com/iotgateway/mqttadapter/internal/packets"

// ConnackCode is a CONNACK return code as defined by MQTT v3.1.1.
type ConnackCode = uint8

// CONNACK return codes used by this adapter. Only the three codes named in
// the protocol design are ever sent: Accepted, RefusedNotAuthorized, and
// RefusedServerUnavailable (the latter as a best-effort notice immediately
// before a shutdown caused by any other failure during CONNECT, including an
// unsupported protocol level or an authenticator error).
const (
	ConnackAccepted             ConnackCode = packets.ConnAccepted
	ConnackRefusedNotAuthorized ConnackCode = packets.ConnRefusedNotAuthorized
	ConnackRefusedUnavailable   ConnackCode = packets.ConnRefusedServerUnavailable
)
