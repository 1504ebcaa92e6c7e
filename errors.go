package adapter

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal adapter error for scoped logging and (where the
// protocol allows it) a best-effort CONNACK refusal before shutdown.
type Kind uint8

const (
	// KindUnspecified is the zero value; never produced by this package.
	KindUnspecified Kind = iota

	// KindConnectExpected is raised when a non-CONNECT packet arrives before
	// CONNECT.
	KindConnectExpected

	// KindDuplicateConnect is raised on a second CONNECT on the same
	// connection.
	KindDuplicateConnect

	// KindAuthenticationFailed is raised when the authenticator rejects the
	// CONNECT credentials.
	KindAuthenticationFailed

	// KindConnectTimedOut is raised when no CONNECT arrives within
	// Options.ConnectArrivalTimeout.
	KindConnectTimedOut

	// KindKeepAliveTimedOut is raised when the connection is idle beyond the
	// derived keep-alive timeout.
	KindKeepAliveTimedOut

	// KindUnknownPacketType is raised for a packet type the classifier does
	// not recognize.
	KindUnknownPacketType

	// KindUnresolvedSendingClient is raised when the bridge cannot resolve a
	// sending client for an inbound PUBLISH's topic.
	KindUnresolvedSendingClient

	// KindPayloadTooLarge is raised when an inbound PUBLISH payload exceeds
	// Options.MaxPayloadSize.
	KindPayloadTooLarge

	// KindExactlyOnceNotSupported is raised when a client PUBLISHes at QoS 2;
	// inbound QoS 2 from the client is not supported.
	KindExactlyOnceNotSupported

	// KindQoSNotSupported is raised for an out-of-range QoS on an outbound
	// message.
	KindQoSNotSupported

	// KindPacketProcessing wraps an error encountered while handling a
	// specific packet, for scoped logging.
	KindPacketProcessing

	// KindUpstreamReceive marks an error surfaced from the upstream
	// messaging bridge's receive side.
	KindUpstreamReceive
)

func (k Kind) String() string {
	switch k {
	case KindConnectExpected:
		return "ConnectExpected"
	case KindDuplicateConnect:
		return "DuplicateConnectReceived"
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindConnectTimedOut:
		return "ConnectionTimedOut"
	case KindKeepAliveTimedOut:
		return "KeepAliveTimedOut"
	case KindUnknownPacketType:
		return "UnknownPacketType"
	case KindUnresolvedSendingClient:
		return "UnResolvedSendingClient"
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindExactlyOnceNotSupported:
		return "ExactlyOnceQosNotSupported"
	case KindQoSNotSupported:
		return "QoSLevelNotSupported"
	case KindPacketProcessing:
		return "ChannelMessageProcessingException"
	case KindUpstreamReceive:
		return "MessagingException"
	default:
		return "Unspecified"
	}
}

// Error is the adapter's single error type. Every fatal condition is
// funneled through the Connection's shutdown method, which receives the originating cause in an
// Error tagged with a Kind and a free-form operation Scope (e.g.
// "-> UN/SUBSCRIBE") for forensic logging.
type Error struct {
	Kind      Kind
	Scope     string
	ChannelID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("adapter: %s%s", e.Kind, scopeSuffix(e.Scope))
	}
	return fmt.Sprintf("adapter: %s%s: %v", e.Kind, scopeSuffix(e.Scope), e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func scopeSuffix(scope string) string {
	if scope == "" {
		return ""
	}
	return " [" + scope + "]"
}

// Is allows callers to test for a Kind with
// errors.Is(err, adapter.KindSentinel(adapter.KindX)) by comparing against
// the sentinel's Kind.
func (e *Error) Is(target error) bool {
	var k *kindSentinelErr
	if errors.As(target, &k) {
		return e.Kind == k.kind
	}
	return false
}

type kindSentinelErr struct{ kind Kind }

func (k *kindSentinelErr) Error() string { return k.kind.String() }

// KindSentinel returns a sentinel error usable with errors.Is to test the
// Kind of an *Error, e.g. errors.Is(err, adapter.KindSentinel(adapter.KindKeepAliveTimedOut)).
func KindSentinel(k Kind) error { return &kindSentinelErr{kind: k} }

// NewError wraps cause with the given Kind and Scope.
func NewError(kind Kind, scope string, cause error) *Error {
	return &Error{Kind: kind, Scope: scope, Cause: cause}
}
