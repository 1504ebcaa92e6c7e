package adapter

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iotgateway/mqttadapter/internal/packets"
)

// reconnectDedup collapses concurrent CONNECTs for the same client ID into a
// single Authenticate call, grounded by the expanded spec's Open Question
// decision: two transports racing to present the same identity share one
// authentication result. Session state is still loaded or created by each
// connection on its own (resolveSession is not collapsed).
var reconnectDedup singleflight.Group

// handleConnect processes the CONNECT packet (§4.2). It authenticates,
// resolves session state per the CleanSession flag, captures any will
// message, and replies with CONNACK.
func (c *Connection) handleConnect(p *packets.ConnectPacket) error {
	c.state = c.state.with(ProcessingConnect)

	if p.ProtocolLevel != 4 {
		return c.refuseConnect(packets.ConnRefusedServerUnavailable,
			fmt.Errorf("unsupported protocol level %d", p.ProtocolLevel))
	}

	ctx := context.Background()
	identityAny, err, _ := reconnectDedup.Do(p.ClientID, func() (any, error) {
		return c.authenticator.Authenticate(ctx, p.ClientID, p.Username, p.Password, c.transport.RemoteAddress())
	})
	if err != nil {
		return c.refuseConnect(packets.ConnRefusedServerUnavailable, NewError(KindAuthenticationFailed, "CONNECT", err))
	}
	identity := identityAny.(Identity)
	if !identity.IsAuthenticated {
		return c.refuseConnect(packets.ConnRefusedNotAuthorized, NewError(KindAuthenticationFailed, "CONNECT", nil))
	}
	c.identity = identity

	sessionPresent, err := c.resolveSession(ctx, p)
	if err != nil {
		return c.refuseConnect(packets.ConnRefusedServerUnavailable, NewError(KindPacketProcessing, "CONNECT", err))
	}

	if p.WillFlag {
		c.will = &WillMessage{
			Topic:   p.WillTopic,
			Payload: p.WillMessage,
			QoS:     minQoS(QoS(p.WillQoS), c.opts.ServerMaxQoS),
			Retain:  p.WillRetain,
		}
	}

	c.keepAlive = c.deriveKeepAlive(p.KeepAlive)
	c.lastActivity = time.Now()
	c.state = c.state.with(Connected)

	if err := c.transport.Write(ctx, &packets.ConnackPacket{
		SessionPresent: sessionPresent,
		ReturnCode:     packets.ConnAccepted,
	}); err != nil {
		return NewError(KindPacketProcessing, "CONNACK", err)
	}
	if err := c.transport.Flush(ctx); err != nil {
		return NewError(KindPacketProcessing, "CONNACK", err)
	}

	// Bind only now that the session and subscriptions this connection will
	// ever have are established (§4.2): a bridge may begin delivering
	// upstream messages as soon as BindMessagingChannel returns, and
	// processUpstreamMessage requires c.session and c.identity to be set.
	if err := c.bridge.BindMessagingChannel(c); err != nil {
		return NewError(KindPacketProcessing, "BindMessagingChannel", err)
	}

	return c.completeConnect()
}

// resolveSession loads or creates the session per the CleanSession flag (§3
// "Session State", §4.2). It returns whether an existing, non-transient
// session was found (the CONNACK SessionPresent flag).
func (c *Connection) resolveSession(ctx context.Context, p *packets.ConnectPacket) (sessionPresent bool, err error) {
	if p.CleanSession {
		if err := c.opts.SessionStore.Delete(ctx, p.ClientID); err != nil {
			return false, err
		}
		c.session = c.opts.SessionStore.Create(p.ClientID, true)
		return false, nil
	}

	existing, ok, err := c.opts.SessionStore.Get(ctx, p.ClientID)
	if err != nil {
		return false, err
	}
	if ok {
		c.session = existing
		return true, nil
	}
	c.session = c.opts.SessionStore.Create(p.ClientID, false)
	return false, nil
}

// deriveKeepAlive computes the enforced keep-alive timeout (§4.7): 1.5x the
// client's requested interval, capped by MaxKeepAliveTimeout. A
// client-requested zero keep-alive (keep-alive disabled) is itself capped by
// MaxKeepAliveTimeout when one is configured.
func (c *Connection) deriveKeepAlive(requested uint16) time.Duration {
	if requested == 0 {
		return c.opts.MaxKeepAliveTimeout
	}
	d := time.Duration(float64(requested)*1.5) * time.Second
	if c.opts.MaxKeepAliveTimeout > 0 && d > c.opts.MaxKeepAliveTimeout {
		return c.opts.MaxKeepAliveTimeout
	}
	return d
}

// refuseConnect sends a best-effort CONNACK refusal and converts cause into
// the fatal error that ends this connection (§4.2, §4.10).
func (c *Connection) refuseConnect(code ConnackCode, cause error) error {
	ctx := context.Background()
	_ = c.transport.Write(ctx, &packets.ConnackPacket{ReturnCode: code})
	_ = c.transport.Flush(ctx)
	return cause
}
