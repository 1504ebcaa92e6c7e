package adapter

// inboundBacklogSize is the sum of the three outbound Request/Ack
// processors' backlogs (§4.9).
func (c *Connection) inboundBacklogSize() int {
	return c.publishedQoS1.len() + c.publishedQoS2.len() + c.publishedQoS2Comp.len()
}

// readAllowed implements §4.9's two-clause read-permission test.
func (c *Connection) readAllowed() bool {
	if c.opts.MaxPendingInboundAcknowledgements > 0 && c.inboundBacklogSize() >= c.opts.MaxPendingInboundAcknowledgements {
		return false
	}
	return c.inboundBacklogBelowLimits()
}

// refreshReadThrottle re-evaluates §4.9 after an ack or inbound publish is
// consumed, updating the ReadThrottled flag and granting a fresh read permit
// to the read pump when reading is once again allowed.
func (c *Connection) refreshReadThrottle() {
	if !c.readAllowed() {
		c.state = c.state.with(ReadThrottled)
		return
	}
	c.state = c.state.without(ReadThrottled)
	select {
	case c.readPermit <- struct{}{}:
	default:
		// A permit is already outstanding; the read pump hasn't consumed it
		// yet.
	}
}
