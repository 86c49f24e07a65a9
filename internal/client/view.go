package client

import "github.com/sharetube/watchparty/internal/protocol"

// refreshView copies loop-owned state for the accessors below.
func (c *Client) refreshView() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.view.selfID = c.rec.SelfID()
	c.view.hostID = c.rec.HostID()
	c.view.applied = c.rec.Applied()
}

func (c *Client) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.view.selfID
}

func (c *Client) HostID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.view.hostID
}

func (c *Client) IsHost() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.view.selfID != "" && c.view.selfID == c.view.hostID
}

// Applied is the last room revision reflected by the local player.
func (c *Client) Applied() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.view.applied
}

func (c *Client) Members() []protocol.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]protocol.Member(nil), c.view.members...)
}

func (c *Client) ChatLog() []protocol.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]protocol.ChatMessage(nil), c.view.chat...)
}

func (c *Client) LastError() *protocol.Error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.view.lastError
}

func (c *Client) HeartbeatRunning() bool {
	return c.hb.Running()
}
