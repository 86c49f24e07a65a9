package controller

import (
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New(c.handleError)
	mux.Use(c.loggerWSMw)

	// membership
	wsrouter.Handle(mux, protocol.TypeJoin, c.handleJoin)
	wsrouter.Handle(mux, protocol.TypeLeave, c.handleLeave)
	wsrouter.Handle(mux, protocol.TypePromote, c.handlePromote)
	wsrouter.Handle(mux, protocol.TypeSyncRequest, c.handleSyncRequest)

	// player
	wsrouter.Handle(mux, protocol.TypeControl, c.handleControl)
	wsrouter.Handle(mux, protocol.TypeHeartbeatSync, c.handleHeartbeatSync)

	wsrouter.Handle(mux, protocol.TypeChat, c.handleChat)
	wsrouter.Handle(mux, protocol.TypePing, c.handlePing)

	return mux
}
