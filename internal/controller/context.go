package controller

import (
	"context"

	"github.com/sharetube/watchparty/internal/identity"
)

type contextKey int

const (
	sessionCtxKey contextKey = iota
)

// session is the per-connection membership. Messages of one connection are
// handled sequentially, so it needs no locking.
type session struct {
	identity identity.Identity
	roomID   string
}

func withSession(ctx context.Context, s *session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}

func (c *controller) getSessionFromCtx(ctx context.Context) *session {
	s, ok := ctx.Value(sessionCtxKey).(*session)
	if !ok {
		return &session{}
	}

	return s
}
