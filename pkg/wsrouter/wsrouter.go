package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/pkg/wsconn"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidPayload = errors.New("invalid payload")
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *wsconn.Conn, payload json.RawMessage) error

// ErrorHandler receives every error returned by a handler, including
// ErrUnknownType and ErrInvalidPayload produced by the router itself.
type ErrorHandler func(ctx context.Context, conn *wsconn.Conn, err error)

type Middleware func(next HandlerFunc) HandlerFunc

type WSRouter struct {
	routes      map[string]HandlerFunc
	middlewares []Middleware
	onError     ErrorHandler
}

func New(onError ErrorHandler) *WSRouter {
	return &WSRouter{
		routes:  make(map[string]HandlerFunc),
		onError: onError,
	}
}

// Use appends middlewares wrapping every handler. The first one added is
// the outermost.
func (r *WSRouter) Use(mws ...Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// Handle registers a handler whose payload is decoded into T.
func Handle[T any](r *WSRouter, messageType string, handler func(context.Context, *wsconn.Conn, T) error) {
	r.Handle(messageType, func(ctx context.Context, conn *wsconn.Conn, payload json.RawMessage) error {
		var input T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &input); err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidPayload, err)
			}
		}

		return handler(ctx, conn, input)
	})
}

// Dispatch routes a single raw message.
func (r *WSRouter) Dispatch(ctx context.Context, conn *wsconn.Conn, msgType string, payload json.RawMessage) {
	handler, exists := r.routes[msgType]
	if !exists {
		r.fail(ctx, conn, fmt.Errorf("%w: %q", ErrUnknownType, msgType))
		return
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	ctx = context.WithValue(ctx, messageTypeKey, msgType)
	if err := handler(ctx, conn, payload); err != nil {
		r.fail(ctx, conn, err)
	}
}

// ServeConn reads messages from conn until it fails and routes each one to
// its handler. Messages are handled one at a time, in arrival order.
func (r *WSRouter) ServeConn(ctx context.Context, conn *wsconn.Conn) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				r.fail(ctx, conn, fmt.Errorf("%w: %s", ErrInvalidPayload, err))
				continue
			}

			return err
		}

		r.Dispatch(ctx, conn, msg.Type, msg.Payload)
	}
}

func (r *WSRouter) fail(ctx context.Context, conn *wsconn.Conn, err error) {
	if r.onError != nil {
		r.onError(ctx, conn, err)
	}
}
