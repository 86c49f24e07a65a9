package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsconn"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

var ErrValidationError = errors.New("validation error")

type validationError struct {
	errors []validator.ValidationError
}

func (e validationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrValidationError, e.errors)
}

func (e validationError) Unwrap() error {
	return ErrValidationError
}

func (c *controller) validateInput(input any) error {
	if errs, ok := c.validate.Validate(input); !ok {
		return validationError{errors: errs}
	}

	return nil
}

// handleError reports a failed message to its sender only. Operations on
// rooms that no longer exist are dropped without a reply.
func (c *controller) handleError(ctx context.Context, conn *wsconn.Conn, err error) {
	if errors.Is(err, room.ErrRoomNotFound) {
		c.logger.DebugContext(ctx, "message for unknown room ignored", "error", err)
		return
	}

	out := protocol.Error{Message: err.Error()}

	var vErr validationError
	switch {
	case errors.As(err, &vErr):
		out.Code = protocol.CodeMalformedPayload
		out.Message = ErrValidationError.Error()
		out.Errors = vErr.errors
	case errors.Is(err, wsrouter.ErrInvalidPayload), errors.Is(err, room.ErrMalformedPayload):
		out.Code = protocol.CodeMalformedPayload
	case errors.Is(err, wsrouter.ErrUnknownType):
		out.Code = protocol.CodeUnknownType
	case errors.Is(err, room.ErrPermissionDenied):
		out.Code = protocol.CodePermissionDenied
	case errors.Is(err, room.ErrAlreadyJoined):
		out.Code = protocol.CodeAlreadyJoined
	case errors.Is(err, room.ErrNotInRoom), errors.Is(err, room.ErrMemberNotFound):
		out.Code = protocol.CodeNotInRoom
	default:
		c.logger.ErrorContext(ctx, "failed to handle message", "error", err)
		out.Code = protocol.CodeInternal
		out.Message = "internal error"
	}

	c.logger.DebugContext(ctx, "message rejected", "code", out.Code, "error", err)
	c.writeToConn(ctx, conn, protocol.NewOutput(protocol.TypeError, out))
}
