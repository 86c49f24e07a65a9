package room

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/repository/room"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

type ChatParams struct {
	RoomID   string
	SenderID string
	Text     string
}

type ChatResponse struct {
	Message protocol.ChatMessage
	// Conns includes the sender.
	Conns []*wsconn.Conn
}

func (s service) Chat(ctx context.Context, params *ChatParams) (ChatResponse, error) {
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return ChatResponse{}, fmt.Errorf("%w: text is required", ErrMalformedPayload)
	}
	if utf8.RuneCountInString(text) > s.chatMaxLength {
		return ChatResponse{}, fmt.Errorf("%w: text must not exceed %d characters", ErrMalformedPayload, s.chatMaxLength)
	}

	rm, err := s.roomRepo.Snapshot(ctx, params.RoomID)
	if err != nil {
		return ChatResponse{}, err
	}

	author, ok := rm.Member(params.SenderID)
	if !ok {
		return ChatResponse{}, ErrNotInRoom
	}

	entry := room.ChatEntry{
		ID:        uuid.NewString(),
		Author:    author,
		Text:      text,
		Timestamp: s.clock.Now().UTC(),
	}
	if err := s.roomRepo.AppendChat(ctx, params.RoomID, entry); err != nil {
		s.logger.InfoContext(ctx, "failed to append chat message", "error", err)
		return ChatResponse{}, err
	}

	return ChatResponse{
		Message: toChatMessage(entry),
		Conns:   s.connRepo.ListRoom(params.RoomID),
	}, nil
}
