package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharetube/watchparty/internal/repository/room"
)

// maxTxRetries bounds optimistic WATCH retries before ErrConflict.
const maxTxRetries = 16

type repo struct {
	rc             *redis.Client
	expireDuration time.Duration
	now            func() time.Time
}

func NewRepo(rc *redis.Client, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		expireDuration: expireDuration,
		now:            time.Now,
	}
}

func (r repo) CreateOrGet(ctx context.Context, roomID string) (room.Room, error) {
	var out room.Room
	err := r.watchRoom(ctx, roomID, func(tx *redis.Tx) error {
		current, err := r.loadRoom(ctx, tx, roomID)
		if err == nil {
			out = current
			return nil
		}
		if !errors.Is(err, room.ErrRoomNotFound) {
			return err
		}

		next := room.New(roomID, r.now())
		if err := r.storeRoom(ctx, tx, next); err != nil {
			return err
		}

		out = next
		return nil
	})
	if err != nil {
		return room.Room{}, fmt.Errorf("failed to create room: %w", err)
	}

	return out, nil
}

func (r repo) AddMember(ctx context.Context, roomID string, member room.Member) (room.Room, error) {
	var out room.Room
	err := r.watchRoom(ctx, roomID, func(tx *redis.Tx) error {
		current, err := r.loadRoom(ctx, tx, roomID)
		if errors.Is(err, room.ErrRoomNotFound) {
			current, err = room.New(roomID, r.now()), nil
		}
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := next.AddMember(member); err != nil {
			return err
		}
		next.UpdatedAt = r.now()

		if err := r.storeRoom(ctx, tx, next); err != nil {
			return err
		}

		out = next
		return nil
	})
	if err != nil {
		return room.Room{}, fmt.Errorf("failed to add member: %w", err)
	}

	return out, nil
}

func (r repo) Apply(ctx context.Context, roomID string, m room.Mutation) (room.ApplyResult, error) {
	var out room.ApplyResult
	err := r.watchRoom(ctx, roomID, func(tx *redis.Tx) error {
		current, err := r.loadRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}

		res, err := m.Run(current)
		if err != nil {
			return err
		}

		if res.Accepted {
			res.Room.UpdatedAt = r.now()
			if err := r.storeRoom(ctx, tx, res.Room); err != nil {
				return err
			}
		}

		out = res
		return nil
	})
	if err != nil {
		return room.ApplyResult{}, fmt.Errorf("failed to apply mutation: %w", err)
	}

	return out, nil
}

func (r repo) Snapshot(ctx context.Context, roomID string) (room.Room, error) {
	data, err := r.rc.Get(ctx, r.getRoomKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return room.Room{}, room.ErrRoomNotFound
		}

		return room.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	var rm room.Room
	if err := json.Unmarshal(data, &rm); err != nil {
		return room.Room{}, fmt.Errorf("failed to decode room: %w", err)
	}

	return rm, nil
}

func (r repo) RemoveMember(ctx context.Context, roomID, memberID string) (room.RemoveMemberResult, error) {
	var out room.RemoveMemberResult
	err := r.watchRoom(ctx, roomID, func(tx *redis.Tx) error {
		current, err := r.loadRoom(ctx, tx, roomID)
		if err != nil {
			return err
		}

		next := current.Clone()
		removed, hostChanged, err := next.RemoveMember(memberID)
		if err != nil {
			return err
		}
		next.UpdatedAt = r.now()

		out = room.RemoveMemberResult{
			Room:        next,
			Removed:     removed,
			HostChanged: hostChanged,
		}

		if len(next.Members) == 0 {
			out.RoomDeleted = true
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, r.getRoomKey(roomID), r.getChatKey(roomID))
				return nil
			})
			return err
		}

		return r.storeRoom(ctx, tx, next)
	})
	if err != nil {
		return room.RemoveMemberResult{}, fmt.Errorf("failed to remove member: %w", err)
	}

	return out, nil
}

func (r repo) AppendChat(ctx context.Context, roomID string, msg room.ChatEntry) error {
	exists, err := r.rc.Exists(ctx, r.getRoomKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check room: %w", err)
	}
	if exists == 0 {
		return room.ErrRoomNotFound
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode chat message: %w", err)
	}

	pipe := r.rc.TxPipeline()
	chatKey := r.getChatKey(roomID)
	pipe.RPush(ctx, chatKey, data)
	if r.expireDuration > 0 {
		pipe.Expire(ctx, chatKey, r.expireDuration)
	}

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	return nil
}

func (r repo) ChatHistory(ctx context.Context, roomID string) ([]room.ChatEntry, error) {
	raw, err := r.rc.LRange(ctx, r.getChatKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}

	history := make([]room.ChatEntry, 0, len(raw))
	for _, item := range raw {
		var msg room.ChatEntry
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to decode chat message: %w", err)
		}
		history = append(history, msg)
	}

	return history, nil
}
