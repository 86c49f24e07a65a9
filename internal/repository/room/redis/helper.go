package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sharetube/watchparty/internal/repository/room"
)

func (r repo) getRoomKey(roomID string) string {
	return "room:" + roomID
}

func (r repo) getChatKey(roomID string) string {
	return "room:" + roomID + ":chat"
}

// watchRoom runs fn under WATCH on the room key, retrying when another
// writer commits first.
func (r repo) watchRoom(ctx context.Context, roomID string, fn func(tx *redis.Tx) error) error {
	key := r.getRoomKey(roomID)
	for i := 0; i < maxTxRetries; i++ {
		err := r.rc.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return room.ErrConflict
}

func (r repo) loadRoom(ctx context.Context, tx *redis.Tx, roomID string) (room.Room, error) {
	data, err := tx.Get(ctx, r.getRoomKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return room.Room{}, room.ErrRoomNotFound
		}

		return room.Room{}, err
	}

	var rm room.Room
	if err := json.Unmarshal(data, &rm); err != nil {
		return room.Room{}, fmt.Errorf("failed to decode room: %w", err)
	}
	if rm.Members == nil {
		rm.Members = []room.Member{}
	}

	return rm, nil
}

// storeRoom writes rm inside a MULTI block so the write fails if the
// watched key changed since it was read.
func (r repo) storeRoom(ctx context.Context, tx *redis.Tx, rm room.Room) error {
	data, err := json.Marshal(rm)
	if err != nil {
		return fmt.Errorf("failed to encode room: %w", err)
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.getRoomKey(rm.ID), data, r.expireDuration)
		if r.expireDuration > 0 {
			pipe.Expire(ctx, r.getChatKey(rm.ID), r.expireDuration)
		}
		return nil
	})

	return err
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}
