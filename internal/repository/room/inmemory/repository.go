package inmemory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/repository/room"
)

type entry struct {
	mu      sync.Mutex
	room    room.Room
	chat    []room.ChatEntry
	deleted bool
}

// repo keeps every room in process memory. The registry lock only guards
// the map; each room is serialized by its own lock so rooms never contend.
type repo struct {
	mu     sync.Mutex
	rooms  map[string]*entry
	logger *slog.Logger
	now    func() time.Time
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		rooms:  make(map[string]*entry),
		logger: logger,
		now:    time.Now,
	}
}

// lock returns the locked entry for roomID. A room deleted between the map
// lookup and acquiring its lock is retried against the registry.
func (r *repo) lock(roomID string, create bool) (*entry, error) {
	for {
		r.mu.Lock()
		e, ok := r.rooms[roomID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil, room.ErrRoomNotFound
			}
			e = &entry{room: room.New(roomID, r.now())}
			r.rooms[roomID] = e
			r.logger.Debug("room created", "room_id", roomID)
		}
		r.mu.Unlock()

		e.mu.Lock()
		if e.deleted {
			e.mu.Unlock()
			continue
		}

		return e, nil
	}
}

func (r *repo) CreateOrGet(ctx context.Context, roomID string) (room.Room, error) {
	e, err := r.lock(roomID, true)
	if err != nil {
		return room.Room{}, err
	}
	defer e.mu.Unlock()

	return e.room.Clone(), nil
}

func (r *repo) AddMember(ctx context.Context, roomID string, member room.Member) (room.Room, error) {
	e, err := r.lock(roomID, true)
	if err != nil {
		return room.Room{}, err
	}
	defer e.mu.Unlock()

	next := e.room.Clone()
	if err := next.AddMember(member); err != nil {
		return room.Room{}, err
	}
	next.UpdatedAt = r.now()
	e.room = next

	return next.Clone(), nil
}

func (r *repo) Apply(ctx context.Context, roomID string, m room.Mutation) (room.ApplyResult, error) {
	e, err := r.lock(roomID, false)
	if err != nil {
		return room.ApplyResult{}, err
	}
	defer e.mu.Unlock()

	res, err := m.Run(e.room)
	if err != nil {
		return room.ApplyResult{}, err
	}

	if res.Accepted {
		res.Room.UpdatedAt = r.now()
		e.room = res.Room
	}
	res.Room = res.Room.Clone()

	return res, nil
}

func (r *repo) Snapshot(ctx context.Context, roomID string) (room.Room, error) {
	e, err := r.lock(roomID, false)
	if err != nil {
		return room.Room{}, err
	}
	defer e.mu.Unlock()

	return e.room.Clone(), nil
}

func (r *repo) RemoveMember(ctx context.Context, roomID, memberID string) (room.RemoveMemberResult, error) {
	e, err := r.lock(roomID, false)
	if err != nil {
		return room.RemoveMemberResult{}, err
	}
	defer e.mu.Unlock()

	next := e.room.Clone()
	removed, hostChanged, err := next.RemoveMember(memberID)
	if err != nil {
		return room.RemoveMemberResult{}, err
	}
	next.UpdatedAt = r.now()
	e.room = next

	res := room.RemoveMemberResult{
		Room:        next.Clone(),
		Removed:     removed,
		HostChanged: hostChanged,
	}

	if len(next.Members) == 0 {
		e.deleted = true
		e.chat = nil

		r.mu.Lock()
		if current, ok := r.rooms[roomID]; ok && current == e {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()

		r.logger.Debug("room deleted", "room_id", roomID)
		res.RoomDeleted = true
	}

	return res, nil
}

func (r *repo) AppendChat(ctx context.Context, roomID string, msg room.ChatEntry) error {
	e, err := r.lock(roomID, false)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	e.chat = append(e.chat, msg)

	return nil
}

func (r *repo) ChatHistory(ctx context.Context, roomID string) ([]room.ChatEntry, error) {
	e, err := r.lock(roomID, false)
	if err != nil {
		return nil, err
	}
	defer e.mu.Unlock()

	history := make([]room.ChatEntry, len(e.chat))
	copy(history, e.chat)

	return history, nil
}

func (r *repo) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rooms)
}
