package inmemory

import (
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/sharetube/watchparty/internal/repository/connection"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

type key struct {
	roomID   string
	memberID string
}

// repo maps (room, member) pairs to live connections. A connection is
// registered under at most one membership.
type repo struct {
	byKey  map[key]*wsconn.Conn
	byConn map[*wsconn.Conn]key
	rooms  map[string]map[string]*wsconn.Conn
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		byKey:  make(map[key]*wsconn.Conn),
		byConn: make(map[*wsconn.Conn]key),
		rooms:  make(map[string]map[string]*wsconn.Conn),
		logger: logger,
	}
}

func (r *repo) Add(roomID, memberID string, conn *wsconn.Conn) error {
	funcName := "connection.inmemory.Add"
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{roomID: roomID, memberID: memberID}
	if _, ok := r.byKey[k]; ok {
		r.logger.Info(funcName, "room_id", roomID, "member_id", memberID, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}
	if _, ok := r.byConn[conn]; ok {
		r.logger.Info(funcName, "room_id", roomID, "member_id", memberID, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.byKey[k] = conn
	r.byConn[conn] = k
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*wsconn.Conn)
	}
	r.rooms[roomID][memberID] = conn

	r.logger.Debug(funcName, "room_id", roomID, "member_id", memberID, "conn_id", conn.ID())
	return nil
}

// Remove drops the registration only if it still points at conn, so a stale
// disconnect cannot unregister a newer connection of the same member.
func (r *repo) Remove(roomID, memberID string, conn *wsconn.Conn) error {
	funcName := "connection.inmemory.Remove"
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{roomID: roomID, memberID: memberID}
	current, ok := r.byKey[k]
	if !ok || (conn != nil && current != conn) {
		r.logger.Debug(funcName, "room_id", roomID, "member_id", memberID, "error", connection.ErrNotFound)
		return connection.ErrNotFound
	}

	delete(r.byKey, k)
	delete(r.byConn, current)
	if members := r.rooms[roomID]; members != nil {
		delete(members, memberID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}

	r.logger.Debug(funcName, "room_id", roomID, "member_id", memberID)
	return nil
}

// ListRoom returns the connections of roomID, skipping the given member
// ids. Order is by member id so fan-out is deterministic.
func (r *repo) ListRoom(roomID string, exclude ...string) []*wsconn.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	ids := maps.Keys(members)
	sort.Strings(ids)

	conns := make([]*wsconn.Conn, 0, len(ids))
outer:
	for _, id := range ids {
		for _, ex := range exclude {
			if id == ex {
				continue outer
			}
		}
		conns = append(conns, members[id])
	}

	return conns
}

// Count is the number of registered connections across all rooms.
func (r *repo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byKey)
}
