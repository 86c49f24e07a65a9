package room

import "context"

// Repo is the Room Store. Implementations serialize all writes to one room
// and never hold a lock shared between rooms.
type Repo interface {
	CreateOrGet(ctx context.Context, roomID string) (Room, error)
	AddMember(ctx context.Context, roomID string, member Member) (Room, error)
	Apply(ctx context.Context, roomID string, m Mutation) (ApplyResult, error)
	Snapshot(ctx context.Context, roomID string) (Room, error)
	RemoveMember(ctx context.Context, roomID, memberID string) (RemoveMemberResult, error)
	AppendChat(ctx context.Context, roomID string, msg ChatEntry) error
	ChatHistory(ctx context.Context, roomID string) ([]ChatEntry, error)
}
