package room

import (
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/repository/room"
)

func toMember(m room.Member) protocol.Member {
	return protocol.Member{
		ID:      m.ID,
		Name:    m.Name,
		IsGuest: m.IsGuest,
	}
}

func toMembers(members []room.Member) []protocol.Member {
	res := make([]protocol.Member, 0, len(members))
	for _, m := range members {
		res = append(res, toMember(m))
	}

	return res
}

func toSyncState(rm room.Room, selfID string) protocol.SyncState {
	state := protocol.SyncState{
		RoomID:    rm.ID,
		MediaKind: protocol.MediaKind(rm.MediaKind),
		Title:     rm.Title,
		Position:  rm.Position,
		Playing:   rm.Playing,
		HostID:    rm.HostID,
		Revision:  rm.Revision,
		Members:   toMembers(rm.Members),
		SelfID:    selfID,
	}
	if rm.Source != "" {
		source := rm.Source
		state.Source = &source
	}

	return state
}

func toControlEvent(rm room.Room, action protocol.Action, by string) protocol.ControlEvent {
	return protocol.ControlEvent{
		Action:    action,
		Revision:  rm.Revision,
		Position:  rm.Position,
		Playing:   rm.Playing,
		MediaKind: protocol.MediaKind(rm.MediaKind),
		Source:    rm.Source,
		Title:     rm.Title,
		By:        by,
	}
}

func toChatMessage(e room.ChatEntry) protocol.ChatMessage {
	return protocol.ChatMessage{
		ID:        e.ID,
		Author:    toMember(e.Author),
		Text:      e.Text,
		Timestamp: e.Timestamp,
	}
}
