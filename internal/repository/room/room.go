package room

import (
	"time"
)

type MediaKind string

const (
	MediaKindMP4     MediaKind = "MP4"
	MediaKindYouTube MediaKind = "YOUTUBE"
)

func (k MediaKind) Valid() bool {
	return k == MediaKindMP4 || k == MediaKindYouTube
}

type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsGuest  bool      `json:"is_guest"`
	JoinedAt time.Time `json:"joined_at"`
}

// Room is the authoritative playback state of one room. Members are kept in
// join order; host promotion picks the first of them.
type Room struct {
	ID        string    `json:"id"`
	MediaKind MediaKind `json:"media_kind"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Position  float64   `json:"position"`
	Playing   bool      `json:"playing"`
	HostID    string    `json:"host_id"`
	Revision  int64     `json:"revision"`
	Members   []Member  `json:"members"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(id string, now time.Time) Room {
	return Room{
		ID:        id,
		MediaKind: MediaKindMP4,
		Members:   []Member{},
		UpdatedAt: now,
	}
}

func (r Room) Clone() Room {
	members := make([]Member, len(r.Members))
	copy(members, r.Members)
	r.Members = members
	return r
}

func (r Room) MemberIndex(memberID string) int {
	for i, m := range r.Members {
		if m.ID == memberID {
			return i
		}
	}
	return -1
}

func (r Room) HasMember(memberID string) bool {
	return r.MemberIndex(memberID) >= 0
}

func (r Room) Member(memberID string) (Member, bool) {
	if i := r.MemberIndex(memberID); i >= 0 {
		return r.Members[i], true
	}
	return Member{}, false
}

// AddMember appends m and makes it host when the room has none.
func (r *Room) AddMember(m Member) error {
	if r.HasMember(m.ID) {
		return ErrMemberAlreadyJoined
	}

	r.Members = append(r.Members, m)
	if r.HostID == "" {
		r.HostID = m.ID
	}

	return nil
}

// RemoveMember drops memberID and, if it was host, promotes the first
// remaining member.
func (r *Room) RemoveMember(memberID string) (removed Member, hostChanged bool, err error) {
	i := r.MemberIndex(memberID)
	if i < 0 {
		return Member{}, false, ErrMemberNotFound
	}

	removed = r.Members[i]
	r.Members = append(r.Members[:i], r.Members[i+1:]...)

	if r.HostID == memberID {
		r.HostID = ""
		if len(r.Members) > 0 {
			r.HostID = r.Members[0].ID
		}
		hostChanged = true
	}

	return removed, hostChanged, nil
}

type ChatEntry struct {
	ID        string    `json:"id"`
	Author    Member    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
