package room

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomMembership(t *testing.T) {
	r := New("r1", time.Now())
	assert.Equal(t, MediaKindMP4, r.MediaKind)
	assert.Empty(t, r.HostID)

	require.NoError(t, r.AddMember(Member{ID: "h"}))
	require.NoError(t, r.AddMember(Member{ID: "v1"}))
	require.NoError(t, r.AddMember(Member{ID: "v2"}))
	assert.ErrorIs(t, r.AddMember(Member{ID: "v1"}), ErrMemberAlreadyJoined)
	assert.Equal(t, "h", r.HostID)

	_, hostChanged, err := r.RemoveMember("v1")
	require.NoError(t, err)
	assert.False(t, hostChanged)

	removed, hostChanged, err := r.RemoveMember("h")
	require.NoError(t, err)
	assert.True(t, hostChanged)
	assert.Equal(t, "h", removed.ID)
	assert.Equal(t, "v2", r.HostID)

	_, _, err = r.RemoveMember("h")
	assert.ErrorIs(t, err, ErrMemberNotFound)

	_, hostChanged, err = r.RemoveMember("v2")
	require.NoError(t, err)
	assert.True(t, hostChanged)
	assert.Empty(t, r.HostID)
}

func TestMutationRun(t *testing.T) {
	current := New("r1", time.Now())
	current.Revision = 4

	res, err := Mutation{IfRevision: 3, Structural: true}.Run(current)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.EqualValues(t, 4, res.Revision)

	res, err = Mutation{IfRevision: 4, Structural: true, Change: func(r *Room) error {
		r.Playing = true
		return nil
	}}.Run(current)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.EqualValues(t, 5, res.Revision)
	assert.True(t, res.Room.Playing)
	assert.False(t, current.Playing)

	res, err = Mutation{IfRevision: AnyRevision, Change: func(r *Room) error {
		r.Position = 9
		return nil
	}}.Run(current)
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Revision)

	boom := errors.New("boom")
	_, err = Mutation{IfRevision: AnyRevision, Change: func(r *Room) error { return boom }}.Run(current)
	assert.ErrorIs(t, err, boom)
}
