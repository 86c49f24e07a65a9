package room

// AnyRevision disables the revision precondition of a Mutation.
const AnyRevision int64 = -1

// Mutation is the only way playback state changes. Change runs while the
// room is exclusively held; returning an error discards everything it did.
type Mutation struct {
	// IfRevision, unless AnyRevision, must equal the current revision for
	// the mutation to be accepted.
	IfRevision int64
	// Structural mutations bump the revision. Heartbeats and host
	// promotions are not structural.
	Structural bool
	Change     func(r *Room) error
}

type ApplyResult struct {
	Room     Room
	Revision int64
	Accepted bool
}

type RemoveMemberResult struct {
	Room        Room
	Removed     Member
	HostChanged bool
	RoomDeleted bool
}

// Run applies m to a copy of current and returns the outcome. Store
// implementations call it inside their per-room critical section.
func (m Mutation) Run(current Room) (ApplyResult, error) {
	if m.IfRevision != AnyRevision && m.IfRevision != current.Revision {
		return ApplyResult{Room: current, Revision: current.Revision, Accepted: false}, nil
	}

	next := current.Clone()
	if m.Change != nil {
		if err := m.Change(&next); err != nil {
			return ApplyResult{}, err
		}
	}

	if m.Structural {
		next.Revision = current.Revision + 1
	}

	return ApplyResult{Room: next, Revision: next.Revision, Accepted: true}, nil
}
