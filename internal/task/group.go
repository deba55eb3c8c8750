package task

// Group bundles a primary operation with secondary operations that must
// all finish before the group does. The group's outcome is always the
// primary's; secondaries run only for their side effects.
type Group[T any] struct {
	Primary   *Op[T]
	Secondary []Operation
}

// NewGroup creates a group from a primary and its secondaries.
func NewGroup[T any](primary *Op[T], secondary ...Operation) Group[T] {
	return Group[T]{Primary: primary, Secondary: secondary}
}

// Members returns the primary followed by the secondaries.
func (g Group[T]) Members() []Operation {
	members := make([]Operation, 0, 1+len(g.Secondary))
	if g.Primary != nil {
		members = append(members, g.Primary)
	}
	for _, op := range g.Secondary {
		if op != nil {
			members = append(members, op)
		}
	}
	return members
}

// IsComplete reports whether every member has finished.
func (g Group[T]) IsComplete() bool {
	for _, op := range g.Members() {
		if !op.IsFinished() {
			return false
		}
	}
	return true
}
