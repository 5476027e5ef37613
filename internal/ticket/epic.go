package ticket

// Children returns the tickets whose parent is parentID, in input order.
func Children(parentID string, all []*Ticket) []*Ticket {
	var children []*Ticket
	for _, t := range all {
		if t.Parent == parentID {
			children = append(children, t)
		}
	}
	return children
}

// RollupStatus derives an epic's status from its children: done when every
// child is done, in_progress when any child is in progress, review or
// testing. The second result is false when the epic's status should stay
// as it is, including when it has no children.
func RollupStatus(children []*Ticket) (Status, bool) {
	if len(children) == 0 {
		return "", false
	}

	allDone := true
	anyInFlight := false
	for _, c := range children {
		if c.Status != StatusDone {
			allDone = false
		}
		if c.Status.IsInFlight() {
			anyInFlight = true
		}
	}

	switch {
	case allDone:
		return StatusDone, true
	case anyInFlight:
		return StatusInProgress, true
	default:
		return "", false
	}
}
