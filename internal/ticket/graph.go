package ticket

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/cto/internal/errors"
)

// DetectCycles walks the dependency graph depth-first and returns the cycle
// closed by each back edge, as ids in dependency order rotated to start at
// the smallest id. Every strongly connected group of tickets yields at least
// one cycle. Self-dependencies are one-element cycles. Dependencies on
// unknown tickets are ignored.
func DetectCycles(all []*Ticket) [][]string {
	byID := Index(all)

	ids := make([]string, 0, len(all))
	for _, t := range all {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(all))
	var stack []string
	seen := make(map[string]bool)
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		color[id] = grey
		stack = append(stack, id)

		deps := slices.Clone(byID[id].Dependencies)
		slices.Sort(deps)
		for _, dep := range deps {
			if _, ok := byID[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				start := slices.Index(stack, dep)
				cycle := canonicalCycle(stack[start:])
				key := strings.Join(cycle, ">")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// canonicalCycle copies a cycle and rotates it to start at its smallest id.
func canonicalCycle(path []string) []string {
	minIdx := 0
	for i, id := range path {
		if id < path[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, 0, len(path))
	out = append(out, path[minIdx:]...)
	out = append(out, path[:minIdx]...)
	return out
}

// ValidateDependencies checks that candidate's dependency list does not
// reference candidate itself and that no dependency leads back to
// candidate. candidate replaces any ticket in all with the same id.
func ValidateDependencies(candidate *Ticket, all []*Ticket) error {
	if slices.Contains(candidate.Dependencies, candidate.ID) {
		return errors.NewTicketError("ticket depends on itself", errors.ErrDependencyCycle).
			WithTicketID(candidate.ID)
	}

	byID := Index(all)
	byID[candidate.ID] = candidate

	// Breadth-first from candidate's dependencies; via records how each
	// ticket was reached so the cycle can be reported.
	via := make(map[string]string)
	queue := make([]string, 0, len(candidate.Dependencies))
	for _, dep := range candidate.Dependencies {
		if _, ok := via[dep]; !ok {
			via[dep] = candidate.ID
			queue = append(queue, dep)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		t, ok := byID[id]
		if !ok {
			continue
		}
		for _, dep := range t.Dependencies {
			if dep == candidate.ID {
				path := []string{candidate.ID}
				for cur := id; cur != candidate.ID; cur = via[cur] {
					path = append(path, cur)
				}
				// path runs backwards from the closing edge; flip the tail.
				slices.Reverse(path[1:])
				path = append(path, candidate.ID)
				return errors.NewTicketError(
					fmt.Sprintf("dependencies form a cycle: %s", strings.Join(path, " -> ")),
					errors.ErrDependencyCycle,
				).WithTicketID(candidate.ID)
			}
			if _, seen := via[dep]; !seen {
				via[dep] = id
				queue = append(queue, dep)
			}
		}
	}
	return nil
}
