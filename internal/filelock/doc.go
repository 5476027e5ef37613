// Package filelock tracks which team member intends to modify which files.
//
// Reservations are advisory: nothing stops an agent from editing a file it
// does not hold. They exist so the prompt of each member can list the files
// it owns and the files other members own ("do not modify"), which keeps
// parallel agents out of each other's way.
//
// A [Registry] stores reservations on the team record (files_reserved,
// role -> paths) and performs every change through the team manager's
// Mutate, so a reservation is all or nothing: if any requested path belongs
// to another role the call reports every conflict and reserves none.
//
//	reg := filelock.NewRegistry(teams, filelock.WithMailbox(mb))
//	conflicts, err := reg.Reserve("TEAM-001", "backend", []string{"api/routes.go"})
//	if len(conflicts) > 0 {
//		fmt.Println(filelock.FormatConflicts(conflicts))
//	}
//	err = reg.Release("TEAM-001", "backend")
package filelock
