// Package coordination runs a team of agents against its parent ticket.
//
// A [Coordinator] executes the members of one team according to the team's
// coordination mode:
//
//   - sequential: the lead first, then every other member in template
//     order, stopping at the first member that does not complete
//   - parallel: every member at once, bounded by the configured maximum
//   - mixed: the lead alone, then everyone else in parallel, unless the
//     lead failed
//
// Each member gets a delegation prompt that includes the team roster, the
// shared context, its recent messages and the file reservations. The
// member's report is parsed; messages it addressed to teammates go to the
// mailbox and its decisions to the shared context. When the run ends the
// team status is rolled up onto the parent ticket.
//
// Usage:
//
//	c, err := coordination.New(coordination.Config{
//	    Teams:    teams,
//	    Mailbox:  mb,
//	    Shared:   shared,
//	    Executor: exec,
//	    Tickets:  tickets,
//	}, coordination.WithMaxParallel(cfg.Team.MaxParallel))
//	if err != nil {
//	    return err
//	}
//	res, err := c.Run(ctx, "TEAM-001")
package coordination
