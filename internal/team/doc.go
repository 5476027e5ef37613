// Package team models the groups of agents that work a ticket together.
//
// A team is formed from a [Template]: a set of roles with a focus each, a
// coordination [Mode] and a lead. Every member gets an assignment derived
// from the parent ticket (CTO-012-A, CTO-012-B, ...) and moves through
// pending, working, and then completed or blocked. The team status is never
// set directly; [Aggregate] derives it from the members after every update.
//
// [Manager] owns the team records. All writes go through [Manager.Mutate],
// which the file reservation registry also uses, so member updates made by
// concurrently running agents are applied one at a time.
//
// Templates ship built in (fullstack-team, api-team, security-team,
// devops-team) and can be extended per project with a YAML file:
//
//	templates:
//	  data-team:
//	    description: Schema and pipeline work
//	    coordination: sequential
//	    lead: architect
//	    roles:
//	      - role: architect
//	        focus: schema design
//	      - role: backend
//	        focus: ingestion pipeline
package team
