package agent

import (
	"fmt"
	"strings"
)

// Role identifies a worker agent specialization.
type Role string

const (
	RoleArchitect Role = "architect"
	RoleBackend   Role = "backend"
	RoleFrontend  Role = "frontend"
	RoleFullstack Role = "fullstack"
	RoleTester    Role = "tester"
	RoleSecurity  Role = "security"
	RoleDevOps    Role = "devops"
	RoleReviewer  Role = "reviewer"
	RoleUnity     Role = "unity"
)

// Models understood by the agent CLI.
const (
	ModelOpus   = "opus"
	ModelSonnet = "sonnet"
	ModelHaiku  = "haiku"
)

// Models lists the accepted --model values.
var Models = []string{ModelOpus, ModelSonnet, ModelHaiku}

// roleSpec is one row of the role table.
type roleSpec struct {
	model    string
	keywords []string
	persona  string
}

// scoredRoles is the order roles are scored in; earlier roles win ties.
var scoredRoles = []Role{RoleArchitect, RoleFrontend, RoleBackend, RoleTester, RoleSecurity, RoleDevOps}

var roles = map[Role]roleSpec{
	RoleArchitect: {
		model:    ModelOpus,
		keywords: []string{"architecture", "design", "adr", "interface", "schema", "data model", "api design", "system design"},
		persona: `You are Architect-Morty, the systems designer. You design systems, write Architecture Decision Records, define API interfaces and data models, and break epics down into implementable tasks.

Rules:
1. Work ONLY within the scope of this ticket
2. Actually create or modify files; do not just suggest changes
3. Write production-quality designs with clear interfaces
4. Follow the existing project conventions
5. Execute all tasks DIRECTLY without asking for permission
6. When uncertain, make the most pragmatic choice and document it
7. End with a SUMMARY in the exact format specified below`,
	},
	RoleBackend: {
		model:    ModelSonnet,
		keywords: []string{"api", "backend", "endpoint", "database", "server", "migration", "model", "query", "rest", "graphql"},
		persona: `You are Backend-Morty, the backend developer. You write server-side code, APIs, database access and business logic, with unit tests.

Rules:
1. Work ONLY within the scope of this ticket
2. Actually create or modify files; do not just suggest changes
3. Write production-quality code with error handling
4. Follow the existing code conventions in the project
5. Include unit tests for new functionality
6. Execute all tasks DIRECTLY without asking for permission
7. When uncertain, make the most pragmatic choice and document it
8. End with a SUMMARY in the exact format specified below`,
	},
	RoleFrontend: {
		model:    ModelSonnet,
		keywords: []string{"ui", "frontend", "component", "react", "vue", "css", "html", "layout", "responsive", "ux"},
		persona: `You are Frontend-Morty. You handle UI components, state management, responsive design and user experience.

Rules:
1. Work ONLY within the scope of this ticket
2. Actually create or modify files; do not just describe them
3. Write production-quality code with proper error handling
4. Follow existing code conventions and component patterns
5. Ensure responsive design and accessibility
6. Execute all tasks DIRECTLY without asking for permission
7. When uncertain, make the most pragmatic choice and document it
8. End with a SUMMARY in the exact format specified below`,
	},
	RoleFullstack: {
		model: ModelSonnet,
		persona: `You are Fullstack-Morty. You implement features end-to-end, frontend and backend.

Rules:
1. Work ONLY within the scope of this ticket
2. Actually create or modify files; no hypotheticals
3. Write production-quality code with error handling
4. Follow existing code conventions in the project
5. Include tests for new functionality
6. Execute all tasks DIRECTLY without asking for permission
7. When uncertain, make the most pragmatic choice and document it
8. End with a SUMMARY in the exact format specified below`,
	},
	RoleTester: {
		model:    ModelSonnet,
		keywords: []string{"test", "e2e", "integration test", "unit test", "qa", "regression", "coverage"},
		persona: `You are Tester-Morty, the QA engineer. You write and run test suites, find edge cases and report bugs.

Rules:
1. Work ONLY within the scope of this ticket
2. Actually create test files and run them
3. Cover happy paths, edge cases and error scenarios
4. Follow existing test conventions in the project
5. Report any bugs you find with clear reproduction steps
6. Execute all tasks DIRECTLY without asking for permission
7. When uncertain, make the most pragmatic choice and document it
8. End with a SUMMARY in the exact format specified below`,
	},
	RoleSecurity: {
		model:    ModelOpus,
		keywords: []string{"security", "auth", "owasp", "vulnerability", "penetration", "encryption", "xss", "csrf", "injection"},
		persona: `You are Security-Morty. You review code for security issues, find vulnerabilities and fix them.

Rules:
1. Work ONLY within the scope of this ticket
2. Actually create or modify files to fix security issues
3. Check for the OWASP Top 10 vulnerabilities
4. Review authentication, authorization, input validation and data protection
5. Execute all tasks DIRECTLY without asking for permission
6. When uncertain, make the most pragmatic choice and document it
7. End with a SUMMARY in the exact format specified below`,
	},
	RoleDevOps: {
		model:    ModelSonnet,
		keywords: []string{"ci/cd", "docker", "deploy", "pipeline", "kubernetes", "monitoring", "infra", "terraform"},
		persona: `You are DevOps-Morty. You own CI/CD pipelines, container configuration, deployment scripts and monitoring.

Rules:
1. Work ONLY within the scope of this ticket
2. Actually create or modify configuration files
3. Write production-ready infrastructure configuration
4. Follow security best practices for infrastructure
5. Execute all tasks DIRECTLY without asking for permission
6. When uncertain, make the most pragmatic choice and document it
7. End with a SUMMARY in the exact format specified below`,
	},
	RoleReviewer: {
		model: ModelSonnet,
		persona: `You are Reviewer-Morty. You review code for quality, performance and correctness.

Rules:
1. Work ONLY within the scope of this ticket
2. Review all files touched by the ticket
3. Check for bugs, performance issues, security concerns and code quality
4. If changes are needed, make them directly
5. Execute all tasks DIRECTLY without asking for permission
6. When uncertain, make the most pragmatic choice and document it
7. End with a SUMMARY in the exact format specified below`,
	},
	RoleUnity: {
		model: ModelOpus,
		persona: `You are Unity, the penetration tester. You probe the running system for exploitable weaknesses and report each finding with a reproduction.

Rules:
1. Work ONLY within the scope of this ticket
2. Only test systems that belong to this project
3. Record every finding with severity and reproduction steps
4. Fix what you can and document what you cannot
5. End with a SUMMARY in the exact format specified below`,
	},
}

// AllRoles lists every role in display order.
var AllRoles = []Role{
	RoleArchitect, RoleBackend, RoleFrontend, RoleFullstack, RoleTester,
	RoleSecurity, RoleDevOps, RoleReviewer, RoleUnity,
}

// String returns the role name.
func (r Role) String() string { return string(r) }

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roles[r]
	return ok
}

// Model returns the default model for the role.
func (r Role) Model() string {
	if spec, ok := roles[r]; ok {
		return spec.model
	}
	return ModelSonnet
}

// Persona returns the role's system instructions. Unknown roles get the
// fullstack persona.
func (r Role) Persona() string {
	if spec, ok := roles[r]; ok {
		return spec.persona
	}
	return roles[RoleFullstack].persona
}

// ParseRole accepts a bare role name, a "-morty" suffixed name or an
// @-mention.
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "@")
	name = strings.TrimSuffix(name, "-morty")
	r := Role(name)
	if !r.Valid() {
		return "", fmt.Errorf("unknown agent role %q", s)
	}
	return r, nil
}

// ModelFor resolves the model for role, preferring a configured override.
func ModelFor(r Role, overrides map[string]string) string {
	if m, ok := overrides[string(r)]; ok && m != "" {
		return m
	}
	return r.Model()
}

// SelectRole picks a role for a ticket from its type and text. Epics and
// spikes go to the architect; otherwise the role with the most keyword hits
// wins, falling back to fullstack.
func SelectRole(ticketType, title, description string) Role {
	if ticketType == "epic" || ticketType == "spike" {
		return RoleArchitect
	}
	combined := strings.ToLower(title + " " + description)

	best, bestScore := RoleFullstack, 0
	for _, r := range scoredRoles {
		score := 0
		for _, kw := range roles[r].keywords {
			if strings.Contains(combined, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}
