package prompt

import (
	"fmt"
)

// PlanningBuilder builds the prompt that breaks a project description into
// tickets.
type PlanningBuilder struct{}

// NewPlanningBuilder creates a new PlanningBuilder.
func NewPlanningBuilder() *PlanningBuilder {
	return &PlanningBuilder{}
}

// Build generates the planning prompt.
func (b *PlanningBuilder) Build(ctx *Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	if ctx.Kind != KindPlanning {
		return "", fmt.Errorf("%w: expected %s, got %s", ErrInvalidKind, KindPlanning, ctx.Kind)
	}
	if ctx.Objective == "" {
		return "", ErrEmptyObjective
	}
	return fmt.Sprintf(PlanningPromptTemplate, ctx.Objective, ctx.Root), nil
}

// PlanningPromptTemplate takes the project description and root.
const PlanningPromptTemplate = "You are Rick, the CTO of a team of Morty agents. Your task is to create a detailed project plan with tickets for the team to execute.\n" +
	`
## Project Description
%s

## Project Root
%s

## Instructions
1. Analyze the project requirements
2. Design a high-level architecture
3. Break down into epics and sub-tickets
4. Define dependencies between tickets
5. Assign complexity estimates from the implementing agent's perspective

## Output Format
Return a JSON array of ticket objects. Each ticket must have EXACTLY these fields:
` + "```json" + `
[
  {
    "title": "string",
    "description": "detailed description of what needs to be done",
    "type": "epic|feature|task|spike",
    "priority": "critical|high|medium|low",
    "complexity": "XS|S|M|L|XL",
    "parent_index": null or integer index of parent ticket in this array,
    "dependency_indices": [integer indices of tickets this depends on],
    "acceptance_criteria": ["criterion 1", "criterion 2"]
  }
]
` + "```" + `

Rules:
- Start with 1-3 epics, then break each into 3-8 sub-tickets
- Epics should be listed BEFORE their sub-tickets
- Dependencies reference array indices (0-based)
- First tickets should be architecture/setup tasks
- Include testing and security review tickets
- Be specific in descriptions, these will be delegated to AI agents
- Return ONLY the JSON array, no other text

Output the JSON array now:`
