package team

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/cto/internal/agent"
	"github.com/Iron-Ham/cto/internal/errors"
)

// RoleSpec is one seat on a template.
type RoleSpec struct {
	Role  string `yaml:"role"`
	Focus string `yaml:"focus"`
}

// Template describes a reusable team composition.
type Template struct {
	Name        string     `yaml:"-"`
	Description string     `yaml:"description"`
	Mode        Mode       `yaml:"coordination"`
	Lead        string     `yaml:"lead"`
	Roles       []RoleSpec `yaml:"roles"`
}

// Validate checks that the template can form a team.
func (t Template) Validate() error {
	if len(t.Roles) == 0 {
		return errors.NewValidationError("template needs at least one role").WithField(t.Name + ".roles")
	}
	if !t.Mode.IsValid() {
		return errors.NewValidationError("unknown coordination mode").
			WithField(t.Name + ".coordination").WithValue(string(t.Mode))
	}
	seen := make(map[string]bool, len(t.Roles))
	for _, rs := range t.Roles {
		if _, err := agent.ParseRole(rs.Role); err != nil {
			return errors.NewValidationError("unknown role").WithField(t.Name + ".roles").WithValue(rs.Role)
		}
		if seen[rs.Role] {
			return errors.NewValidationError("duplicate role").WithField(t.Name + ".roles").WithValue(rs.Role)
		}
		seen[rs.Role] = true
	}
	if !seen[t.Lead] {
		return errors.NewValidationError("lead must be one of the roles").
			WithField(t.Name + ".lead").WithValue(t.Lead)
	}
	return nil
}

// canonicalize rewrites role names to their canonical form so "@backend"
// and "backend-morty" both become "backend". Unknown names are left for
// Validate to reject.
func (t *Template) canonicalize() {
	for i, rs := range t.Roles {
		t.Roles[i].Role = canonicalRole(rs.Role)
	}
	t.Lead = canonicalRole(t.Lead)
}

func canonicalRole(name string) string {
	if r, err := agent.ParseRole(name); err == nil {
		return string(r)
	}
	return name
}

// Built-in template names.
const (
	TemplateFullstack = "fullstack-team"
	TemplateAPI       = "api-team"
	TemplateSecurity  = "security-team"
	TemplateDevOps    = "devops-team"
	TemplateCustom    = "custom"
)

// Builtins returns the templates that ship with cto.
func Builtins() []Template {
	return []Template{
		{
			Name:        TemplateFullstack,
			Description: "Architect designs, backend and frontend build in parallel",
			Mode:        ModeMixed,
			Lead:        "architect",
			Roles: []RoleSpec{
				{Role: "architect", Focus: "architecture and interfaces"},
				{Role: "backend", Focus: "backend implementation"},
				{Role: "frontend", Focus: "frontend implementation"},
			},
		},
		{
			Name:        TemplateAPI,
			Description: "Design, implement and test an API in order",
			Mode:        ModeSequential,
			Lead:        "architect",
			Roles: []RoleSpec{
				{Role: "architect", Focus: "API design and interfaces"},
				{Role: "backend", Focus: "API implementation"},
				{Role: "tester", Focus: "API testing and validation"},
			},
		},
		{
			Name:        TemplateSecurity,
			Description: "Parallel security review, assessment and testing",
			Mode:        ModeParallel,
			Lead:        "security",
			Roles: []RoleSpec{
				{Role: "architect", Focus: "security architecture review"},
				{Role: "security", Focus: "vulnerability assessment"},
				{Role: "unity", Focus: "penetration testing"},
				{Role: "tester", Focus: "security test automation"},
			},
		},
		{
			Name:        TemplateDevOps,
			Description: "Infrastructure and service configuration",
			Mode:        ModeParallel,
			Lead:        "devops",
			Roles: []RoleSpec{
				{Role: "devops", Focus: "infrastructure and CI/CD"},
				{Role: "backend", Focus: "service configuration"},
			},
		},
	}
}

// Registry holds the templates available to a project.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry creates a registry with the built-in templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]Template)}
	for _, t := range Builtins() {
		r.templates[t.Name] = t
	}
	return r
}

// templateFile is the on-disk shape of a templates file.
type templateFile struct {
	Templates map[string]Template `yaml:"templates"`
}

// LoadFile adds the templates defined in a YAML file, replacing built-ins
// with the same name. A missing file is not an error.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read templates: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	loaded := make([]Template, 0, len(file.Templates))
	for name, t := range file.Templates {
		t.Name = name
		t.canonicalize()
		if t.Mode == "" {
			t.Mode = ModeParallel
		}
		if t.Lead == "" && len(t.Roles) > 0 {
			t.Lead = t.Roles[0].Role
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		loaded = append(loaded, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range loaded {
		r.templates[t.Name] = t
	}
	return nil
}

// Get returns the named template.
func (r *Registry) Get(name string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", errors.ErrUnknownTemplate, name)
	}
	return t, nil
}

// List returns all templates sorted by name.
func (r *Registry) List() []Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Custom builds an ad hoc parallel template from a role list; the first role
// leads.
func Custom(roles []string) (Template, error) {
	t := Template{Name: TemplateCustom, Mode: ModeParallel}
	for _, role := range roles {
		role = canonicalRole(strings.TrimSpace(role))
		if role == "" || slices.ContainsFunc(t.Roles, func(rs RoleSpec) bool { return rs.Role == role }) {
			continue
		}
		t.Roles = append(t.Roles, RoleSpec{Role: role})
	}
	if len(t.Roles) > 0 {
		t.Lead = t.Roles[0].Role
	}
	return t, t.Validate()
}

// ForRole picks the template used when a ticket needs a team but did not
// name one.
func ForRole(r agent.Role) string {
	switch r {
	case agent.RoleTester:
		return TemplateAPI
	case agent.RoleSecurity:
		return TemplateSecurity
	case agent.RoleDevOps:
		return TemplateDevOps
	default:
		return TemplateFullstack
	}
}
