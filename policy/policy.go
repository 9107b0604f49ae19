// Package policy holds the routing tables: which role set each trigger
// keyword addresses, and where each role's plain messages go by default.
package policy

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/teamrelay/directory"
)

// Policy is the pair of routing tables. Lookups are safe for concurrent
// use; the tables change only through the explicit Set operations, which
// are serialized against readers.
type Policy struct {
	mu             sync.RWMutex
	triggerTargets map[string][]directory.Role
	defaultTargets map[directory.Role][]directory.Role
}

// File is the on-disk YAML shape of the routing tables.
type File struct {
	// Triggers maps a trigger keyword (without the leading dash) to the
	// roles it addresses.
	Triggers map[string][]string `yaml:"triggers"`
	// Defaults maps a sender role to the roles its plain messages go to.
	Defaults map[string][]string `yaml:"defaults"`
}

// Default returns the shipped routing tables: the writer → review-team
// chains plus one trigger keyword per addressable team.
func Default() *Policy {
	return &Policy{
		triggerTargets: map[string][]directory.Role{
			"writers": {directory.RoleWriter},
			"mcqs":    {directory.RoleMCQs},
			"checker": {directory.RoleChecker},
			"word":    {directory.RoleWord},
			"design":  {directory.RoleDesign},
			"king":    {directory.RoleKing},
			"mindmap": {directory.RoleMindMapFormCreator},
		},
		defaultTargets: map[directory.Role][]directory.Role{
			directory.RoleWriter: {directory.RoleMCQs, directory.RoleWord},
			directory.RoleWord:   {directory.RoleDesign},
			directory.RoleDesign: {directory.RoleKing},
		},
	}
}

// Load reads routing tables from a YAML file. A missing file yields the
// default tables. Either table may be omitted to keep its default.
func Load(path string) (*Policy, error) {
	p := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	if file.Triggers != nil {
		triggers := make(map[string][]directory.Role, len(file.Triggers))
		for keyword, names := range file.Triggers {
			roles, err := parseRoles(names)
			if err != nil {
				return nil, fmt.Errorf("trigger %q: %w", keyword, err)
			}
			triggers[keyword] = roles
		}
		p.triggerTargets = triggers
	}

	if file.Defaults != nil {
		defaults := make(map[directory.Role][]directory.Role, len(file.Defaults))
		for name, targetNames := range file.Defaults {
			source, err := directory.ParseRole(name)
			if err != nil {
				return nil, fmt.Errorf("defaults: %w", err)
			}
			targets, err := parseRoles(targetNames)
			if err != nil {
				return nil, fmt.Errorf("defaults for %q: %w", name, err)
			}
			defaults[source] = targets
		}
		p.defaultTargets = defaults
	}

	return p, nil
}

func parseRoles(names []string) ([]directory.Role, error) {
	roles := make([]directory.Role, 0, len(names))
	for _, name := range names {
		role, err := directory.ParseRole(name)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// TriggerTargets returns the role set a trigger keyword addresses.
func (p *Policy) TriggerTargets(keyword string) ([]directory.Role, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roles, ok := p.triggerTargets[keyword]
	if !ok {
		return nil, false
	}
	out := make([]directory.Role, len(roles))
	copy(out, roles)
	return out, true
}

// DefaultTargets returns the outgoing role set for a sender role's plain
// messages. Roles with no default route return ok=false.
func (p *Policy) DefaultTargets(role directory.Role) ([]directory.Role, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roles, ok := p.defaultTargets[role]
	if !ok || len(roles) == 0 {
		return nil, false
	}
	out := make([]directory.Role, len(roles))
	copy(out, roles)
	return out, true
}

// Keywords returns the configured trigger keywords, sorted.
func (p *Policy) Keywords() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.triggerTargets))
	for k := range p.triggerTargets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SetTrigger replaces the target role set for a trigger keyword. An empty
// role set deletes the keyword.
func (p *Policy) SetTrigger(keyword string, roles []directory.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(roles) == 0 {
		delete(p.triggerTargets, keyword)
		return
	}
	p.triggerTargets[keyword] = append([]directory.Role(nil), roles...)
}

// SetDefault replaces a sender role's default target set. An empty target
// set removes the default route.
func (p *Policy) SetDefault(source directory.Role, targets []directory.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(targets) == 0 {
		delete(p.defaultTargets, source)
		return
	}
	p.defaultTargets[source] = append([]directory.Role(nil), targets...)
}
