// Package crew turns merged declarative domain configuration into runnable
// handlers ("crews"): typed agent and task specs, placeholder-resolved
// backstories, tool bindings, and a factory that builds and caches one
// handler per (domain, handler, account) key.
package crew

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentSpec is one fully merged agent definition.
type AgentSpec struct {
	ID              string   `json:"id"`
	Role            string   `json:"role"`
	Goal            string   `json:"goal"`
	Backstory       string   `json:"backstory"`
	Type            string   `json:"type,omitempty"`
	Tools           []string `json:"tools,omitempty"`
	AllowDelegation bool     `json:"allow_delegation"`
}

// TaskSpec is one unit of handler work, bound to an agent by id.
type TaskSpec struct {
	ID             string   `json:"id"`
	Description    string   `json:"description"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
	AgentID        string   `json:"agent"`
	DependsOn      []string `json:"depends_on,omitempty"`
}

// Descriptor is the cacheable product of a build: everything needed to run
// the handler, with all config references resolved. Descriptors are full
// replacements, never mutated after construction.
type Descriptor struct {
	HandlerID  string      `json:"handler_id"`
	DomainName string      `json:"domain_name"`
	AccountID  string      `json:"account_id"`
	Process    string      `json:"process"`
	Agents     []AgentSpec `json:"agents"`
	Tasks      []TaskSpec  `json:"tasks"`
	// Plugins lists the plugin names the domain activates; their tools are
	// visible to this crew's agents at execution time.
	Plugins []string  `json:"plugins,omitempty"`
	BuiltAt time.Time `json:"built_at"`
}

// AgentByID returns the resolved agent with the given id.
func (d *Descriptor) AgentByID(id string) (*AgentSpec, bool) {
	for i := range d.Agents {
		if d.Agents[i].ID == id {
			return &d.Agents[i], true
		}
	}
	return nil, false
}

// Process modes.
const (
	ProcessSequential   = "sequential"
	ProcessHierarchical = "hierarchical"
)

// decodeInto maps a config fragment onto a typed spec via a JSON round
// trip, so the declarative shapes stay aligned with the cache encoding.
func decodeInto(fragment map[string]any, dest any) error {
	data, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("encode config fragment: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode config fragment: %w", err)
	}
	return nil
}

func asStringMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// stringSliceFromConfig extracts a list of strings from a config fragment,
// dropping non-string entries.
func stringSliceFromConfig(fragment any) []string {
	raw, ok := fragment.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
