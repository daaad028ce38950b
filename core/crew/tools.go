package crew

import (
	"context"
	"sort"
	"sync"

	"github.com/crewmux/crewmux/core/infra/logging"
)

// Tool is one capability an agent can invoke while processing a message.
type Tool struct {
	Name        string
	Description string
	Invoke      func(ctx context.Context, args map[string]any) (any, error)
}

// Plugin contributes extra tools to the domains that enable it by name in
// their config's plugins list.
type Plugin interface {
	Name() string
	Tools() []Tool
}

// ToolRegistry holds globally registered tools plus plugin contributions.
// Registration happens at process start; lookups are concurrent.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	plugins map[string]Plugin
}

// NewToolRegistry builds an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   map[string]Tool{},
		plugins: map[string]Plugin{},
	}
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(tool Tool) {
	if tool.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// RegisterPlugin makes a plugin's tools available to domains that list it.
func (r *ToolRegistry) RegisterPlugin(p Plugin) {
	if p == nil || p.Name() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// Resolve returns the named tools, searching the global registry first and
// then the tools contributed by the active plugins. Unresolvable names are
// logged and skipped; a crew with fewer tools still works.
func (r *ToolRegistry) Resolve(names, activePlugins []string, domain string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contributed := map[string]Tool{}
	for _, pluginName := range activePlugins {
		p, ok := r.plugins[pluginName]
		if !ok {
			logging.Warn(component, "unknown plugin skipped", "plugin", pluginName, "domain", domain)
			continue
		}
		for _, tool := range p.Tools() {
			contributed[tool.Name] = tool
		}
	}

	resolved := make([]Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			resolved = append(resolved, tool)
			continue
		}
		if tool, ok := contributed[name]; ok {
			resolved = append(resolved, tool)
			continue
		}
		logging.Warn(component, "tool not found, skipped", "tool", name, "domain", domain)
	}
	return resolved
}

// Names lists every globally registered tool, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
