package crew

import "testing"

func TestResolvePlaceholders(t *testing.T) {
	tests := []struct {
		name     string
		template string
		domain   string
		extra    map[string]string
		want     string
	}{
		{
			name:     "config placeholder wins",
			template: "Serving {domain_name}",
			domain:   "Glow Cosmetics",
			extra:    map[string]string{"domain_name": "Override Inc"},
			want:     "Serving Override Inc",
		},
		{
			name:     "domain name built-in",
			template: "Serving {domain_name}",
			domain:   "Glow Cosmetics",
			want:     "Serving Glow Cosmetics",
		},
		{
			name:     "documented default",
			template: "Part of {team_name}",
			want:     "Part of our team",
		},
		{
			name:     "unknown token resolves empty",
			template: "before {no_such_token} after",
			want:     "before  after",
		},
		{
			name:     "no placeholders passes through",
			template: "plain backstory",
			want:     "plain backstory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolvePlaceholders(tt.template, tt.domain, tt.extra)
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

type fakePlugin struct {
	name  string
	tools []Tool
}

func (p fakePlugin) Name() string  { return p.name }
func (p fakePlugin) Tools() []Tool { return p.tools }

func TestToolRegistryPluginContribution(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(Tool{Name: "global_tool"})
	registry.RegisterPlugin(fakePlugin{
		name:  "shopify",
		tools: []Tool{{Name: "order_status"}},
	})

	resolved := registry.Resolve(
		[]string{"global_tool", "order_status", "missing"},
		[]string{"shopify", "unknown_plugin"},
		"cosmetics",
	)
	if len(resolved) != 2 {
		t.Fatalf("resolved %d tools, want 2", len(resolved))
	}

	// Plugin tools are invisible to domains that do not enable the plugin.
	resolved = registry.Resolve([]string{"order_status"}, nil, "retail")
	if len(resolved) != 0 {
		t.Fatalf("plugin tool leaked without activation")
	}
}
