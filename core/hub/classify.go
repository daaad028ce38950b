package hub

import (
	"strings"

	"github.com/crewmux/crewmux/core/infra/config"
)

// classify derives the handler kind from message text by keyword match.
// Deterministic by construction: kinds are checked in the operator's
// priority order, so overlapping keyword sets always tie-break the same
// way. No match yields the configured default kind.
func classify(cfg *config.ClassifierConfig, text string) string {
	if cfg == nil {
		return ""
	}
	lowered := strings.ToLower(text)
	for _, kind := range cfg.Priority {
		for _, keyword := range cfg.Kinds[kind] {
			if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
				return kind
			}
		}
	}
	return cfg.DefaultKind
}

// messageText extracts the classifiable text of a message.
func messageText(message map[string]any) string {
	for _, key := range []string{"text", "content", "body"} {
		if s, ok := message[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
