package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClassifierConfig drives keyword-based handler-kind classification.
// Priority is the explicit tie-break order: when keywords of several kinds
// match one message, the kind listed first wins. Declaration order of the
// kinds map never matters.
type ClassifierConfig struct {
	DefaultKind string              `yaml:"default_kind"`
	Priority    []string            `yaml:"priority"`
	Kinds       map[string][]string `yaml:"kinds"`
}

// ParseClassifier parses and validates classifier YAML bytes.
func ParseClassifier(data []byte) (*ClassifierConfig, error) {
	if len(data) == 0 {
		return nil, errors.New("classifier config is empty")
	}
	if err := validateConfigSchema("classifier", classifierSchemaFile, data); err != nil {
		return nil, err
	}
	var cfg ClassifierConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse classifier config: %w", err)
	}
	if cfg.DefaultKind == "" {
		return nil, errors.New("classifier config has no default_kind")
	}
	if len(cfg.Kinds) == 0 {
		return nil, errors.New("classifier config has no kinds")
	}
	seen := make(map[string]bool, len(cfg.Priority))
	for _, kind := range cfg.Priority {
		if _, ok := cfg.Kinds[kind]; !ok {
			return nil, fmt.Errorf("priority lists unknown kind %q", kind)
		}
		if seen[kind] {
			return nil, fmt.Errorf("priority lists kind %q twice", kind)
		}
		seen[kind] = true
	}
	for kind := range cfg.Kinds {
		if !seen[kind] {
			return nil, fmt.Errorf("kind %q missing from priority list", kind)
		}
	}
	return &cfg, nil
}

// LoadClassifier reads and parses the classifier config file.
func LoadClassifier(path string) (*ClassifierConfig, error) {
	if path == "" {
		return nil, errors.New("classifier config path is empty")
	}
	// #nosec G304 -- classifier path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier config %s: %w", path, err)
	}
	cfg, err := ParseClassifier(data)
	if err != nil {
		return nil, fmt.Errorf("load classifier config %s: %w", path, err)
	}
	return cfg, nil
}
