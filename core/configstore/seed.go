package configstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crewmux/crewmux/core/infra/logging"
)

const component = "configstore"

type seedFile struct {
	Scope   Scope          `yaml:"scope"`
	ScopeID string         `yaml:"scope_id"`
	Data    map[string]any `yaml:"data"`
}

// SeedFromDir loads YAML seed documents from dir into the store.
// Existing documents are never overwritten: seeds bootstrap a fresh
// deployment, operator edits stay authoritative afterwards.
// Returns the number of documents written.
func (s *Store) SeedFromDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read seed dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	seeded := 0
	for _, name := range names {
		path := filepath.Join(dir, name)
		// #nosec G304 -- seed dir is operator-provided.
		data, err := os.ReadFile(path)
		if err != nil {
			return seeded, fmt.Errorf("read seed %s: %w", path, err)
		}
		var seed seedFile
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return seeded, fmt.Errorf("parse seed %s: %w", path, err)
		}
		if seed.Scope == "" {
			return seeded, fmt.Errorf("seed %s: scope required", path)
		}
		normalized, err := normalizeYAMLMap(seed.Data)
		if err != nil {
			return seeded, fmt.Errorf("seed %s: %w", path, err)
		}

		scopeID := seed.ScopeID
		if seed.Scope == ScopeBase {
			scopeID = BaseScopeID
		}
		exists, err := s.Exists(ctx, seed.Scope, scopeID)
		if err != nil {
			return seeded, err
		}
		if exists {
			logging.Info(component, "seed skipped, document exists", "scope", seed.Scope, "scope_id", scopeID)
			continue
		}
		doc := &Document{
			Scope:   seed.Scope,
			ScopeID: scopeID,
			Data:    normalized,
			Meta:    map[string]string{"seeded_from": name},
		}
		if err := s.Set(ctx, doc); err != nil {
			return seeded, fmt.Errorf("seed %s: %w", path, err)
		}
		logging.Info(component, "seeded config document", "scope", seed.Scope, "scope_id", scopeID)
		seeded++
	}
	return seeded, nil
}

// normalizeYAMLMap forces YAML's map[any]any shapes into map[string]any so
// documents round-trip through JSON identically no matter how they arrived.
func normalizeYAMLMap(in map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		nv, err := normalizeYAMLValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeYAMLValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		return normalizeYAMLMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string map key %v", k)
			}
			nv, err := normalizeYAMLValue(val)
			if err != nil {
				return nil, err
			}
			out[ks] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			nv, err := normalizeYAMLValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
