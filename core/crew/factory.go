package crew

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crewmux/crewmux/core/cache"
	"github.com/crewmux/crewmux/core/configstore"
	"github.com/crewmux/crewmux/core/infra/logging"
	"github.com/crewmux/crewmux/core/infra/metrics"
)

const component = "crew"

// DescriptorTTL bounds how long a built handler stays cached without an
// explicit invalidation.
const DescriptorTTL = 24 * time.Hour

var (
	// ErrHandlerNotFound reports a handler id the merged domain config does
	// not declare.
	ErrHandlerNotFound = errors.New("handler not found")
	// ErrConfiguration reports missing or unusable domain configuration.
	ErrConfiguration = errors.New("configuration error")
)

// ConfigSource resolves the merged config document for a tenant.
type ConfigSource interface {
	Merged(ctx context.Context, domain, accountID string) (map[string]any, error)
}

// Factory builds handlers from merged domain config and caches the result
// per (domain, handler, account) key. At most one build per key is in flight
// at a time; concurrent requests for the same key wait for it.
type Factory struct {
	source  ConfigSource
	tools   *ToolRegistry
	cache   *cache.Layered
	runner  Runner
	metrics metrics.FactoryMetrics

	mu       sync.Mutex
	inflight map[string]*inflightBuild
}

type inflightBuild struct {
	done       chan struct{}
	descriptor *Descriptor
	err        error
}

// FactoryOptions wires a factory's collaborators.
type FactoryOptions struct {
	Source ConfigSource
	Tools  *ToolRegistry
	Cache  *cache.Layered
	// Runner executes built crews. Nil defaults to a LocalRunner over Tools.
	Runner Runner
	// Metrics defaults to metrics.Noop.
	Metrics metrics.FactoryMetrics
}

// NewFactory builds a handler factory.
func NewFactory(opts FactoryOptions) *Factory {
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	runner := opts.Runner
	if runner == nil {
		runner = &LocalRunner{Tools: opts.Tools}
	}
	return &Factory{
		source:   opts.Source,
		tools:    opts.Tools,
		cache:    opts.Cache,
		runner:   runner,
		metrics:  m,
		inflight: map[string]*inflightBuild{},
	}
}

// CacheKey is the layered-cache key of a built handler. The domain and
// handler segments come before the account so administrative invalidation
// can drop by prefix at either granularity.
func CacheKey(domain, handlerID, accountID string) string {
	return fmt.Sprintf("crew:%s:%s:%s", domain, handlerID, accountID)
}

// CacheKeyPrefix returns the invalidation prefix covering a domain, or one
// (domain, handler) pair when handlerID is set. Empty domain covers all
// cached handlers.
func CacheKeyPrefix(domain, handlerID string) string {
	if domain == "" {
		return "crew:"
	}
	if handlerID == "" {
		return "crew:" + domain + ":"
	}
	return "crew:" + domain + ":" + handlerID + ":"
}

// FetchOrBuild returns the cached handler for the key, building and caching
// it on miss. This is the only entry point callers should use; Build alone
// skips the cache.
func (f *Factory) FetchOrBuild(ctx context.Context, domain, accountID, handlerID string) (Handler, error) {
	key := CacheKey(domain, handlerID, accountID)

	if f.cache != nil {
		var cached Descriptor
		err := f.cache.Get(ctx, key, &cached)
		if err == nil {
			return newHandler(&cached, f.runner), nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
	}

	descriptor, err := f.buildOnce(ctx, key, domain, accountID, handlerID)
	if err != nil {
		return nil, err
	}
	return newHandler(descriptor, f.runner), nil
}

// buildOnce coalesces concurrent builds of the same key onto one
// construction; late arrivals wait for the in-flight result.
func (f *Factory) buildOnce(ctx context.Context, key, domain, accountID, handlerID string) (*Descriptor, error) {
	f.mu.Lock()
	if in, ok := f.inflight[key]; ok {
		f.mu.Unlock()
		f.metrics.IncBuildsCoalesced(domain, handlerID)
		select {
		case <-in.done:
			return in.descriptor, in.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	in := &inflightBuild{done: make(chan struct{})}
	f.inflight[key] = in
	f.mu.Unlock()

	in.descriptor, in.err = f.Build(ctx, domain, accountID, handlerID)
	if in.err == nil && f.cache != nil {
		if err := f.cache.Set(ctx, key, in.descriptor, DescriptorTTL); err != nil {
			logging.Warn(component, "failed to cache built handler", "key", key, "error", err)
		}
	}

	f.mu.Lock()
	delete(f.inflight, key)
	f.mu.Unlock()
	close(in.done)
	return in.descriptor, in.err
}

// Build constructs a handler descriptor from the merged domain config.
// Callers outside a cache-miss path should use FetchOrBuild instead.
func (f *Factory) Build(ctx context.Context, domain, accountID, handlerID string) (*Descriptor, error) {
	start := time.Now()
	descriptor, err := f.build(ctx, domain, accountID, handlerID)
	status := "ok"
	if err != nil {
		status = "error"
	}
	f.metrics.IncBuilds(domain, handlerID, status)
	f.metrics.ObserveBuildDuration(domain, handlerID, time.Since(start).Seconds())
	return descriptor, err
}

func (f *Factory) build(ctx context.Context, domain, accountID, handlerID string) (*Descriptor, error) {
	merged, err := f.source.Merged(ctx, domain, accountID)
	if err != nil {
		if errors.Is(err, configstore.ErrNotFound) {
			return nil, fmt.Errorf("domain %q account %q: %w: %v", domain, accountID, ErrConfiguration, err)
		}
		return nil, fmt.Errorf("load config for %q/%q: %w", domain, accountID, err)
	}

	handlersRaw, _ := asStringMap(merged["handlers"])
	handlerRaw, ok := asStringMap(handlersRaw[handlerID])
	if !ok {
		return nil, fmt.Errorf("domain %q has no handler %q: %w", domain, handlerID, ErrHandlerNotFound)
	}

	domainName, _ := merged["domain_name"].(string)
	if domainName == "" {
		domainName = domain
	}
	placeholders := stringMapFromConfig(merged["placeholders"])

	agents, err := f.resolveAgents(merged, handlerRaw, domain, domainName, placeholders)
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("handler %q in domain %q resolved no agents: %w", handlerID, domain, ErrConfiguration)
	}

	tasks, err := resolveTasks(handlerRaw, agents, domain, handlerID)
	if err != nil {
		return nil, err
	}

	process, _ := handlerRaw["process"].(string)
	if process == "" {
		process = ProcessSequential
	}

	return &Descriptor{
		HandlerID:  handlerID,
		DomainName: domainName,
		AccountID:  accountID,
		Process:    process,
		Agents:     agents,
		Tasks:      tasks,
		Plugins:    stringSliceFromConfig(merged["plugins"]),
		BuiltAt:    time.Now().UTC(),
	}, nil
}

// resolveAgents turns the handler's agent list into full specs. Entries are
// either bare references into the domain's agents section or inline spec
// maps. Missing references are skipped with a warning.
func (f *Factory) resolveAgents(merged, handlerRaw map[string]any, domain, domainName string, placeholders map[string]string) ([]AgentSpec, error) {
	declared, _ := merged["agents"].(map[string]any)
	agentDefaults, _ := asStringMap(merged["agent_defaults"])
	typeDefaults, _ := asStringMap(merged["agent_type_defaults"])

	refs, ok := handlerRaw["agents"].([]any)
	if !ok {
		return nil, fmt.Errorf("handler agents list malformed: %w", ErrConfiguration)
	}

	agents := make([]AgentSpec, 0, len(refs))
	for _, ref := range refs {
		var id string
		var raw map[string]any
		switch entry := ref.(type) {
		case string:
			id = entry
			declaredRaw, ok := asStringMap(declared[entry])
			if !ok {
				logging.Warn(component, "agent reference not declared, skipped",
					"agent", entry, "domain", domain)
				continue
			}
			raw = declaredRaw
		case map[string]any:
			raw = entry
			id, _ = entry["id"].(string)
			if id == "" {
				logging.Warn(component, "inline agent without id, skipped", "domain", domain)
				continue
			}
		default:
			logging.Warn(component, "unrecognized agent entry, skipped", "domain", domain)
			continue
		}

		// Priority: defaults < type defaults < the agent's own fields.
		mergedAgent := configstore.DeepMerge(map[string]any{}, agentDefaults)
		if agentType, _ := raw["type"].(string); agentType != "" {
			if perType, ok := asStringMap(typeDefaults[agentType]); ok {
				mergedAgent = configstore.DeepMerge(mergedAgent, perType)
			}
		}
		mergedAgent = configstore.DeepMerge(mergedAgent, raw)

		var spec AgentSpec
		if err := decodeInto(mergedAgent, &spec); err != nil {
			logging.Warn(component, "agent spec malformed, skipped",
				"agent", id, "domain", domain, "error", err)
			continue
		}
		spec.ID = id
		spec.Backstory = resolvePlaceholders(spec.Backstory, domainName, placeholders)
		agents = append(agents, spec)
	}
	return agents, nil
}

// resolveTasks decodes the handler's tasks and drops any whose agent did not
// survive resolution, cascading over dependents. A handler with no runnable
// tasks left is a configuration error.
func resolveTasks(handlerRaw map[string]any, agents []AgentSpec, domain, handlerID string) ([]TaskSpec, error) {
	rawTasks, ok := handlerRaw["tasks"].([]any)
	if !ok {
		return nil, fmt.Errorf("handler tasks list malformed: %w", ErrConfiguration)
	}
	agentIDs := make(map[string]bool, len(agents))
	for _, agent := range agents {
		agentIDs[agent.ID] = true
	}

	tasks := make([]TaskSpec, 0, len(rawTasks))
	for i, rawTask := range rawTasks {
		taskMap, ok := asStringMap(rawTask)
		if !ok {
			logging.Warn(component, "task entry malformed, skipped",
				"handler", handlerID, "index", i, "domain", domain)
			continue
		}
		var task TaskSpec
		if err := decodeInto(taskMap, &task); err != nil {
			logging.Warn(component, "task spec malformed, skipped",
				"handler", handlerID, "index", i, "error", err)
			continue
		}
		if task.ID == "" {
			task.ID = fmt.Sprintf("%s-task-%d", handlerID, i)
		}
		if !agentIDs[task.AgentID] {
			logging.Warn(component, "task dropped, agent unresolved",
				"task", task.ID, "agent", task.AgentID, "handler", handlerID, "domain", domain)
			continue
		}
		tasks = append(tasks, task)
	}

	// Drop tasks whose dependencies were themselves dropped, until stable.
	for {
		surviving := make(map[string]bool, len(tasks))
		for _, task := range tasks {
			surviving[task.ID] = true
		}
		kept := tasks[:0]
		dropped := false
		for _, task := range tasks {
			missing := ""
			for _, dep := range task.DependsOn {
				if !surviving[dep] {
					missing = dep
					break
				}
			}
			if missing != "" {
				logging.Warn(component, "task dropped, dependency unavailable",
					"task", task.ID, "dependency", missing, "handler", handlerID)
				dropped = true
				continue
			}
			kept = append(kept, task)
		}
		tasks = kept
		if !dropped {
			break
		}
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("handler %q in domain %q has no runnable tasks: %w", handlerID, domain, ErrConfiguration)
	}
	return tasks, nil
}

// Invalidate drops cached handlers at the given granularity: everything,
// one domain, or one (domain, handler) pair across accounts.
func (f *Factory) Invalidate(ctx context.Context, domain, handlerID string) error {
	if f.cache == nil {
		return nil
	}
	return f.cache.InvalidatePrefix(ctx, CacheKeyPrefix(domain, handlerID))
}
