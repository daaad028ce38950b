package hub

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/crewmux/crewmux/core/cache"
	"github.com/crewmux/crewmux/core/crew"
	"github.com/crewmux/crewmux/core/infra/bus"
	"github.com/crewmux/crewmux/core/infra/config"
	"github.com/crewmux/crewmux/core/infra/logging"
	"github.com/crewmux/crewmux/core/infra/metrics"
	"github.com/crewmux/crewmux/core/tenant"
)

const component = "hub"

// DefaultHandlerTimeout bounds one handler invocation when the caller sets
// no explicit timeout.
const DefaultHandlerTimeout = 90 * time.Second

// Request carries one inbound message and its channel identity.
type Request struct {
	Message        map[string]any
	ConversationID string
	Channel        string
	AccountID      string
	InboxID        string

	// HandlerID skips classification when set. Used by internal tooling.
	HandlerID string
	// DomainHint/AccountHint short-circuit tenant resolution.
	DomainHint  string
	AccountHint string
}

// Options wires a hub's collaborators.
type Options struct {
	Resolver   *tenant.Resolver
	Factory    *crew.Factory
	Classifier *config.ClassifierConfig
	// Cache is the shared layered cache, needed by the invalidation
	// listener to drop Tier-1 state.
	Cache *cache.Layered
	// Bus broadcasts invalidations across router instances. Optional.
	Bus      *bus.NatsBus
	SenderID string
	// HandlerTimeout defaults to DefaultHandlerTimeout.
	HandlerTimeout time.Duration
	// Workers sizes the invocation pool.
	Workers int
	// Metrics defaults to metrics.Noop.
	Metrics metrics.RouterMetrics
}

// Hub routes inbound messages to tenant-specific handlers.
type Hub struct {
	resolver   *tenant.Resolver
	factory    *crew.Factory
	classifier *config.ClassifierConfig
	cache      *cache.Layered
	bus        *bus.NatsBus
	senderID   string
	timeout    time.Duration
	pool       *pool
	metrics    metrics.RouterMetrics
}

// New builds a hub. Resolver and Factory are mandatory.
func New(opts Options) (*Hub, error) {
	if opts.Resolver == nil {
		return nil, errors.New("hub needs a tenant resolver")
	}
	if opts.Factory == nil {
		return nil, errors.New("hub needs a handler factory")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	timeout := opts.HandlerTimeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}
	return &Hub{
		resolver:   opts.Resolver,
		factory:    opts.Factory,
		classifier: opts.Classifier,
		cache:      opts.Cache,
		bus:        opts.Bus,
		senderID:   opts.SenderID,
		timeout:    timeout,
		pool:       newPool(opts.Workers),
		metrics:    m,
	}, nil
}

// Close drains the invocation pool.
func (h *Hub) Close() {
	h.pool.close()
}

// Route is the sole entry point for inbound messages. Resolution and
// construction failures come back as typed errors; execution failures come
// back in-band on the result so "no response produced" is representable
// without an error escaping.
func (h *Hub) Route(ctx context.Context, req Request) (*RoutedResult, error) {
	start := time.Now()

	binding, err := h.resolver.Resolve(ctx, tenant.Request{
		ConversationID:   req.ConversationID,
		Channel:          req.Channel,
		ChannelAccountID: req.AccountID,
		InboxID:          req.InboxID,
		ExplicitDomain:   req.DomainHint,
		ExplicitAccount:  req.AccountHint,
	})
	if err != nil {
		if errors.Is(err, tenant.ErrUnresolved) {
			h.metrics.IncTenantUnresolved(req.Channel)
			h.metrics.IncRoutes("", "", "tenant_unresolved")
			return nil, fmt.Errorf("%w: %v", ErrTenantUnresolved, err)
		}
		h.metrics.IncRoutes("", "", "error")
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	kind := req.HandlerID
	if kind == "" {
		kind = classify(h.classifier, messageText(req.Message))
	}
	if kind == "" {
		h.metrics.IncRoutes(binding.DomainName, "", "handler_not_found")
		return nil, fmt.Errorf("no handler kind derivable: %w", ErrHandlerNotFound)
	}

	routing := Routing{
		DomainName: binding.DomainName,
		AccountID:  binding.InternalAccountID,
		HandlerID:  kind,
		Kind:       kind,
	}

	handler, err := h.factory.FetchOrBuild(ctx, binding.DomainName, binding.InternalAccountID, kind)
	if err != nil {
		typed := h.wrapBuildError(err, routing)
		h.metrics.IncRoutes(binding.DomainName, kind, errorType(typed))
		return nil, typed
	}

	response, err := h.invoke(ctx, handler, req)
	h.metrics.ObserveRouteDuration(binding.DomainName, kind, time.Since(start).Seconds())
	if err != nil {
		h.metrics.IncRoutes(binding.DomainName, kind, "execution_failed")
		logging.Warn(component, "handler execution failed",
			"conversation_id", req.ConversationID,
			"domain", routing.DomainName,
			"handler", routing.HandlerID,
			"error", err)
		return &RoutedResult{
			Routing: routing,
			Error: &ErrorInfo{
				Type:    errorType(ErrHandlerExecutionFailed),
				Message: err.Error(),
				Timeout: errors.Is(err, context.DeadlineExceeded),
			},
		}, nil
	}

	h.metrics.IncRoutes(binding.DomainName, kind, "ok")
	return &RoutedResult{Response: response, Routing: routing}, nil
}

// invoke runs handler.Process on the worker pool under the handler timeout.
// A panic inside the handler is contained and surfaced as an error.
func (h *Hub) invoke(ctx context.Context, handler crew.Handler, req Request) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	type outcome struct {
		response map[string]any
		err      error
	}
	done := make(chan outcome, 1)

	tenantCtx := map[string]any{
		"conversation_id": req.ConversationID,
		"channel":         req.Channel,
	}
	err := h.pool.submit(req.ConversationID, func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error(component, "handler panicked",
					"conversation_id", req.ConversationID,
					"panic", r,
					"stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		response, err := handler.Process(ctx, req.Message, tenantCtx)
		done <- outcome{response: response, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-done:
		return out.response, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) wrapBuildError(err error, routing Routing) error {
	meta := fmt.Sprintf("domain %q account %q handler %q", routing.DomainName, routing.AccountID, routing.HandlerID)
	switch {
	case errors.Is(err, crew.ErrHandlerNotFound):
		return fmt.Errorf("%s: %w: %v", meta, ErrHandlerNotFound, err)
	case errors.Is(err, crew.ErrConfiguration):
		return fmt.Errorf("%s: %w: %v", meta, ErrConfiguration, err)
	default:
		return fmt.Errorf("%s: %w: %v", meta, ErrHandlerConstructionFailed, err)
	}
}

// invalidatePayload travels on the invalidation subject. Key is a full
// cache key or a prefix.
type invalidatePayload struct {
	Key    string `json:"key"`
	Prefix bool   `json:"prefix"`
}

// InvalidateHandlerCache drops cached handlers after a configuration
// change: everything, one domain, or one (domain, handler) pair. The drop
// clears both tiers locally and broadcasts so peer instances drop Tier 1.
func (h *Hub) InvalidateHandlerCache(ctx context.Context, domain, handlerID string) error {
	if err := h.factory.Invalidate(ctx, domain, handlerID); err != nil {
		return fmt.Errorf("invalidate handler cache: %w", err)
	}
	prefix := crew.CacheKeyPrefix(domain, handlerID)
	logging.Info(component, "handler cache invalidated", "prefix", prefix)
	h.broadcastInvalidate(prefix)
	return nil
}

func (h *Hub) broadcastInvalidate(prefix string) {
	if h.bus == nil {
		return
	}
	packet, err := bus.NewPacket(bus.KindInvalidate, h.senderID, "", invalidatePayload{
		Key:    prefix,
		Prefix: true,
	})
	if err != nil {
		logging.Warn(component, "failed to encode invalidation", "error", err)
		return
	}
	if err := h.bus.Publish(bus.SubjectInvalidate, packet); err != nil {
		logging.Warn(component, "failed to broadcast invalidation", "error", err)
	}
}

// StartInvalidationListener subscribes to the invalidation subject and
// drops matching Tier-1 entries. The sender already cleared Tier 2, so only
// local state is touched.
func (h *Hub) StartInvalidationListener() error {
	if h.bus == nil || h.cache == nil {
		return nil
	}
	return h.bus.Subscribe(bus.SubjectInvalidate, "", func(packet *bus.Packet) {
		if packet.SenderID == h.senderID && h.senderID != "" {
			return
		}
		var payload invalidatePayload
		if err := packet.DecodePayload(&payload); err != nil {
			logging.Warn(component, "bad invalidation packet", "error", err)
			return
		}
		h.cache.DropLocal(payload.Key, payload.Prefix)
		logging.Info(component, "dropped local cache state", "key", payload.Key, "prefix", payload.Prefix)
	})
}
