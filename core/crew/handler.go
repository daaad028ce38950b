package crew

import (
	"context"
	"time"
)

// Handler is the uniform surface every crew exposes to the routing hub,
// regardless of the domain-specific shape behind it.
type Handler interface {
	Process(ctx context.Context, message, tenantCtx map[string]any) (map[string]any, error)
	Info() HandlerInfo
}

// HandlerInfo is descriptive metadata about a built handler.
type HandlerInfo struct {
	HandlerID  string    `json:"handler_id"`
	DomainName string    `json:"domain_name"`
	AccountID  string    `json:"account_id"`
	Process    string    `json:"process"`
	Agents     []string  `json:"agents"`
	Tasks      int       `json:"tasks"`
	BuiltAt    time.Time `json:"built_at"`
}

// crewHandler pairs a descriptor with the runner that executes it.
type crewHandler struct {
	descriptor *Descriptor
	runner     Runner
}

func newHandler(descriptor *Descriptor, runner Runner) Handler {
	return &crewHandler{descriptor: descriptor, runner: runner}
}

func (h *crewHandler) Process(ctx context.Context, message, tenantCtx map[string]any) (map[string]any, error) {
	return h.runner.Run(ctx, h.descriptor, message, tenantCtx)
}

func (h *crewHandler) Info() HandlerInfo {
	agents := make([]string, 0, len(h.descriptor.Agents))
	for _, agent := range h.descriptor.Agents {
		agents = append(agents, agent.ID)
	}
	return HandlerInfo{
		HandlerID:  h.descriptor.HandlerID,
		DomainName: h.descriptor.DomainName,
		AccountID:  h.descriptor.AccountID,
		Process:    h.descriptor.Process,
		Agents:     agents,
		Tasks:      len(h.descriptor.Tasks),
		BuiltAt:    h.descriptor.BuiltAt,
	}
}
