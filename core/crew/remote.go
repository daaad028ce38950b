package crew

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewmux/crewmux/core/infra/bus"
)

// processRequest is the payload sent to remote crew workers.
type processRequest struct {
	HandlerID  string         `json:"handler_id"`
	DomainName string         `json:"domain_name"`
	AccountID  string         `json:"account_id"`
	Message    map[string]any `json:"message"`
	TenantCtx  map[string]any `json:"tenant_context,omitempty"`
}

// processResult is the payload remote crew workers answer with.
type processResult struct {
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// RemoteRunner ships execution to crew workers over NATS request/reply on
// crew.<domain>.<handler>. Workers join a queue group so one worker answers
// each request.
type RemoteRunner struct {
	Bus      *bus.NatsBus
	SenderID string
}

// Run sends the message to the crew's subject and waits for the reply within
// the caller's context deadline.
func (r *RemoteRunner) Run(ctx context.Context, descriptor *Descriptor, message, tenantCtx map[string]any) (map[string]any, error) {
	if r.Bus == nil {
		return nil, errors.New("remote runner has no bus")
	}
	if descriptor == nil {
		return nil, errors.New("nil descriptor")
	}
	packet, err := bus.NewPacket(bus.KindProcessRequest, r.SenderID, "", processRequest{
		HandlerID:  descriptor.HandlerID,
		DomainName: descriptor.DomainName,
		AccountID:  descriptor.AccountID,
		Message:    message,
		TenantCtx:  tenantCtx,
	})
	if err != nil {
		return nil, err
	}

	subject := bus.CrewSubject(descriptor.DomainName, descriptor.HandlerID)
	reply, err := r.Bus.Request(ctx, subject, packet)
	if err != nil {
		return nil, fmt.Errorf("remote crew %s: %w", subject, err)
	}

	var result processResult
	if err := reply.DecodePayload(&result); err != nil {
		return nil, fmt.Errorf("remote crew %s reply: %w", subject, err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("remote crew %s: %s", subject, result.Error)
	}
	return result.Response, nil
}

// ServeCrew attaches a worker that answers process requests for one
// (domain, handler) pair using the provided runner. Used by out-of-process
// crew workers; the router itself runs crews locally.
func ServeCrew(b *bus.NatsBus, descriptor *Descriptor, runner Runner) error {
	if b == nil {
		return errors.New("nil bus")
	}
	subject := bus.CrewSubject(descriptor.DomainName, descriptor.HandlerID)
	return b.Serve(subject, "crew-workers", func(packet *bus.Packet) (*bus.Packet, error) {
		var req processRequest
		if err := packet.DecodePayload(&req); err != nil {
			return bus.NewPacket(bus.KindProcessResult, descriptor.HandlerID, packet.TraceID, processResult{
				Error: fmt.Sprintf("bad request: %v", err),
			})
		}
		response, err := runner.Run(context.Background(), descriptor, req.Message, req.TenantCtx)
		if err != nil {
			return bus.NewPacket(bus.KindProcessResult, descriptor.HandlerID, packet.TraceID, processResult{
				Error: err.Error(),
			})
		}
		return bus.NewPacket(bus.KindProcessResult, descriptor.HandlerID, packet.TraceID, processResult{
			Response: response,
		})
	})
}
