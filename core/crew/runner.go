package crew

import (
	"context"
	"fmt"

	"github.com/crewmux/crewmux/core/infra/logging"
)

// Runner executes a built crew against one message. The conversational
// pipeline behind it (LLM calls, backend systems) is out of scope here; the
// hub only depends on this surface.
type Runner interface {
	Run(ctx context.Context, descriptor *Descriptor, message, tenantCtx map[string]any) (map[string]any, error)
}

// LocalRunner executes the task graph in process: tasks run in declaration
// order with dependencies satisfied first, each task invoking its agent's
// resolved tools. Plugin activation comes from the descriptor, so one runner
// serves every domain. It is the default runner and the one used in tests.
type LocalRunner struct {
	Tools *ToolRegistry
}

// Run walks the descriptor's tasks and assembles a structured response.
// Tool failures are logged and skipped; a task with no working tools still
// produces a step.
func (r *LocalRunner) Run(ctx context.Context, descriptor *Descriptor, message, tenantCtx map[string]any) (map[string]any, error) {
	if descriptor == nil {
		return nil, fmt.Errorf("nil descriptor")
	}
	ordered, err := orderTasks(descriptor.Tasks)
	if err != nil {
		return nil, err
	}

	steps := make([]map[string]any, 0, len(ordered))
	for _, task := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		agent, ok := descriptor.AgentByID(task.AgentID)
		if !ok {
			// Construction drops tasks with missing agents, so this only
			// fires on a descriptor deserialized from an older build.
			logging.Warn(component, "task skipped, agent missing",
				"task", task.ID, "agent", task.AgentID, "handler", descriptor.HandlerID)
			continue
		}

		outputs := map[string]any{}
		if r.Tools != nil {
			for _, tool := range r.Tools.Resolve(agent.Tools, descriptor.Plugins, descriptor.DomainName) {
				result, err := tool.Invoke(ctx, message)
				if err != nil {
					logging.Warn(component, "tool invocation failed",
						"tool", tool.Name, "task", task.ID, "error", err)
					continue
				}
				outputs[tool.Name] = result
			}
		}
		steps = append(steps, map[string]any{
			"task":    task.ID,
			"agent":   agent.ID,
			"role":    agent.Role,
			"outputs": outputs,
		})
	}

	return map[string]any{
		"handler_id": descriptor.HandlerID,
		"domain":     descriptor.DomainName,
		"process":    descriptor.Process,
		"steps":      steps,
	}, nil
}

// orderTasks returns the tasks with every dependency ahead of its
// dependents. Declaration order is preserved among independent tasks.
func orderTasks(tasks []TaskSpec) ([]TaskSpec, error) {
	byID := make(map[string]TaskSpec, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	ordered := make([]TaskSpec, 0, len(tasks))
	done := make(map[string]bool, len(tasks))
	visiting := make(map[string]bool, len(tasks))

	var visit func(task TaskSpec) error
	visit = func(task TaskSpec) error {
		if done[task.ID] {
			return nil
		}
		if visiting[task.ID] {
			return fmt.Errorf("task dependency cycle at %q", task.ID)
		}
		visiting[task.ID] = true
		for _, dep := range task.DependsOn {
			depTask, ok := byID[dep]
			if !ok {
				return fmt.Errorf("task %q depends on unknown task %q", task.ID, dep)
			}
			if err := visit(depTask); err != nil {
				return err
			}
		}
		visiting[task.ID] = false
		done[task.ID] = true
		ordered = append(ordered, task)
		return nil
	}

	for _, task := range tasks {
		if err := visit(task); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
