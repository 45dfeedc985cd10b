package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type systemPayload struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// SystemCommandHandler runs a command from a fixed allowlist. Items of this
// kind are expected to arrive with requires_confirmation set; the allowlist
// is the backstop for the ones that do not.
type SystemCommandHandler struct {
	allowed map[string]struct{}
}

func NewSystemCommandHandler() *SystemCommandHandler {
	return &SystemCommandHandler{
		allowed: map[string]struct{}{
			"echo":   {},
			"date":   {},
			"uptime": {},
			"df":     {},
			"du":     {},
		},
	}
}

func (h *SystemCommandHandler) Kind() workitem.Kind { return workitem.KindSystemCommand }

func (h *SystemCommandHandler) RetrySafe() bool { return false }

func (h *SystemCommandHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	var p systemPayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid system command payload: %w", err)
	}

	if _, ok := h.allowed[p.Command]; !ok {
		return scheduler.Result{}, fmt.Errorf("command %q is not allowed", p.Command)
	}

	out, err := exec.CommandContext(ctx, p.Command, p.Args...).CombinedOutput()
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("%s failed: %w: %s", p.Command, err, truncate(string(out), 256))
	}

	return scheduler.Result{
		Summary: fmt.Sprintf("%s: %s", p.Command, truncate(strings.TrimSpace(string(out)), 512)),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
