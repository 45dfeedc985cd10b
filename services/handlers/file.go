package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type filePayload struct {
	Op      string `json:"op"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileOperationHandler writes and removes files under a dedicated workspace
// directory. Payload paths are relative; anything resolving outside the
// workspace root is rejected.
type FileOperationHandler struct {
	root string
}

func NewFileOperationHandler() *FileOperationHandler {
	return &FileOperationHandler{root: "workspace"}
}

func (h *FileOperationHandler) Kind() workitem.Kind { return workitem.KindFileOperation }

func (h *FileOperationHandler) RetrySafe() bool { return true }

func (h *FileOperationHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	var p filePayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid file payload: %w", err)
	}

	target, err := h.resolve(att.Item.OwnerID, p.Path)
	if err != nil {
		return scheduler.Result{}, err
	}

	switch p.Op {
	case "write":
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return scheduler.Result{}, fmt.Errorf("create directory: %w", err)
		}
		if err := os.WriteFile(target, []byte(p.Content), 0o644); err != nil {
			return scheduler.Result{}, fmt.Errorf("write %s: %w", p.Path, err)
		}
		return scheduler.Result{Summary: fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path)}, nil
	case "delete":
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return scheduler.Result{}, fmt.Errorf("delete %s: %w", p.Path, err)
		}
		return scheduler.Result{Summary: fmt.Sprintf("deleted %s", p.Path)}, nil
	case "append":
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return scheduler.Result{}, fmt.Errorf("create directory: %w", err)
		}
		f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return scheduler.Result{}, fmt.Errorf("open %s: %w", p.Path, err)
		}
		defer f.Close()
		if _, err := f.WriteString(p.Content); err != nil {
			return scheduler.Result{}, fmt.Errorf("append %s: %w", p.Path, err)
		}
		return scheduler.Result{Summary: fmt.Sprintf("appended %d bytes to %s", len(p.Content), p.Path)}, nil
	default:
		return scheduler.Result{}, fmt.Errorf("unsupported file op %q", p.Op)
	}
}

func (h *FileOperationHandler) resolve(ownerID, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	ownerRoot := filepath.Join(h.root, ownerID)
	target := filepath.Join(ownerRoot, path)
	rel, err := filepath.Rel(ownerRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", path)
	}
	return target, nil
}
