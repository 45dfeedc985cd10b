package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type externalCallPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// ExternalCallHandler performs an HTTP request described by the payload. The
// handler timeout bounds the request through the attempt context, so no
// separate client timeout is set here.
type ExternalCallHandler struct {
	client *resty.Client
}

func NewExternalCallHandler() *ExternalCallHandler {
	return &ExternalCallHandler{client: resty.New()}
}

func (h *ExternalCallHandler) Kind() workitem.Kind { return workitem.KindExternalCall }

// RetrySafe is false: the target endpoint is arbitrary and a replayed POST
// may not be deduplicated on the far side.
func (h *ExternalCallHandler) RetrySafe() bool { return false }

func (h *ExternalCallHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	var p externalCallPayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid external call payload: %w", err)
	}

	if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
		return scheduler.Result{}, fmt.Errorf("url must be http or https")
	}

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return scheduler.Result{}, fmt.Errorf("unsupported method %q", p.Method)
	}

	req := h.client.R().SetContext(ctx).SetHeaders(p.Headers)
	if len(p.Body) > 0 {
		req = req.SetHeader("Content-Type", "application/json").SetBody([]byte(p.Body))
	}

	resp, err := req.Execute(method, p.URL)
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("%s %s: %w", method, p.URL, err)
	}
	if resp.IsError() {
		return scheduler.Result{}, fmt.Errorf("%s %s returned %d", method, p.URL, resp.StatusCode())
	}

	return scheduler.Result{
		Summary: fmt.Sprintf("%s %s -> %d (%d bytes)", method, p.URL, resp.StatusCode(), len(resp.Body())),
	}, nil
}
