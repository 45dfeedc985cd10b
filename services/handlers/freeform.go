package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"agentplane/services/intent"
	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type freeformPayload struct {
	Text string `json:"text"`
}

// FreeformIntentHandler takes commands that could not be classified at submit
// time and tries again at execution time, when a slower or newer classifier
// may succeed. A successful classification spawns a concrete work item.
type FreeformIntentHandler struct {
	classifier intent.Classifier
	svc        *workitem.Service
}

func NewFreeformIntentHandler(classifier intent.Classifier, svc *workitem.Service) *FreeformIntentHandler {
	return &FreeformIntentHandler{classifier: classifier, svc: svc}
}

func (h *FreeformIntentHandler) Kind() workitem.Kind { return workitem.KindFreeformIntent }

// RetrySafe is false: a crash after the spawn but before the outcome commit
// spawns a duplicate item on replay.
func (h *FreeformIntentHandler) RetrySafe() bool { return false }

func (h *FreeformIntentHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	var p freeformPayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid freeform payload: %w", err)
	}
	if p.Text == "" {
		return scheduler.Result{}, fmt.Errorf("text is required")
	}

	classification, err := h.classifier.Classify(ctx, att.Item.OwnerID, p.Text)
	if err != nil {
		return scheduler.Result{}, err
	}
	if classification.Kind == workitem.KindFreeformIntent {
		return scheduler.Result{}, fmt.Errorf("%w: no actionable intent in %q",
			intent.ErrClassification, truncate(p.Text, 128))
	}

	spawned, err := h.svc.Submit(ctx, workitem.SubmitInput{
		OwnerID:              att.Item.OwnerID,
		Kind:                 classification.Kind,
		Payload:              classification.Payload,
		Priority:             classification.Priority,
		RequiresConfirmation: classification.RequiresConfirmation,
	})
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("spawn classified item: %w", err)
	}

	return scheduler.Result{
		Summary: fmt.Sprintf("classified as %s, spawned item %s", classification.Kind, spawned.ID),
	}, nil
}
