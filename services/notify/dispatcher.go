package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	asynqpkg "agentplane/pkg/asynq"
)

// Event describes a work item lifecycle event delivered to the owner.
type Event struct {
	WorkItemID string    `json:"work_item_id"`
	Kind       string    `json:"kind"`
	Type       string    `json:"type"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventCompleted = "item.completed"
	EventFailed    = "item.failed"
)

// Dispatcher delivers owner notifications best-effort: a delivery failure is
// reported to the caller for logging but never affects work item state.
type Dispatcher interface {
	Notify(ctx context.Context, ownerID string, ev Event) error
}

// AsynqDispatcher hands events to the notification queue; a worker delivers
// them out-of-band so the execution path never blocks on the webhook.
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) Notify(ctx context.Context, ownerID string, ev Event) error {
	payload, err := json.Marshal(asynqpkg.NotifyEventPayload{
		OwnerID:    ownerID,
		WorkItemID: ev.WorkItemID,
		Kind:       ev.Kind,
		Event:      ev.Type,
		Message:    ev.Message,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		return err
	}

	task := asynq.NewTask(asynqpkg.NotifyEventTask, payload)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue("low"))
	return err
}

// NopDispatcher drops events. Used when notifications are disabled and in
// tests.
type NopDispatcher struct{}

func (NopDispatcher) Notify(ctx context.Context, ownerID string, ev Event) error {
	zap.L().Debug("notification dropped (dispatcher disabled)",
		zap.String("owner_id", ownerID),
		zap.String("event", ev.Type),
		zap.String("work_item_id", ev.WorkItemID),
	)
	return nil
}
