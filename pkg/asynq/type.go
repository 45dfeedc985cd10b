package asynq

import "time"

const (
	NotifyEventTask = "notify:event"
)

type NotifyEventPayload struct {
	OwnerID    string    `json:"owner_id"`
	WorkItemID string    `json:"work_item_id"`
	Kind       string    `json:"kind"`
	Event      string    `json:"event"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
