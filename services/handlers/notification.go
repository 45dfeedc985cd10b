package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agentplane/services/notify"
	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type messagePayload struct {
	Message string `json:"message"`
}

// NotificationHandler delivers a one-off message to the item's owner through
// the notification pipeline.
type NotificationHandler struct {
	dispatcher notify.Dispatcher
}

func NewNotificationHandler(dispatcher notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

func (h *NotificationHandler) Kind() workitem.Kind { return workitem.KindNotification }

// RetrySafe is false: a replay re-sends the message.
func (h *NotificationHandler) RetrySafe() bool { return false }

func (h *NotificationHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	return deliverMessage(ctx, h.dispatcher, att, "item.notification")
}

// ReminderHandler is the recurring sibling of NotificationHandler: reminders
// are typically submitted with a recurrence rule and re-arm after each fire.
type ReminderHandler struct {
	dispatcher notify.Dispatcher
}

func NewReminderHandler(dispatcher notify.Dispatcher) *ReminderHandler {
	return &ReminderHandler{dispatcher: dispatcher}
}

func (h *ReminderHandler) Kind() workitem.Kind { return workitem.KindReminder }

func (h *ReminderHandler) RetrySafe() bool { return false }

func (h *ReminderHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	return deliverMessage(ctx, h.dispatcher, att, "item.reminder")
}

func deliverMessage(ctx context.Context, d notify.Dispatcher, att scheduler.Attempt, eventType string) (scheduler.Result, error) {
	var p messagePayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid message payload: %w", err)
	}
	if p.Message == "" {
		return scheduler.Result{}, fmt.Errorf("message is required")
	}

	err := d.Notify(ctx, att.Item.OwnerID, notify.Event{
		WorkItemID: att.Item.ID,
		Kind:       string(att.Item.Kind),
		Type:       eventType,
		Message:    p.Message,
		OccurredAt: time.Now(),
	})
	if err != nil {
		return scheduler.Result{}, fmt.Errorf("deliver message: %w", err)
	}

	return scheduler.Result{Summary: fmt.Sprintf("delivered %q", truncate(p.Message, 128))}, nil
}
