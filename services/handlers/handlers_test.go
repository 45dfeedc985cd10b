package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"agentplane/services/notify"
	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

func attempt(kind workitem.Kind, payload string) scheduler.Attempt {
	return scheduler.Attempt{
		Item: &workitem.WorkItem{
			ID:      "item-1",
			OwnerID: "owner-1",
			Kind:    kind,
			Payload: datatypes.JSON(payload),
		},
		Number: 1,
	}
}

func TestOrderHandlerCreate(t *testing.T) {
	h := NewOrderHandler()

	res, err := h.Execute(context.Background(), attempt(workitem.KindOrder,
		`{"action":"create","items":[{"sku":"desk","quantity":2},{"sku":"chair","quantity":1}]}`))
	require.NoError(t, err)
	require.Contains(t, res.Summary, "ORD-item-1")
	require.Contains(t, res.Summary, "2 line(s)")
	require.Contains(t, res.Summary, "3 unit(s)")
}

func TestOrderHandlerRejectsBadPayloads(t *testing.T) {
	h := NewOrderHandler()
	ctx := context.Background()

	_, err := h.Execute(ctx, attempt(workitem.KindOrder, `{"action":"create","items":[]}`))
	require.Error(t, err)

	_, err = h.Execute(ctx, attempt(workitem.KindOrder, `{"action":"cancel"}`))
	require.Error(t, err)

	_, err = h.Execute(ctx, attempt(workitem.KindOrder, `{"action":"ship"}`))
	require.Error(t, err)
}

func TestPaymentHandlerIdempotencyReference(t *testing.T) {
	h := NewPaymentHandler()

	res, err := h.Execute(context.Background(), attempt(workitem.KindPayment,
		`{"amount_cents":1250,"currency":"usd","destination":"acct-9"}`))
	require.NoError(t, err)
	require.Contains(t, res.Summary, "PAY-item-1")
	require.Contains(t, res.Summary, "USD")
	require.True(t, h.RetrySafe())
}

func TestPaymentHandlerValidation(t *testing.T) {
	h := NewPaymentHandler()
	ctx := context.Background()

	_, err := h.Execute(ctx, attempt(workitem.KindPayment, `{"amount_cents":0,"currency":"usd","destination":"a"}`))
	require.Error(t, err)

	_, err = h.Execute(ctx, attempt(workitem.KindPayment, `{"amount_cents":10,"currency":"dollars","destination":"a"}`))
	require.Error(t, err)

	_, err = h.Execute(ctx, attempt(workitem.KindPayment, `{"amount_cents":10,"currency":"usd"}`))
	require.Error(t, err)
}

func TestFileHandlerRejectsEscapingPaths(t *testing.T) {
	h := &FileOperationHandler{root: t.TempDir()}
	ctx := context.Background()

	_, err := h.Execute(ctx, attempt(workitem.KindFileOperation,
		`{"op":"write","path":"../../etc/passwd","content":"x"}`))
	require.Error(t, err)

	res, err := h.Execute(ctx, attempt(workitem.KindFileOperation,
		`{"op":"write","path":"notes/today.txt","content":"hello"}`))
	require.NoError(t, err)
	require.Contains(t, res.Summary, "notes/today.txt")

	res, err = h.Execute(ctx, attempt(workitem.KindFileOperation,
		`{"op":"delete","path":"notes/today.txt"}`))
	require.NoError(t, err)
	require.Contains(t, res.Summary, "deleted")
}

func TestSystemHandlerAllowlist(t *testing.T) {
	h := NewSystemCommandHandler()
	ctx := context.Background()

	_, err := h.Execute(ctx, attempt(workitem.KindSystemCommand, `{"command":"rm","args":["-rf","/"]}`))
	require.Error(t, err)

	res, err := h.Execute(ctx, attempt(workitem.KindSystemCommand, `{"command":"echo","args":["ok"]}`))
	require.NoError(t, err)
	require.Contains(t, res.Summary, "ok")
}

type captureDispatcher struct {
	events []notify.Event
}

func (d *captureDispatcher) Notify(ctx context.Context, ownerID string, ev notify.Event) error {
	d.events = append(d.events, ev)
	return nil
}

func TestNotificationHandlerDelivers(t *testing.T) {
	dispatcher := &captureDispatcher{}
	h := NewNotificationHandler(dispatcher)

	res, err := h.Execute(context.Background(), attempt(workitem.KindNotification,
		`{"message":"deploy finished"}`))
	require.NoError(t, err)
	require.Contains(t, res.Summary, "deploy finished")

	require.Len(t, dispatcher.events, 1)
	require.Equal(t, "item.notification", dispatcher.events[0].Type)
	require.Equal(t, "deploy finished", dispatcher.events[0].Message)
}

func TestReminderHandlerRequiresMessage(t *testing.T) {
	h := NewReminderHandler(&captureDispatcher{})

	_, err := h.Execute(context.Background(), attempt(workitem.KindReminder, `{}`))
	require.Error(t, err)
}
