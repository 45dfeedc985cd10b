package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	asynqpkg "agentplane/pkg/asynq"
	"agentplane/pkg/config"
)

// Worker drains the notification queue and delivers events to the configured
// webhook. Delivery is best-effort: failures are logged and the task is
// acknowledged so a broken webhook cannot back up the queue.
type Worker struct {
	client *resty.Client
	url    string
}

func NewWorker(cfg *config.Config) *Worker {
	return &Worker{
		client: resty.New().SetTimeout(10 * time.Second),
		url:    cfg.Notify.WebhookURL,
	}
}

func (w *Worker) HandleNotifyEvent(ctx context.Context, t *asynq.Task) error {
	var payload asynqpkg.NotifyEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid notify payload", zap.Error(err))
		return nil
	}

	if w.url == "" {
		zap.L().Debug("no notification webhook configured, dropping event",
			zap.String("owner_id", payload.OwnerID),
			zap.String("event", payload.Event),
		)
		return nil
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		zap.L().Warn("notification delivery failed",
			zap.String("owner_id", payload.OwnerID),
			zap.String("work_item_id", payload.WorkItemID),
			zap.Error(err),
		)
		return nil
	}
	if resp.IsError() {
		zap.L().Warn("notification webhook rejected event",
			zap.String("owner_id", payload.OwnerID),
			zap.Int("status", resp.StatusCode()),
		)
	}

	return nil
}
