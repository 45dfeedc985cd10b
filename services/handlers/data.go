package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"agentplane/services/scheduler"
	"agentplane/services/workitem"
)

type dataPayload struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value"`
	By    int64  `json:"by"`
}

// DataOperationHandler applies small record mutations to the shared key-value
// store. Keys are namespaced per owner so items cannot touch another owner's
// records.
type DataOperationHandler struct {
	rdb *redis.Client
}

func NewDataOperationHandler(rdb *redis.Client) *DataOperationHandler {
	return &DataOperationHandler{rdb: rdb}
}

func (h *DataOperationHandler) Kind() workitem.Kind { return workitem.KindDataOperation }

// RetrySafe is false because increment is not idempotent: a crash after the
// INCRBY but before the outcome commit double-counts on replay.
func (h *DataOperationHandler) RetrySafe() bool { return false }

func (h *DataOperationHandler) Execute(ctx context.Context, att scheduler.Attempt) (scheduler.Result, error) {
	var p dataPayload
	if err := json.Unmarshal(att.Item.Payload, &p); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid data payload: %w", err)
	}
	if p.Key == "" {
		return scheduler.Result{}, fmt.Errorf("key is required")
	}

	key := fmt.Sprintf("agentplane:data:%s:%s", att.Item.OwnerID, p.Key)

	switch p.Op {
	case "set":
		if err := h.rdb.Set(ctx, key, p.Value, 0).Err(); err != nil {
			return scheduler.Result{}, fmt.Errorf("set %s: %w", p.Key, err)
		}
		return scheduler.Result{Summary: fmt.Sprintf("set %s", p.Key)}, nil
	case "delete":
		deleted, err := h.rdb.Del(ctx, key).Result()
		if err != nil {
			return scheduler.Result{}, fmt.Errorf("delete %s: %w", p.Key, err)
		}
		return scheduler.Result{Summary: fmt.Sprintf("deleted %s (%d removed)", p.Key, deleted)}, nil
	case "increment":
		by := p.By
		if by == 0 {
			by = 1
		}
		value, err := h.rdb.IncrBy(ctx, key, by).Result()
		if err != nil {
			return scheduler.Result{}, fmt.Errorf("increment %s: %w", p.Key, err)
		}
		return scheduler.Result{Summary: fmt.Sprintf("incremented %s to %d", p.Key, value)}, nil
	default:
		return scheduler.Result{}, fmt.Errorf("unsupported data op %q", p.Op)
	}
}
