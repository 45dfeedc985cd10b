package workitem

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"agentplane/pkg/db/pagination"
)

// Store is the durable work item collection. All transitions into running go
// through Claim, a single conditional UPDATE acting as a compare-and-set, so
// two scheduler instances can never both claim the same item. Every other
// mutation is guarded by the item version to avoid lost updates.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the engine tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&WorkItem{}, &AttemptRecord{})
}

func (s *Store) Create(ctx context.Context, item *WorkItem) error {
	return s.db.WithContext(ctx).Create(item).Error
}

// Get loads one item including its full attempt history.
func (s *Store) Get(ctx context.Context, id string) (*WorkItem, error) {
	var item WorkItem
	err := s.db.WithContext(ctx).
		Preload("Attempts", func(tx *gorm.DB) *gorm.DB { return tx.Order("id ASC") }).
		First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

type ListFilter struct {
	OwnerID string
	Status  Status
	Kind    Kind
	pagination.Pagination
}

func (s *Store) List(ctx context.Context, f ListFilter) ([]WorkItem, *pagination.PageInfo, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Model(&WorkItem{}).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if f.OwnerID != "" {
		query = query.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Kind != "" {
		query = query.Where("kind = ?", f.Kind)
	}
	if f.Cursor != "" {
		cursor, err := pagination.DecodeCursor(f.Cursor)
		if err != nil {
			return nil, nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, nil, err
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", ts, ts, cursor.ID)
	}

	var items []WorkItem
	if err := query.Find(&items).Error; err != nil {
		return nil, nil, err
	}

	items, page := pagination.BuildCursorPageInfo(items, limit, func(w WorkItem) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: w.CreatedAt.UTC().Format(time.RFC3339Nano),
			ID:        w.ID,
		})
		return c
	})

	return items, page, nil
}

// Due returns claimable items: pending, scheduled at or before now, and not
// waiting on an outside confirmation. Ordered by priority descending then
// scheduled time ascending; this ordering holds within one discovery tick
// only.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]WorkItem, error) {
	var items []WorkItem
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", StatusPending, now).
		Where("requires_confirmation = ? OR confirmed_at IS NOT NULL", false).
		Order("priority DESC, scheduled_for ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// Claim atomically transitions pending -> running. The status check lives in
// the UPDATE's WHERE clause so exactly one of N concurrent claimers wins;
// the losers get ErrClaimConflict. Unless force is set, items are claimable
// only once due. Items gated on confirmation are rejected until confirmed.
func (s *Store) Claim(ctx context.Context, id string, now time.Time, force bool) (*WorkItem, error) {
	query := s.db.WithContext(ctx).Model(&WorkItem{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Where("requires_confirmation = ? OR confirmed_at IS NOT NULL", false)
	if !force {
		query = query.Where("scheduled_for <= ?", now)
	}

	res := query.Updates(map[string]any{
		"status":     StatusRunning,
		"started_at": now,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Disambiguate for the caller: missing, unconfirmed, or lost race.
		var item WorkItem
		err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if item.Status == StatusPending && item.RequiresConfirmation && item.ConfirmedAt == nil {
			return nil, ErrConfirmationRequired
		}
		return nil, ErrClaimConflict
	}

	var item WorkItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Complete finalizes a running item as completed and appends a success record.
func (s *Store) Complete(ctx context.Context, item *WorkItem, rec AttemptRecord) error {
	now := time.Now()
	return s.transition(ctx, item, map[string]any{
		"status":     StatusCompleted,
		"last_error": "",
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}, &rec)
}

// Requeue re-arms a recurring item after a successful run: the schedule moves
// to the next occurrence and the retry budget resets.
func (s *Store) Requeue(ctx context.Context, item *WorkItem, next time.Time, rec AttemptRecord) error {
	now := time.Now()
	return s.transition(ctx, item, map[string]any{
		"status":        StatusPending,
		"scheduled_for": next,
		"retry_count":   0,
		"next_retry_at": nil,
		"last_error":    "",
		"started_at":    nil,
		"version":       gorm.Expr("version + 1"),
		"updated_at":    now,
	}, &rec)
}

// RetryLater requeues a failed item with an incremented retry count and a
// linear-backoff schedule, appending a failure record.
func (s *Store) RetryLater(ctx context.Context, item *WorkItem, nextRetry time.Time, rec AttemptRecord) error {
	now := time.Now()
	return s.transition(ctx, item, map[string]any{
		"status":        StatusPending,
		"retry_count":   item.RetryCount + 1,
		"next_retry_at": nextRetry,
		"scheduled_for": nextRetry,
		"last_error":    rec.ErrorMessage,
		"started_at":    nil,
		"version":       gorm.Expr("version + 1"),
		"updated_at":    now,
	}, &rec)
}

// Fail finalizes a running item whose retries are exhausted, appending the
// terminal failure record.
func (s *Store) Fail(ctx context.Context, item *WorkItem, rec AttemptRecord) error {
	now := time.Now()
	return s.transition(ctx, item, map[string]any{
		"status":     StatusFailed,
		"last_error": rec.ErrorMessage,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}, &rec)
}

// transition applies an optimistic update from running plus an append-only
// history record in one transaction.
func (s *Store) transition(ctx context.Context, item *WorkItem, updates map[string]any, rec *AttemptRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&WorkItem{}).
			Where("id = ? AND status = ? AND version = ?", item.ID, StatusRunning, item.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		if rec != nil {
			rec.WorkItemID = item.ID
			return tx.Create(rec).Error
		}
		return nil
	})
}

// Cancel transitions a pending item to cancelled. Cancelling a running item
// is unsupported and rejected with ErrNotCancellable.
func (s *Store) Cancel(ctx context.Context, id string) (*WorkItem, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&WorkItem{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"status":     StatusCancelled,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var item WorkItem
		err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrNotCancellable
	}

	var item WorkItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// Confirm records the outside confirmation event for a pending item.
func (s *Store) Confirm(ctx context.Context, id string, now time.Time) (*WorkItem, error) {
	res := s.db.WithContext(ctx).Model(&WorkItem{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]any{
			"confirmed_at": now,
			"version":      gorm.Expr("version + 1"),
			"updated_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var item WorkItem
		err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrNotPending
	}

	var item WorkItem
	if err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// StuckRunning returns items claimed before the cutoff that never recorded an
// outcome, typically because the process died or the outcome write failed.
func (s *Store) StuckRunning(ctx context.Context, cutoff time.Time) ([]WorkItem, error) {
	var items []WorkItem
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", StatusRunning, cutoff).
		Find(&items).Error
	return items, err
}

// PurgeTerminal deletes terminal items older than the retention horizon along
// with their history. Pending and running items are never touched.
func (s *Store) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&WorkItem{}).
			Where("status IN ? AND updated_at < ?", []Status{StatusCompleted, StatusFailed, StatusCancelled}, before).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("work_item_id IN ?", ids).Delete(&AttemptRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&WorkItem{})
		purged = res.RowsAffected
		return res.Error
	})
	return purged, err
}

// CountsByStatus aggregates item counts for the stats surface.
func (s *Store) CountsByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&WorkItem{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}
