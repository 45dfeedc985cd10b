package workitem

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Kind selects the handler responsible for executing a work item.
type Kind string

const (
	KindOrder          Kind = "order"
	KindPayment        Kind = "payment"
	KindDataOperation  Kind = "data_operation"
	KindExternalCall   Kind = "external_call"
	KindFileOperation  Kind = "file_operation"
	KindSystemCommand  Kind = "system_command"
	KindNotification   Kind = "notification"
	KindReminder       Kind = "reminder"
	KindFreeformIntent Kind = "freeform_intent"
)

var kinds = map[Kind]struct{}{
	KindOrder:          {},
	KindPayment:        {},
	KindDataOperation:  {},
	KindExternalCall:   {},
	KindFileOperation:  {},
	KindSystemCommand:  {},
	KindNotification:   {},
	KindReminder:       {},
	KindFreeformIntent: {},
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Priority orders due work items within a discovery tick. Stored numerically
// so SQL ordering works, serialized as a string on the API surface.
type Priority int16

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityMedium: "medium",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int16(p))
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status follows the work item state machine: pending is the initial state,
// running is only ever entered through an atomic claim, and completed, failed
// and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type RecurrencePattern string

const (
	RecurDaily   RecurrencePattern = "daily"
	RecurWeekly  RecurrencePattern = "weekly"
	RecurMonthly RecurrencePattern = "monthly"
	RecurYearly  RecurrencePattern = "yearly"
)

func (p RecurrencePattern) Valid() bool {
	switch p {
	case RecurDaily, RecurWeekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

// Recurrence describes how a completed work item re-arms itself.
type Recurrence struct {
	Pattern  RecurrencePattern `json:"pattern"`
	Interval int               `json:"interval"`
	EndDate  *time.Time        `json:"end_date,omitempty"`
}

// WorkItem is a single schedulable, retryable unit of work.
type WorkItem struct {
	ID                   string         `gorm:"column:id;primaryKey;type:char(19)" json:"id"`
	OwnerID              string         `gorm:"column:owner_id;index;not null" json:"owner_id"`
	Kind                 Kind           `gorm:"column:kind;type:varchar(32);index;not null" json:"kind"`
	Payload              datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	Priority             Priority       `gorm:"column:priority;type:smallint;index" json:"priority"`
	Status               Status         `gorm:"column:status;type:varchar(16);index;default:'pending'" json:"status"`
	ScheduledFor         time.Time      `gorm:"column:scheduled_for;index;not null" json:"scheduled_for"`
	RetryCount           int            `gorm:"column:retry_count;default:0" json:"retry_count"`
	MaxRetries           int            `gorm:"column:max_retries;default:3" json:"max_retries"`
	NextRetryAt          *time.Time     `gorm:"column:next_retry_at" json:"next_retry_at,omitempty"`
	RecurrencePattern    *RecurrencePattern `gorm:"column:recurrence_pattern;type:varchar(16)" json:"recurrence_pattern,omitempty"`
	RecurrenceInterval   int            `gorm:"column:recurrence_interval;default:0" json:"recurrence_interval,omitempty"`
	RecurrenceEndDate    *time.Time     `gorm:"column:recurrence_end_date" json:"recurrence_end_date,omitempty"`
	RequiresConfirmation bool           `gorm:"column:requires_confirmation;default:false" json:"requires_confirmation"`
	ConfirmedAt          *time.Time     `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	StartedAt            *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	LastError            string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	Version              int64          `gorm:"column:version;default:0" json:"-"`
	CreatedAt            time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Attempts []AttemptRecord `gorm:"foreignKey:WorkItemID" json:"history,omitempty"`
}

func (WorkItem) TableName() string { return "work_items" }

// Recurrence returns the recurrence rule, if the item has one.
func (w *WorkItem) Recurrence() (Recurrence, bool) {
	if w.RecurrencePattern == nil {
		return Recurrence{}, false
	}
	return Recurrence{
		Pattern:  *w.RecurrencePattern,
		Interval: w.RecurrenceInterval,
		EndDate:  w.RecurrenceEndDate,
	}, true
}

// AttemptRecord is one row of a work item's append-only execution history.
// Rows are never updated or deleted except together with their terminal
// parent by the retention sweep.
type AttemptRecord struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	WorkItemID    string    `gorm:"column:work_item_id;index;not null" json:"-"`
	Attempt       int       `gorm:"column:attempt;not null" json:"attempt"`
	Outcome       Outcome   `gorm:"column:outcome;type:varchar(8);not null" json:"outcome"`
	StartedAt     time.Time `gorm:"column:started_at;not null" json:"started_at"`
	DurationMS    int64     `gorm:"column:duration_ms" json:"duration_ms"`
	ResultSummary string    `gorm:"column:result_summary;type:text" json:"result_summary,omitempty"`
	ErrorMessage  string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (AttemptRecord) TableName() string { return "work_item_attempts" }

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)
