package domain

import (
	"context"
	"errors"
	"time"

	"github.com/veribill/veribill/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one state-changing action to record. PreviousState and
// NewState are full object captures, not diffs; they are marshalled to JSON
// and frozen at write time.
type Entry struct {
	EventType     EventType
	EntityType    string
	EntityID      string
	PreviousState any
	NewState      any
	Metadata      map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	EventType  string
	EntityType string
	EntityID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Recorder appends entries to the trail. The public contract has no update
// or delete operation.
//
// Record writes through tx so the entry commits atomically with the state
// change it describes; callers pass the transaction owning that change. A nil
// tx records against the base connection.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	RecordBestEffort(ctx context.Context, entry Entry)
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

// Repository abstracts trail persistence.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

var (
	ErrInvalidEventType = errors.New("invalid_event_type")
	ErrInvalidEntity    = errors.New("invalid_entity")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
