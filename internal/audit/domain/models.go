// Package domain defines the append-only compliance audit trail.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventType is the closed enumeration of auditable actions.
type EventType string

const (
	EventInvoiceCreated       EventType = "INVOICE_CREATED"
	EventInvoiceUpdated       EventType = "INVOICE_UPDATED"
	EventInvoiceDeleted       EventType = "INVOICE_DELETED"
	EventInvoiceIssued        EventType = "INVOICE_ISSUED"
	EventInvoiceSent          EventType = "INVOICE_SENT"
	EventInvoiceViewed        EventType = "INVOICE_VIEWED"
	EventInvoiceVoided        EventType = "INVOICE_VOIDED"
	EventPaymentRecorded      EventType = "PAYMENT_RECORDED"
	EventRoleChanged          EventType = "ROLE_CHANGED"
	EventSubscriptionChanged  EventType = "SUBSCRIPTION_CHANGED"
	EventDataExported         EventType = "DATA_EXPORTED"
	EventSettingsUpdated      EventType = "SETTINGS_UPDATED"
	EventVerificationAccessed EventType = "VERIFICATION_ACCESSED"
)

var knownEventTypes = map[EventType]struct{}{
	EventInvoiceCreated:       {},
	EventInvoiceUpdated:       {},
	EventInvoiceDeleted:       {},
	EventInvoiceIssued:        {},
	EventInvoiceSent:          {},
	EventInvoiceViewed:        {},
	EventInvoiceVoided:        {},
	EventPaymentRecorded:      {},
	EventRoleChanged:          {},
	EventSubscriptionChanged:  {},
	EventDataExported:         {},
	EventSettingsUpdated:      {},
	EventVerificationAccessed: {},
}

// Valid reports whether the event type belongs to the closed enumeration.
func (e EventType) Valid() bool {
	_, ok := knownEventTypes[e]
	return ok
}

// ComplianceCritical reports whether a failed audit write must abort the
// operation that produced the event.
func (e EventType) ComplianceCritical() bool {
	switch e {
	case EventInvoiceIssued, EventInvoiceVoided, EventPaymentRecorded,
		EventRoleChanged, EventSubscriptionChanged:
		return true
	default:
		return false
	}
}

// AuditLog is one immutable trail entry. Rows are never updated or deleted;
// this table is the system's sole source of truth for what happened and when.
type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	EventType     EventType         `gorm:"type:text;not null;index" json:"event_type"`
	EntityType    string            `gorm:"type:text;not null;index" json:"entity_type"`
	EntityID      string            `gorm:"type:text;not null;index" json:"entity_id"`
	ActorType     string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID       *string           `gorm:"type:text" json:"actor_id,omitempty"`
	PreviousState datatypes.JSON    `gorm:"type:jsonb" json:"previous_state,omitempty"`
	NewState      datatypes.JSON    `gorm:"type:jsonb" json:"new_state,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	IPAddress     *string           `gorm:"type:text" json:"ip_address,omitempty"`
	UserAgent     *string           `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// ActorTypeSystem is recorded when no request actor is present.
const ActorTypeSystem = "system"

// AuditCursor is the keyset position for trail pagination.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListFilter narrows a trail listing.
type ListFilter struct {
	EventType  EventType
	EntityType string
	EntityID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
