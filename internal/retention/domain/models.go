// Package domain contains jurisdiction-aware retention floors. Retention
// here is a minimum, never a schedule: nothing in this package deletes data,
// it only says when deletion becomes legal.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veribill/veribill/internal/domainerr"
)

// RetentionPolicy is a database-backed override of the shipped retention
// floors, keyed by jurisdiction and entity type.
type RetentionPolicy struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Jurisdiction   string       `gorm:"type:text;not null;uniqueIndex:idx_retention_scope" json:"jurisdiction"`
	EntityType     string       `gorm:"type:text;not null;uniqueIndex:idx_retention_scope" json:"entity_type"`
	RetentionYears int          `gorm:"not null" json:"retention_years"`
	LegalBasis     string       `gorm:"type:text" json:"legal_basis"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (RetentionPolicy) TableName() string { return "retention_policies" }

// Resolution is the effective retention floor for one scope and where it
// came from.
type Resolution struct {
	Jurisdiction   string `json:"jurisdiction"`
	EntityType     string `json:"entity_type"`
	RetentionYears int    `json:"retention_years"`
	LegalBasis     string `json:"legal_basis,omitempty"`
	Source         string `json:"source"`
}

// Resolution sources.
const (
	SourceDatabase = "database"
	SourceConfig   = "config"
	SourceDefault  = "default"
)

type SetPolicyRequest struct {
	Jurisdiction   string
	EntityType     string
	RetentionYears int
	LegalBasis     string
}

// Service answers "how long must this record live" questions. Overrides may
// raise a shipped floor but never lower it.
type Service interface {
	Resolve(ctx context.Context, jurisdiction, entityType string) (Resolution, error)
	EarliestDeletion(ctx context.Context, jurisdiction, entityType string, createdAt time.Time) (time.Time, error)
	CheckDeletable(ctx context.Context, jurisdiction, entityType string, createdAt time.Time) error
	SetPolicy(ctx context.Context, req SetPolicyRequest) (RetentionPolicy, error)
	List(ctx context.Context) ([]Resolution, error)
}

var (
	ErrRetentionActive = domainerr.Wrap(domainerr.ErrPreconditionFailed, "retention_period_active")
	ErrBelowFloor      = domainerr.Wrap(domainerr.ErrPreconditionFailed, "retention_below_floor")
	ErrInvalidPolicy   = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_retention_policy")
)
