// Package authorization enforces role-based access inside a business scope.
// Individual owners are implicitly the owner of their own scope; businesses
// grant owner, admin, or auditor roles to members.
package authorization

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veribill/veribill/internal/domainerr"
)

// Objects the policy speaks about.
const (
	ObjectInvoice         = "invoice"
	ObjectPayment         = "payment"
	ObjectCreditNote      = "credit_note"
	ObjectAuditLog        = "audit_log"
	ObjectMembership      = "membership"
	ObjectRetentionPolicy = "retention_policy"
)

// Actions per object.
const (
	ActionInvoiceView   = "invoice.view"
	ActionInvoiceCreate = "invoice.create"
	ActionInvoiceUpdate = "invoice.update"
	ActionInvoiceDelete = "invoice.delete"
	ActionInvoiceIssue  = "invoice.issue"
	ActionInvoiceSend   = "invoice.send"
	ActionInvoiceVoid   = "invoice.void"

	ActionPaymentView   = "payment.view"
	ActionPaymentRecord = "payment.record"

	ActionCreditNoteView = "credit_note.view"

	ActionAuditLogView = "audit_log.view"

	ActionMembershipManage = "membership.manage"

	ActionRetentionPolicyView   = "retention_policy.view"
	ActionRetentionPolicyManage = "retention_policy.manage"
)

// Assignable roles.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
)

// Member links a user to a business with a role.
type Member struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	BusinessID snowflake.ID `gorm:"not null;uniqueIndex:idx_member_scope" json:"business_id"`
	UserID     snowflake.ID `gorm:"not null;uniqueIndex:idx_member_scope" json:"user_id"`
	Role       string       `gorm:"type:text;not null" json:"role"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "business_members" }

type AssignRoleRequest struct {
	BusinessID snowflake.ID
	UserID     snowflake.ID
	Role       string
}

// Service answers capability questions and manages role grants. Actor is
// "system" or "user:<id>"; scope is "user:<id>" or "business:<id>".
type Service interface {
	Authorize(ctx context.Context, actor, scope, object, action string) error
	AssignRole(ctx context.Context, req AssignRoleRequest) (Member, error)
}

var (
	ErrInvalidActor = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_actor")
	ErrInvalidScope = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_scope")
	ErrInvalidRole  = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_role")
	ErrForbidden    = domainerr.Wrap(domainerr.ErrPreconditionFailed, "forbidden")
)
