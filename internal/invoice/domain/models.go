// Package domain contains the invoice lifecycle models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// IssuerSnapshot is the issuing party's profile frozen at issuance.
// Captured exactly once; never updated even if the live record changes.
type IssuerSnapshot struct {
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	Address            string    `json:"address,omitempty"`
	TaxID              string    `json:"tax_id,omitempty"`
	RegistrationNumber string    `json:"registration_number,omitempty"`
	Jurisdiction       string    `json:"jurisdiction"`
	CapturedAt         time.Time `json:"captured_at"`
}

// RecipientSnapshot is the client's record frozen at issuance.
type RecipientSnapshot struct {
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Address    string    `json:"address,omitempty"`
	TaxID      string    `json:"tax_id,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// TemplateSnapshot freezes the rendering template's capabilities at issuance.
type TemplateSnapshot struct {
	Name                   string    `json:"name"`
	RequiresWatermark      bool      `json:"requires_watermark"`
	SupportsCustomBranding bool      `json:"supports_custom_branding"`
	CapturedAt             time.Time `json:"captured_at"`
}

// Invoice is the contended row of the system. Exactly one of OwnerUserID or
// OwnerBusinessID is set. After issuance only amount_paid, status, and the
// void metadata may change; rows are never hard-deleted once issued.
type Invoice struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OwnerUserID     *snowflake.ID `gorm:"index" json:"owner_user_id,omitempty"`
	OwnerBusinessID *snowflake.ID `gorm:"index" json:"owner_business_id,omitempty"`
	ClientID        snowflake.ID  `gorm:"not null;index" json:"client_id"`
	TemplateID      *snowflake.ID `gorm:"index" json:"template_id,omitempty"`

	InvoiceNumber string        `gorm:"type:text;not null" json:"invoice_number"`
	Status        InvoiceStatus `gorm:"type:text;not null;default:'draft';index" json:"status"`

	Subtotal       int64  `gorm:"not null;default:0" json:"subtotal"`
	DiscountAmount int64  `gorm:"not null;default:0" json:"discount_amount"`
	TaxAmount      int64  `gorm:"not null;default:0" json:"tax_amount"`
	TotalAmount    int64  `gorm:"not null;default:0" json:"total_amount"`
	AmountPaid     int64  `gorm:"not null;default:0" json:"amount_paid"`
	Currency       string `gorm:"type:text;not null" json:"currency"`

	IssueDate *time.Time `gorm:"" json:"issue_date,omitempty"`
	DueDate   *time.Time `gorm:"" json:"due_date,omitempty"`
	IssuedAt  *time.Time `gorm:"" json:"issued_at,omitempty"`
	VoidedAt  *time.Time `gorm:"" json:"voided_at,omitempty"`

	VoidedBy   *string `gorm:"type:text" json:"voided_by,omitempty"`
	VoidReason *string `gorm:"type:text" json:"void_reason,omitempty"`

	IssuerSnapshot    *IssuerSnapshot    `gorm:"type:jsonb;serializer:json" json:"issuer_snapshot,omitempty"`
	RecipientSnapshot *RecipientSnapshot `gorm:"type:jsonb;serializer:json" json:"recipient_snapshot,omitempty"`
	TemplateSnapshot  *TemplateSnapshot  `gorm:"type:jsonb;serializer:json" json:"template_snapshot,omitempty"`

	InvoiceHash    *string `gorm:"type:text" json:"invoice_hash,omitempty"`
	VerificationID *string `gorm:"type:text;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// OwnedByUser reports whether the invoice belongs to an individual user.
func (i Invoice) OwnedByUser() bool {
	return i.OwnerUserID != nil && *i.OwnerUserID != 0
}

// OwnedByBusiness reports whether the invoice belongs to a business.
func (i Invoice) OwnedByBusiness() bool {
	return i.OwnerBusinessID != nil && *i.OwnerBusinessID != 0
}

// DisplayStatus maps the stored status to what dashboards show.
func (i Invoice) DisplayStatus(hasCreditNote bool) InvoiceStatus {
	if i.Status == InvoiceStatusVoided && hasCreditNote {
		return InvoiceStatusCredited
	}
	return i.Status
}

// Balance is the remaining amount owed.
func (i Invoice) Balance() int64 {
	return i.TotalAmount - i.AmountPaid
}

// InvoiceItem is one line on an invoice. Lines are replaced wholesale on
// draft edits and frozen implicitly once the parent is issued.
type InvoiceItem struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Quantity    float64      `gorm:"not null" json:"quantity"`
	UnitPrice   int64        `gorm:"not null" json:"unit_price"`
	TaxRate     float64      `gorm:"not null;default:0" json:"tax_rate"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Position    int          `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }
