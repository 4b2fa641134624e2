package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veribill/veribill/internal/domainerr"
	"github.com/veribill/veribill/internal/ownercontext"
)

// LineItemInput is one invoice line supplied by a caller. Amount is computed
// at the edges; the core verifies consistency but never re-derives it.
type LineItemInput struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   int64   `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"`
	Amount      int64   `json:"amount"`
}

type CreateInvoiceRequest struct {
	Owner      ownercontext.Owner
	ClientID   snowflake.ID
	TemplateID *snowflake.ID

	Currency       string
	Subtotal       int64
	DiscountAmount int64
	TaxAmount      int64
	TotalAmount    int64

	IssueDate *time.Time
	DueDate   *time.Time

	Items []LineItemInput
}

// UpdateInvoiceRequest patches a draft. Nil fields are left unchanged;
// a non-nil Items slice replaces all line items wholesale.
type UpdateInvoiceRequest struct {
	ClientID   *snowflake.ID
	TemplateID *snowflake.ID

	Currency       *string
	Subtotal       *int64
	DiscountAmount *int64
	TaxAmount      *int64
	TotalAmount    *int64

	IssueDate *time.Time
	DueDate   *time.Time

	Items *[]LineItemInput
}

// IssueInvoiceResponse is the sealed identity of a freshly issued invoice.
type IssueInvoiceResponse struct {
	ID             snowflake.ID `json:"id"`
	InvoiceNumber  string       `json:"invoice_number"`
	VerificationID string       `json:"verification_id"`
	IssuedAt       time.Time    `json:"issued_at"`
	InvoiceHash    string       `json:"invoice_hash"`
}

type ListInvoiceRequest struct {
	Status      *InvoiceStatus
	ClientID    *snowflake.ID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
}

// Service owns the draft→issued→…→paid/voided lifecycle.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateInvoiceRequest) (Invoice, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Issue(ctx context.Context, id snowflake.ID) (IssueInvoiceResponse, error)
	MarkSent(ctx context.Context, id snowflake.ID) error
	MarkViewed(ctx context.Context, id snowflake.ID) error
	GetByID(ctx context.Context, id snowflake.ID) (Invoice, error)
	Items(ctx context.Context, id snowflake.ID) ([]InvoiceItem, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
}

var (
	ErrInvoiceNotFound      = domainerr.Wrap(domainerr.ErrNotFound, "invoice_not_found")
	ErrInvoiceImmutable     = domainerr.Wrap(domainerr.ErrInvalidStateTransition, "invoice_immutable")
	ErrAlreadyIssued        = domainerr.Wrap(domainerr.ErrInvalidStateTransition, "invoice_already_issued")
	ErrNotDeletable         = domainerr.Wrap(domainerr.ErrInvalidStateTransition, "invoice_not_deletable")
	ErrInvalidTransition    = domainerr.Wrap(domainerr.ErrInvalidStateTransition, "invalid_transition")
	ErrInvalidOwner         = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_owner")
	ErrInvalidAmounts       = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_amounts")
	ErrInvalidCurrency      = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_currency")
	ErrVerificationRequired = domainerr.Wrap(domainerr.ErrPreconditionFailed, "actor_verification_required")
	ErrIssueConflict        = domainerr.Wrap(domainerr.ErrConcurrencyConflict, "issue_conflict")
)
