package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/veribill/veribill/internal/domainerr"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
)

type VoidInvoiceRequest struct {
	InvoiceID snowflake.ID
	Reason    string
}

type VoidInvoiceResponse struct {
	Invoice    invoicedomain.Invoice `json:"invoice"`
	CreditNote CreditNote            `json:"credit_note"`
}

// Service voids issued invoices. Voiding is terminal and one-way: the
// invoice keeps its number, hash, and history, gains void metadata, and a
// full-amount credit note is minted in the same transaction.
type Service interface {
	Void(ctx context.Context, req VoidInvoiceRequest) (VoidInvoiceResponse, error)
	GetByInvoice(ctx context.Context, invoiceID snowflake.ID) (CreditNote, error)
}

// MinReasonLength is the shortest void reason accepted, counted after
// trimming surrounding whitespace.
const MinReasonLength = 10

var (
	ErrReasonRequired     = domainerr.Wrap(domainerr.ErrPreconditionFailed, "void_reason_required")
	ErrReasonTooShort     = domainerr.Wrap(domainerr.ErrPreconditionFailed, "void_reason_too_short")
	ErrNotVoidable        = domainerr.Wrap(domainerr.ErrInvalidStateTransition, "invoice_not_voidable")
	ErrAlreadyVoided      = domainerr.Wrap(domainerr.ErrInvalidStateTransition, "invoice_already_voided")
	ErrVoidConflict       = domainerr.Wrap(domainerr.ErrConcurrencyConflict, "void_conflict")
	ErrCreditNoteNotFound = domainerr.Wrap(domainerr.ErrNotFound, "credit_note_not_found")
)
