package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veribill/veribill/internal/domainerr"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
)

type RecordPaymentRequest struct {
	InvoiceID snowflake.ID
	Amount    int64
	Currency  string
	Method    string
	Reference string

	// ReceivedAt is when the money actually arrived; defaults to now.
	ReceivedAt *time.Time
}

type RecordPaymentResponse struct {
	Payment       Payment                     `json:"payment"`
	InvoiceStatus invoicedomain.InvoiceStatus `json:"invoice_status"`
	AmountPaid    int64                       `json:"amount_paid"`
	Balance       int64                       `json:"balance"`
}

// Service applies payments to invoices. Accumulation is atomic: two
// concurrent payments both land, neither overwrites the other, and the sum
// of payment rows always equals the invoice's amount_paid.
type Service interface {
	Record(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResponse, error)
	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]Payment, error)
}

var (
	ErrInvalidAmount          = domainerr.Wrap(domainerr.ErrPreconditionFailed, "invalid_payment_amount")
	ErrCurrencyMismatch       = domainerr.Wrap(domainerr.ErrPreconditionFailed, "payment_currency_mismatch")
	ErrPaymentNotAllowed      = domainerr.Wrap(domainerr.ErrInvalidStateTransition, "payment_not_allowed")
	ErrOverpayment            = domainerr.Wrap(domainerr.ErrPreconditionFailed, "overpayment_rejected")
	ErrPaymentConflict        = domainerr.Wrap(domainerr.ErrConcurrencyConflict, "payment_conflict")
	ErrReconciliationMismatch = domainerr.Wrap(domainerr.ErrIntegrityMismatch, "payment_reconciliation_mismatch")
)
