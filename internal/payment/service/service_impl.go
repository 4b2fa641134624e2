package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veribill/veribill/internal/actorcontext"
	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/internal/clock"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
	"github.com/veribill/veribill/internal/notify"
	"github.com/veribill/veribill/internal/ownercontext"
	"github.com/veribill/veribill/internal/payment/domain"
	"github.com/veribill/veribill/pkg/db"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Audit    auditdomain.Recorder
	Notifier notify.Dispatcher
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	audit    auditdomain.Recorder
	notifier notify.Dispatcher
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		audit:    p.Audit,
		notifier: p.Notifier,
	}
}

// Record applies one payment. The invoice row is locked for the duration,
// the accumulation is a relative UPDATE guarded by a compare-and-set on the
// previous amount_paid, and before commit the payment rows are summed and
// checked against the new amount_paid. A mismatch rolls everything back.
func (s *Service) Record(ctx context.Context, req domain.RecordPaymentRequest) (domain.RecordPaymentResponse, error) {
	if req.Amount <= 0 {
		return domain.RecordPaymentResponse{}, domain.ErrInvalidAmount
	}

	var (
		resp      domain.RecordPaymentResponse
		settled   bool
		invNumber string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadInvoiceForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if !inv.Status.Payable() {
			return domain.ErrPaymentNotAllowed
		}
		if req.Currency != "" && !strings.EqualFold(req.Currency, inv.Currency) {
			return domain.ErrCurrencyMismatch
		}
		if inv.AmountPaid+req.Amount > inv.TotalAmount {
			return domain.ErrOverpayment
		}

		now := s.clock.Now()
		newPaid := inv.AmountPaid + req.Amount
		newStatus := inv.Status
		if newPaid == inv.TotalAmount {
			newStatus = invoicedomain.InvoiceStatusPaid
		}

		res := tx.Exec(`UPDATE invoices
			SET amount_paid = amount_paid + ?, status = ?, updated_at = ?
			WHERE id = ? AND amount_paid = ? AND status = ?`,
			req.Amount, newStatus, now, inv.ID, inv.AmountPaid, inv.Status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrPaymentConflict
		}

		receivedAt := now
		if req.ReceivedAt != nil {
			receivedAt = req.ReceivedAt.UTC()
		}
		method := strings.TrimSpace(req.Method)
		if method == "" {
			method = "other"
		}
		_, actorID := actorcontext.ActorFromContext(ctx)
		pmt := domain.Payment{
			ID:         s.genID.Generate(),
			InvoiceID:  inv.ID,
			Amount:     req.Amount,
			Currency:   inv.Currency,
			Method:     method,
			Reference:  strings.TrimSpace(req.Reference),
			RecordedBy: actorID,
			ReceivedAt: receivedAt,
			CreatedAt:  now,
		}
		if err := tx.Create(&pmt).Error; err != nil {
			return err
		}

		var total int64
		if err := tx.Raw("SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = ?", inv.ID).Scan(&total).Error; err != nil {
			return err
		}
		if total != newPaid {
			s.log.Error("payment ledger out of sync with invoice",
				zap.String("invoice_id", inv.ID.String()),
				zap.Int64("payments_sum", total),
				zap.Int64("amount_paid", newPaid),
			)
			return domain.ErrReconciliationMismatch
		}

		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			EventType:     auditdomain.EventPaymentRecorded,
			EntityType:    "invoice",
			EntityID:      inv.ID.String(),
			PreviousState: map[string]any{"status": inv.Status, "amount_paid": inv.AmountPaid},
			NewState:      map[string]any{"status": newStatus, "amount_paid": newPaid},
			Metadata: map[string]any{
				"payment_id": pmt.ID.String(),
				"amount":     req.Amount,
				"method":     method,
			},
		}); err != nil {
			return err
		}

		settled = newStatus == invoicedomain.InvoiceStatusPaid
		invNumber = inv.InvoiceNumber
		resp = domain.RecordPaymentResponse{
			Payment:       pmt,
			InvoiceStatus: newStatus,
			AmountPaid:    newPaid,
			Balance:       inv.TotalAmount - newPaid,
		}
		return nil
	})
	if err != nil {
		return domain.RecordPaymentResponse{}, err
	}

	if settled {
		s.notifier.Dispatch(ctx, notify.Event{
			Type:     "invoice.paid",
			EntityID: req.InvoiceID.String(),
			Metadata: map[string]any{"invoice_number": invNumber},
		})
	}
	return resp, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var inv invoicedomain.Invoice
	if err := s.db.WithContext(ctx).Raw("SELECT * FROM invoices WHERE id = ?", invoiceID).Scan(&inv).Error; err != nil {
		return nil, err
	}
	if inv.ID == 0 || !visibleTo(ctx, inv) {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	var payments []domain.Payment
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM payments WHERE invoice_id = ? ORDER BY created_at ASC, id ASC", invoiceID).
		Scan(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) loadInvoiceForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var inv invoicedomain.Invoice
	query := fmt.Sprintf("SELECT * FROM invoices WHERE id = ?%s", db.LockClause(tx))
	if err := tx.Raw(query, id).Scan(&inv).Error; err != nil {
		return nil, err
	}
	if inv.ID == 0 || !visibleTo(ctx, inv) {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return &inv, nil
}

func visibleTo(ctx context.Context, inv invoicedomain.Invoice) bool {
	owner, ok := ownercontext.OwnerFromContext(ctx)
	if !ok {
		return true
	}
	if owner.UserID != nil {
		return inv.OwnerUserID != nil && *inv.OwnerUserID == *owner.UserID
	}
	return inv.OwnerBusinessID != nil && *inv.OwnerBusinessID == *owner.BusinessID
}
