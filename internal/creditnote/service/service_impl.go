package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veribill/veribill/internal/actorcontext"
	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/internal/clock"
	"github.com/veribill/veribill/internal/creditnote/domain"
	"github.com/veribill/veribill/internal/integrity"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
	"github.com/veribill/veribill/internal/notify"
	"github.com/veribill/veribill/internal/ownercontext"
	verificationdomain "github.com/veribill/veribill/internal/verification/domain"
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
		log:      p.Log.Named("creditnote.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		audit:    p.Audit,
		notifier: p.Notifier,
	}
}

// Void flips an issued invoice to voided and mints its credit note in one
// transaction. The invoice row stays: number, hash, and audit history are
// compliance records. Settled invoices cannot be voided; their correction
// path is a standalone credit note workflow outside this service.
func (s *Service) Void(ctx context.Context, req domain.VoidInvoiceRequest) (domain.VoidInvoiceResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.VoidInvoiceResponse{}, domain.ErrReasonRequired
	}
	if len(reason) < domain.MinReasonLength {
		return domain.VoidInvoiceResponse{}, domain.ErrReasonTooShort
	}

	var resp domain.VoidInvoiceResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadInvoiceForUpdate(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == invoicedomain.InvoiceStatusVoided {
			return domain.ErrAlreadyVoided
		}
		if !inv.Status.Voidable() {
			return domain.ErrNotVoidable
		}

		// issued_at feeds the sealed hash; keep it at the microsecond
		// precision the column stores.
		now := s.clock.Now().Truncate(time.Microsecond)
		number := creditNoteNumber(*inv)
		token, err := verificationdomain.NewToken()
		if err != nil {
			return err
		}
		hash := integrity.ComputeHash(integrity.Canonical{
			Kind:      integrity.KindCreditNote,
			Number:    number,
			InvoiceID: inv.ID,
			Amount:    inv.TotalAmount,
			Currency:  inv.Currency,
			IssuedAt:  now,
		})

		_, actorID := actorcontext.ActorFromContext(ctx)
		voidedBy := actorID
		if voidedBy == "" {
			voidedBy = "system"
		}

		res := tx.Exec(`UPDATE invoices
			SET status = ?, voided_at = ?, voided_by = ?, void_reason = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			invoicedomain.InvoiceStatusVoided, now, voidedBy, reason, now, inv.ID, inv.Status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrVoidConflict
		}

		note := domain.CreditNote{
			ID:               s.genID.Generate(),
			InvoiceID:        inv.ID,
			CreditNoteNumber: number,
			Amount:           inv.TotalAmount,
			Currency:         inv.Currency,
			Reason:           reason,
			CreditNoteHash:   hash,
			VerificationID:   &token,
			IssuedAt:         now,
			CreatedAt:        now,
		}
		if err := tx.Create(&note).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyVoided
			}
			return err
		}

		previous := *inv
		inv.Status = invoicedomain.InvoiceStatusVoided
		inv.VoidedAt = &now
		inv.VoidedBy = &voidedBy
		inv.VoidReason = &reason
		inv.UpdatedAt = now

		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			EventType:     auditdomain.EventInvoiceVoided,
			EntityType:    "invoice",
			EntityID:      inv.ID.String(),
			PreviousState: previous,
			NewState:      *inv,
			Metadata: map[string]any{
				"credit_note_id":     note.ID.String(),
				"credit_note_number": note.CreditNoteNumber,
				"reason":             reason,
			},
		}); err != nil {
			return err
		}

		resp = domain.VoidInvoiceResponse{Invoice: *inv, CreditNote: note}
		return nil
	})
	if err != nil {
		return domain.VoidInvoiceResponse{}, err
	}

	s.notifier.Dispatch(ctx, notify.Event{
		Type:     "invoice.voided",
		EntityID: resp.Invoice.ID.String(),
		Metadata: map[string]any{"credit_note_number": resp.CreditNote.CreditNoteNumber},
	})
	return resp, nil
}

func (s *Service) GetByInvoice(ctx context.Context, invoiceID snowflake.ID) (domain.CreditNote, error) {
	var inv invoicedomain.Invoice
	if err := s.db.WithContext(ctx).Raw("SELECT * FROM invoices WHERE id = ?", invoiceID).Scan(&inv).Error; err != nil {
		return domain.CreditNote{}, err
	}
	if inv.ID == 0 || !visibleTo(ctx, inv) {
		return domain.CreditNote{}, invoicedomain.ErrInvoiceNotFound
	}

	var note domain.CreditNote
	if err := s.db.WithContext(ctx).Raw("SELECT * FROM credit_notes WHERE invoice_id = ?", invoiceID).Scan(&note).Error; err != nil {
		return domain.CreditNote{}, err
	}
	if note.ID == 0 {
		return domain.CreditNote{}, domain.ErrCreditNoteNotFound
	}
	return note, nil
}

// creditNoteNumber derives the note's number from the invoice it reverses.
// The pairing is readable from the number itself; uniqueness follows from
// the one-note-per-invoice constraint.
func creditNoteNumber(inv invoicedomain.Invoice) string {
	return "CN-" + inv.InvoiceNumber
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
