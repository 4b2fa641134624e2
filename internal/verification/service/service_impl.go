package service

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	creditnotedomain "github.com/veribill/veribill/internal/creditnote/domain"
	"github.com/veribill/veribill/internal/integrity"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
	"github.com/veribill/veribill/internal/verification/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Audit auditdomain.Recorder
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	audit auditdomain.Recorder
}

func NewService(p Params) domain.Resolver {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("verification.service"),
		audit: p.Audit,
	}
}

// Resolve looks a sealed document up by its verification token, recomputes
// the content hash from the stored fields, and returns a redacted snapshot.
// Malformed and unknown tokens are indistinguishable to the caller. An
// integrity mismatch is reported as a failed verification, never papered
// over with the stored data.
func (s *Service) Resolve(ctx context.Context, token string) (domain.ResolveResult, error) {
	if !domain.ValidTokenFormat(token) {
		return domain.ResolveResult{}, domain.ErrNotVerified
	}

	var inv invoicedomain.Invoice
	if err := s.db.WithContext(ctx).
		Raw("SELECT * FROM invoices WHERE verification_id = ?", token).
		Scan(&inv).Error; err != nil {
		return domain.ResolveResult{}, err
	}
	if inv.ID != 0 {
		return s.resolveInvoice(ctx, inv)
	}

	var note creditnotedomain.CreditNote
	if err := s.db.WithContext(ctx).
		Raw("SELECT * FROM credit_notes WHERE verification_id = ?", token).
		Scan(&note).Error; err != nil {
		return domain.ResolveResult{}, err
	}
	if note.ID != 0 {
		return s.resolveCreditNote(ctx, note)
	}

	return domain.ResolveResult{}, domain.ErrNotVerified
}

func (s *Service) resolveInvoice(ctx context.Context, inv invoicedomain.Invoice) (domain.ResolveResult, error) {
	if inv.IssuedAt == nil || inv.InvoiceHash == nil {
		return domain.ResolveResult{}, domain.ErrNotVerified
	}

	valid := integrity.Verify(integrity.Canonical{
		Kind:      integrity.KindInvoice,
		Number:    inv.InvoiceNumber,
		InvoiceID: inv.ID,
		Amount:    inv.TotalAmount,
		Currency:  inv.Currency,
		IssuedAt:  *inv.IssuedAt,
	}, *inv.InvoiceHash)

	s.logAccess(ctx, "invoice", inv.ID.String(), valid)

	result := domain.ResolveResult{Verified: true, IntegrityValid: valid}
	if !valid {
		s.log.Error("stored invoice fields no longer match sealed hash",
			zap.String("invoice_id", inv.ID.String()),
		)
		return result, nil
	}

	snapshot := &domain.RedactedSnapshot{
		DocumentType:   domain.DocumentInvoice,
		DocumentNumber: inv.InvoiceNumber,
		Amount:         inv.TotalAmount,
		Currency:       inv.Currency,
		IssuedAt:       *inv.IssuedAt,
	}
	if inv.IssuerSnapshot != nil {
		snapshot.IssuerName = inv.IssuerSnapshot.Name
	}
	if inv.RecipientSnapshot != nil {
		snapshot.CounterpartName = inv.RecipientSnapshot.Name
	}
	result.Snapshot = snapshot
	return result, nil
}

func (s *Service) resolveCreditNote(ctx context.Context, note creditnotedomain.CreditNote) (domain.ResolveResult, error) {
	valid := integrity.Verify(integrity.Canonical{
		Kind:      integrity.KindCreditNote,
		Number:    note.CreditNoteNumber,
		InvoiceID: note.InvoiceID,
		Amount:    note.Amount,
		Currency:  note.Currency,
		IssuedAt:  note.IssuedAt,
	}, note.CreditNoteHash)

	s.logAccess(ctx, "credit_note", note.ID.String(), valid)

	result := domain.ResolveResult{Verified: true, IntegrityValid: valid}
	if !valid {
		s.log.Error("stored credit note fields no longer match sealed hash",
			zap.String("credit_note_id", note.ID.String()),
		)
		return result, nil
	}

	snapshot := &domain.RedactedSnapshot{
		DocumentType:   domain.DocumentCreditNote,
		DocumentNumber: note.CreditNoteNumber,
		Amount:         note.Amount,
		Currency:       note.Currency,
		IssuedAt:       note.IssuedAt,
	}

	// The issuer identity lives on the voided invoice's frozen snapshot.
	var inv invoicedomain.Invoice
	if err := s.db.WithContext(ctx).
		Raw("SELECT * FROM invoices WHERE id = ?", note.InvoiceID).
		Scan(&inv).Error; err == nil && inv.IssuerSnapshot != nil {
		snapshot.IssuerName = inv.IssuerSnapshot.Name
		if inv.RecipientSnapshot != nil {
			snapshot.CounterpartName = inv.RecipientSnapshot.Name
		}
	}

	result.Snapshot = snapshot
	return result, nil
}

// logAccess records the public lookup. Best-effort: a slow audit store must
// not take the verification endpoint down with it.
func (s *Service) logAccess(ctx context.Context, entityType, entityID string, integrityValid bool) {
	s.audit.RecordBestEffort(ctx, auditdomain.Entry{
		EventType:  auditdomain.EventVerificationAccessed,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   map[string]any{"integrity_valid": integrityValid},
	})
}
