package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veribill/veribill/internal/actorcontext"
	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/internal/clock"
	directorydomain "github.com/veribill/veribill/internal/directory/domain"
	"github.com/veribill/veribill/internal/integrity"
	"github.com/veribill/veribill/internal/invoice/domain"
	"github.com/veribill/veribill/internal/notify"
	"github.com/veribill/veribill/internal/ownercontext"
	verificationdomain "github.com/veribill/veribill/internal/verification/domain"
	"github.com/veribill/veribill/pkg/db"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Directory directorydomain.Directory
	Audit     auditdomain.Recorder
	Notifier  notify.Dispatcher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	directory directorydomain.Directory
	audit     auditdomain.Recorder
	notifier  notify.Dispatcher
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		directory: p.Directory,
		audit:     p.Audit,
		notifier:  p.Notifier,
	}
}

// Create opens a new draft. The invoice number is claimed here, under the
// owner's row lock, so two concurrent drafts for the same owner never share
// one. A lost race against the unique index is retried once with a fresh
// number.
func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	if !req.Owner.Valid() {
		return domain.Invoice{}, domain.ErrInvalidOwner
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if !currencyPattern.MatchString(currency) {
		return domain.Invoice{}, domain.ErrInvalidCurrency
	}

	if err := validateAmounts(req.Subtotal, req.DiscountAmount, req.TaxAmount, req.TotalAmount, req.Items); err != nil {
		return domain.Invoice{}, err
	}

	var created domain.Invoice
	for attempt := 0; ; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.nextInvoiceNumber(ctx, tx, req.Owner)
			if err != nil {
				return err
			}

			now := s.clock.Now()
			inv := domain.Invoice{
				ID:              s.genID.Generate(),
				OwnerUserID:     req.Owner.UserID,
				OwnerBusinessID: req.Owner.BusinessID,
				ClientID:        req.ClientID,
				TemplateID:      req.TemplateID,
				InvoiceNumber:   number,
				Status:          domain.InvoiceStatusDraft,
				Subtotal:        req.Subtotal,
				DiscountAmount:  req.DiscountAmount,
				TaxAmount:       req.TaxAmount,
				TotalAmount:     req.TotalAmount,
				Currency:        currency,
				IssueDate:       req.IssueDate,
				DueDate:         req.DueDate,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tx.Create(&inv).Error; err != nil {
				return err
			}

			if err := s.replaceItems(tx, inv.ID, req.Items); err != nil {
				return err
			}

			if err := s.audit.Record(ctx, tx, auditdomain.Entry{
				EventType:  auditdomain.EventInvoiceCreated,
				EntityType: "invoice",
				EntityID:   inv.ID.String(),
				NewState:   inv,
				Metadata:   map[string]any{"invoice_number": inv.InvoiceNumber},
			}); err != nil {
				return err
			}

			created = inv
			return nil
		})
		if err == nil {
			return created, nil
		}
		if db.IsDuplicateKeyErr(err) && attempt == 0 {
			s.log.Warn("invoice number collision, retrying", zap.Error(err))
			continue
		}
		return domain.Invoice{}, err
	}
}

// Update patches a draft. Issued invoices are frozen; any attempt to touch
// one fails before a single field changes.
func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateInvoiceRequest) (domain.Invoice, error) {
	var updated domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !inv.Status.Mutable() {
			return domain.ErrInvoiceImmutable
		}

		previous := *inv

		if req.ClientID != nil {
			inv.ClientID = *req.ClientID
		}
		if req.TemplateID != nil {
			inv.TemplateID = req.TemplateID
		}
		if req.Currency != nil {
			currency := strings.ToUpper(strings.TrimSpace(*req.Currency))
			if !currencyPattern.MatchString(currency) {
				return domain.ErrInvalidCurrency
			}
			inv.Currency = currency
		}
		if req.Subtotal != nil {
			inv.Subtotal = *req.Subtotal
		}
		if req.DiscountAmount != nil {
			inv.DiscountAmount = *req.DiscountAmount
		}
		if req.TaxAmount != nil {
			inv.TaxAmount = *req.TaxAmount
		}
		if req.TotalAmount != nil {
			inv.TotalAmount = *req.TotalAmount
		}
		if req.IssueDate != nil {
			inv.IssueDate = req.IssueDate
		}
		if req.DueDate != nil {
			inv.DueDate = req.DueDate
		}

		var items []domain.LineItemInput
		if req.Items != nil {
			items = *req.Items
		}
		if err := validateAmounts(inv.Subtotal, inv.DiscountAmount, inv.TaxAmount, inv.TotalAmount, items); err != nil {
			return err
		}

		if req.Items != nil {
			if err := tx.Exec("DELETE FROM invoice_items WHERE invoice_id = ?", inv.ID).Error; err != nil {
				return err
			}
			if err := s.replaceItems(tx, inv.ID, items); err != nil {
				return err
			}
		}

		inv.UpdatedAt = s.clock.Now()
		if err := tx.Save(inv).Error; err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			EventType:     auditdomain.EventInvoiceUpdated,
			EntityType:    "invoice",
			EntityID:      inv.ID.String(),
			PreviousState: previous,
			NewState:      *inv,
		}); err != nil {
			return err
		}

		updated = *inv
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return updated, nil
}

// Delete removes a draft and its lines. Anything past draft is a compliance
// record and can only be voided, never deleted.
func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !inv.Status.Mutable() {
			return domain.ErrNotDeletable
		}

		if err := tx.Exec("DELETE FROM invoice_items WHERE invoice_id = ?", inv.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM invoices WHERE id = ?", inv.ID).Error; err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			EventType:     auditdomain.EventInvoiceDeleted,
			EntityType:    "invoice",
			EntityID:      inv.ID.String(),
			PreviousState: *inv,
			Metadata:      map[string]any{"invoice_number": inv.InvoiceNumber},
		})
	})
}

// Issue seals a draft: the issuer, recipient, and template records are
// frozen into snapshots, the content hash is computed over the sealed
// fields, and an unguessable verification token is minted. Everything
// happens in one transaction with the status flip, and the flip itself is a
// compare-and-set on status so a concurrent issuer loses cleanly.
func (s *Service) Issue(ctx context.Context, id snowflake.ID) (domain.IssueInvoiceResponse, error) {
	if err := s.requireVerifiedActor(ctx); err != nil {
		return domain.IssueInvoiceResponse{}, err
	}

	var resp domain.IssueInvoiceResponse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if inv.Status != domain.InvoiceStatusDraft {
			if inv.Status == domain.InvoiceStatusVoided {
				return domain.ErrInvalidTransition
			}
			return domain.ErrAlreadyIssued
		}

		// issued_at is stored at microsecond precision and is covered by
		// the sealed hash, so drop sub-microsecond digits up front.
		now := s.clock.Now().Truncate(time.Microsecond)

		issuerSnap, err := s.issuerSnapshot(ctx, inv, now)
		if err != nil {
			return err
		}

		client, err := s.directory.Client(ctx, inv.ClientID)
		if err != nil {
			return err
		}
		recipientSnap := &domain.RecipientSnapshot{
			Name:       client.Name,
			Email:      client.Email,
			Address:    client.Address,
			TaxID:      client.TaxID,
			CapturedAt: now,
		}

		var templateSnap *domain.TemplateSnapshot
		if inv.TemplateID != nil {
			tmpl, err := s.directory.Template(ctx, *inv.TemplateID)
			if err != nil {
				return err
			}
			templateSnap = &domain.TemplateSnapshot{
				Name:                   tmpl.Name,
				RequiresWatermark:      tmpl.RequiresWatermark,
				SupportsCustomBranding: tmpl.SupportsCustomBranding,
				CapturedAt:             now,
			}
		}

		token, err := verificationdomain.NewToken()
		if err != nil {
			return err
		}

		hash := integrity.ComputeHash(integrity.Canonical{
			Kind:      integrity.KindInvoice,
			Number:    inv.InvoiceNumber,
			InvoiceID: inv.ID,
			Amount:    inv.TotalAmount,
			Currency:  inv.Currency,
			IssuedAt:  now,
		})

		sealed := domain.Invoice{
			Status:            domain.InvoiceStatusIssued,
			IssuedAt:          &now,
			IssuerSnapshot:    issuerSnap,
			RecipientSnapshot: recipientSnap,
			TemplateSnapshot:  templateSnap,
			InvoiceHash:       &hash,
			VerificationID:    &token,
			UpdatedAt:         now,
		}
		if inv.IssueDate == nil {
			sealed.IssueDate = &now
		}

		res := tx.Model(&domain.Invoice{}).
			Where("id = ? AND status = ?", inv.ID, domain.InvoiceStatusDraft).
			Updates(sealed)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var current domain.Invoice
			if err := tx.Raw("SELECT id, status FROM invoices WHERE id = ?", inv.ID).Scan(&current).Error; err != nil {
				return err
			}
			if current.Status != domain.InvoiceStatusDraft {
				return domain.ErrAlreadyIssued
			}
			return domain.ErrIssueConflict
		}

		previous := *inv
		inv.Status = sealed.Status
		inv.IssuedAt = sealed.IssuedAt
		inv.IssuerSnapshot = sealed.IssuerSnapshot
		inv.RecipientSnapshot = sealed.RecipientSnapshot
		inv.TemplateSnapshot = sealed.TemplateSnapshot
		inv.InvoiceHash = sealed.InvoiceHash
		inv.VerificationID = sealed.VerificationID
		inv.UpdatedAt = now
		if sealed.IssueDate != nil {
			inv.IssueDate = sealed.IssueDate
		}

		if err := s.audit.Record(ctx, tx, auditdomain.Entry{
			EventType:     auditdomain.EventInvoiceIssued,
			EntityType:    "invoice",
			EntityID:      inv.ID.String(),
			PreviousState: previous,
			NewState:      *inv,
			Metadata: map[string]any{
				"invoice_number": inv.InvoiceNumber,
				"invoice_hash":   hash,
			},
		}); err != nil {
			return err
		}

		resp = domain.IssueInvoiceResponse{
			ID:             inv.ID,
			InvoiceNumber:  inv.InvoiceNumber,
			VerificationID: token,
			IssuedAt:       now,
			InvoiceHash:    hash,
		}
		return nil
	})
	if err != nil {
		return domain.IssueInvoiceResponse{}, err
	}

	s.notifier.Dispatch(ctx, notify.Event{
		Type:     "invoice.issued",
		EntityID: resp.ID.String(),
		Metadata: map[string]any{"invoice_number": resp.InvoiceNumber},
	})
	return resp, nil
}

// MarkSent records delivery of an issued invoice.
func (s *Service) MarkSent(ctx context.Context, id snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransitionTo(domain.InvoiceStatusSent) {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		res := tx.Exec("UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			domain.InvoiceStatusSent, now, inv.ID, inv.Status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInvalidTransition
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			EventType:     auditdomain.EventInvoiceSent,
			EntityType:    "invoice",
			EntityID:      inv.ID.String(),
			PreviousState: map[string]any{"status": inv.Status},
			NewState:      map[string]any{"status": domain.InvoiceStatusSent},
		})
	})
	if err != nil {
		return err
	}

	s.notifier.Dispatch(ctx, notify.Event{Type: "invoice.sent", EntityID: id.String()})
	return nil
}

// MarkViewed records that the recipient opened the invoice. Views on
// already-viewed, paid, or voided invoices are accepted silently; the view
// itself is still logged best-effort since a slow audit store must never
// break the recipient's page load.
func (s *Service) MarkViewed(ctx context.Context, id snowflake.ID) error {
	var previous domain.InvoiceStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		previous = inv.Status

		if inv.Status == domain.InvoiceStatusDraft {
			return domain.ErrInvalidTransition
		}
		if !inv.Status.CanTransitionTo(domain.InvoiceStatusViewed) {
			return nil
		}

		return tx.Exec("UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
			domain.InvoiceStatusViewed, s.clock.Now(), inv.ID, inv.Status).Error
	})
	if err != nil {
		return err
	}

	newStatus := previous
	if previous.CanTransitionTo(domain.InvoiceStatusViewed) {
		newStatus = domain.InvoiceStatusViewed
	}
	s.audit.RecordBestEffort(ctx, auditdomain.Entry{
		EventType:     auditdomain.EventInvoiceViewed,
		EntityType:    "invoice",
		EntityID:      id.String(),
		PreviousState: map[string]any{"status": previous},
		NewState:      map[string]any{"status": newStatus},
	})
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Invoice, error) {
	var inv domain.Invoice
	err := s.db.WithContext(ctx).Raw("SELECT * FROM invoices WHERE id = ?", id).Scan(&inv).Error
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.ID == 0 || !visibleTo(ctx, inv) {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) Items(ctx context.Context, id snowflake.ID) ([]domain.InvoiceItem, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	var items []domain.InvoiceItem
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM invoice_items WHERE invoice_id = ? ORDER BY position ASC, id ASC", id).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// List returns the caller's invoices, newest first. The owner scope is
// mandatory; there is no cross-tenant listing.
func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	owner, ok := ownercontext.OwnerFromContext(ctx)
	if !ok {
		return domain.ListInvoiceResponse{}, domain.ErrInvalidOwner
	}

	stmt := s.db.WithContext(ctx).Model(&domain.Invoice{})
	if owner.UserID != nil {
		stmt = stmt.Where("owner_user_id = ?", *owner.UserID)
	} else {
		stmt = stmt.Where("owner_business_id = ?", *owner.BusinessID)
	}
	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}
	if req.ClientID != nil {
		stmt = stmt.Where("client_id = ?", *req.ClientID)
	}
	if req.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *req.CreatedFrom)
	}
	if req.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *req.CreatedTo)
	}

	var invoices []domain.Invoice
	if err := stmt.Order("created_at DESC, id DESC").Find(&invoices).Error; err != nil {
		return domain.ListInvoiceResponse{}, err
	}
	return domain.ListInvoiceResponse{Invoices: invoices}, nil
}

// loadForUpdate reads an invoice under a row lock and enforces the caller's
// owner scope. Out-of-scope rows report not-found rather than forbidden so
// invoice ids do not leak across tenants.
func (s *Service) loadForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	query := fmt.Sprintf("SELECT * FROM invoices WHERE id = ?%s", db.LockClause(tx))
	if err := tx.Raw(query, id).Scan(&inv).Error; err != nil {
		return nil, err
	}
	if inv.ID == 0 || !visibleTo(ctx, inv) {
		return nil, domain.ErrInvoiceNotFound
	}
	return &inv, nil
}

func visibleTo(ctx context.Context, inv domain.Invoice) bool {
	owner, ok := ownercontext.OwnerFromContext(ctx)
	if !ok {
		return true
	}
	if owner.UserID != nil {
		return inv.OwnerUserID != nil && *inv.OwnerUserID == *owner.UserID
	}
	return inv.OwnerBusinessID != nil && *inv.OwnerBusinessID == *owner.BusinessID
}

func (s *Service) issuerSnapshot(ctx context.Context, inv *domain.Invoice, now time.Time) (*domain.IssuerSnapshot, error) {
	if inv.OwnedByBusiness() {
		biz, err := s.directory.Business(ctx, *inv.OwnerBusinessID)
		if err != nil {
			return nil, err
		}
		return &domain.IssuerSnapshot{
			Name:               biz.Name,
			Email:              biz.Email,
			Address:            biz.Address,
			TaxID:              biz.TaxID,
			RegistrationNumber: biz.RegistrationNumber,
			Jurisdiction:       biz.Jurisdiction,
			CapturedAt:         now,
		}, nil
	}

	profile, err := s.directory.UserProfile(ctx, *inv.OwnerUserID)
	if err != nil {
		return nil, err
	}
	return &domain.IssuerSnapshot{
		Name:         profile.DisplayName,
		Email:        profile.Email,
		Address:      profile.Address,
		TaxID:        profile.TaxID,
		Jurisdiction: profile.Jurisdiction,
		CapturedAt:   now,
	}, nil
}

// requireVerifiedActor gates issuance on an email-verified user actor.
// Drafting is open; putting a legally significant document into the world is
// not.
func (s *Service) requireVerifiedActor(ctx context.Context) error {
	actorType, actorID := actorcontext.ActorFromContext(ctx)
	if actorType != "user" || actorID == "" {
		return domain.ErrVerificationRequired
	}
	parsed, err := snowflake.ParseString(actorID)
	if err != nil {
		return domain.ErrVerificationRequired
	}
	profile, err := s.directory.UserProfile(ctx, parsed)
	if err != nil {
		if errors.Is(err, directorydomain.ErrProfileNotFound) {
			return domain.ErrVerificationRequired
		}
		return err
	}
	if !profile.EmailVerified {
		return domain.ErrVerificationRequired
	}
	return nil
}

func (s *Service) replaceItems(tx *gorm.DB, invoiceID snowflake.ID, inputs []domain.LineItemInput) error {
	if len(inputs) == 0 {
		return nil
	}
	now := s.clock.Now()
	items := make([]domain.InvoiceItem, 0, len(inputs))
	for i, in := range inputs {
		items = append(items, domain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TaxRate:     in.TaxRate,
			Amount:      in.Amount,
			Position:    i,
			CreatedAt:   now,
		})
	}
	return tx.Create(&items).Error
}

func validateAmounts(subtotal, discount, tax, total int64, items []domain.LineItemInput) error {
	if subtotal < 0 || discount < 0 || tax < 0 || total < 0 {
		return domain.ErrInvalidAmounts
	}
	if total != subtotal-discount+tax {
		return domain.ErrInvalidAmounts
	}
	if len(items) > 0 {
		var sum int64
		for _, item := range items {
			if item.Amount < 0 || item.UnitPrice < 0 || item.Quantity < 0 {
				return domain.ErrInvalidAmounts
			}
			sum += item.Amount
		}
		if sum != subtotal {
			return domain.ErrInvalidAmounts
		}
	}
	return nil
}
