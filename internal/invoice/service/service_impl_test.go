package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veribill/veribill/internal/actorcontext"
	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	auditrepo "github.com/veribill/veribill/internal/audit/repository"
	auditservice "github.com/veribill/veribill/internal/audit/service"
	"github.com/veribill/veribill/internal/clock"
	directorydomain "github.com/veribill/veribill/internal/directory/domain"
	directoryrepo "github.com/veribill/veribill/internal/directory/repository"
	"github.com/veribill/veribill/internal/domainerr"
	"github.com/veribill/veribill/internal/integrity"
	"github.com/veribill/veribill/internal/invoice/domain"
	"github.com/veribill/veribill/internal/invoice/service"
	"github.com/veribill/veribill/internal/notify"
	"github.com/veribill/veribill/internal/ownercontext"
	verificationdomain "github.com/veribill/veribill/internal/verification/domain"
)

type harness struct {
	db      *gorm.DB
	svc     domain.Service
	clk     *clock.FakeClock
	genID   *snowflake.Node
	userID  snowflake.ID
	client  snowflake.ID
	tmpl    snowflake.ID
	startAt time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&domain.Invoice{},
		&domain.InvoiceItem{},
		&directorydomain.UserProfile{},
		&directorydomain.Business{},
		&directorydomain.Client{},
		&directorydomain.Template{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)

	startAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(startAt)

	recorder := auditservice.NewService(auditservice.Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})

	h := &harness{
		db:      gdb,
		clk:     clk,
		genID:   node,
		userID:  node.Generate(),
		client:  node.Generate(),
		tmpl:    node.Generate(),
		startAt: startAt,
	}

	require.NoError(t, gdb.Create(&directorydomain.UserProfile{
		ID:            h.userID,
		DisplayName:   "Ada Okafor",
		Email:         "ada@example.com",
		EmailVerified: true,
		Jurisdiction:  "NG",
		UpdatedAt:     startAt,
	}).Error)
	require.NoError(t, gdb.Create(&directorydomain.Client{
		ID:        h.client,
		Name:      "Acme Ltd",
		Email:     "billing@acme.test",
		UpdatedAt: startAt,
	}).Error)
	require.NoError(t, gdb.Create(&directorydomain.Template{
		ID:                h.tmpl,
		Name:              "Classic",
		RequiresWatermark: true,
		UpdatedAt:         startAt,
	}).Error)

	h.svc = service.NewService(service.Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Directory: directoryrepo.Provide(directoryrepo.Params{DB: gdb}),
		Audit:     recorder,
		Notifier:  notify.NewLogDispatcher(zap.NewNop()),
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx := ownercontext.WithOwner(context.Background(), ownercontext.UserOwner(h.userID))
	return actorcontext.WithActor(ctx, "user", h.userID.String())
}

func (h *harness) draftRequest() domain.CreateInvoiceRequest {
	return domain.CreateInvoiceRequest{
		Owner:       ownercontext.UserOwner(h.userID),
		ClientID:    h.client,
		TemplateID:  &h.tmpl,
		Currency:    "ngn",
		Subtotal:    100000,
		TaxAmount:   7500,
		TotalAmount: 107500,
		Items: []domain.LineItemInput{
			{Description: "Design work", Quantity: 10, UnitPrice: 10000, Amount: 100000, TaxRate: 7.5},
		},
	}
}

func (h *harness) auditCount(t *testing.T, eventType auditdomain.EventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&auditdomain.AuditLog{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	first, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)
	second, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)

	assert.Equal(t, "INV-000001", first.InvoiceNumber)
	assert.Equal(t, "INV-000002", second.InvoiceNumber)
	assert.Equal(t, domain.InvoiceStatusDraft, first.Status)
	assert.Equal(t, "NGN", first.Currency)
	assert.Nil(t, first.InvoiceHash)
	assert.EqualValues(t, 2, h.auditCount(t, auditdomain.EventInvoiceCreated))
}

func TestCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	_, err := h.svc.Create(ctx, domain.CreateInvoiceRequest{Currency: "NGN", ClientID: h.client})
	assert.ErrorIs(t, err, domainerr.ErrPreconditionFailed)

	req := h.draftRequest()
	req.Currency = "naira"
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	req = h.draftRequest()
	req.TotalAmount = 999999
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmounts)

	req = h.draftRequest()
	req.Items[0].Amount = 55
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmounts)
}

func TestUpdateReplacesItemsWholesale(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	inv, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)

	newItems := []domain.LineItemInput{
		{Description: "Consulting", Quantity: 1, UnitPrice: 40000, Amount: 40000},
		{Description: "Hosting", Quantity: 2, UnitPrice: 5000, Amount: 10000},
	}
	subtotal, total := int64(50000), int64(50000)
	tax := int64(0)
	updated, err := h.svc.Update(ctx, inv.ID, domain.UpdateInvoiceRequest{
		Subtotal:    &subtotal,
		TaxAmount:   &tax,
		TotalAmount: &total,
		Items:       &newItems,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 50000, updated.TotalAmount)

	items, err := h.svc.Items(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Consulting", items[0].Description)
	assert.Equal(t, 1, items[1].Position)
}

func TestIssuedInvoiceIsImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	inv, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)
	_, err = h.svc.Issue(ctx, inv.ID)
	require.NoError(t, err)

	subtotal := int64(1)
	_, err = h.svc.Update(ctx, inv.ID, domain.UpdateInvoiceRequest{Subtotal: &subtotal})
	assert.ErrorIs(t, err, domain.ErrInvoiceImmutable)

	err = h.svc.Delete(ctx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrNotDeletable)
}

func TestDeleteDraftRemovesRows(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	inv, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)
	require.NoError(t, h.svc.Delete(ctx, inv.ID))

	_, err = h.svc.GetByID(ctx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	var itemCount int64
	require.NoError(t, h.db.Model(&domain.InvoiceItem{}).Where("invoice_id = ?", inv.ID).Count(&itemCount).Error)
	assert.Zero(t, itemCount)
	assert.EqualValues(t, 1, h.auditCount(t, auditdomain.EventInvoiceDeleted))
}

func TestIssueSealsInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	inv, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)

	h.clk.Advance(2 * time.Hour)
	resp, err := h.svc.Issue(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, inv.InvoiceNumber, resp.InvoiceNumber)
	assert.True(t, verificationdomain.ValidTokenFormat(resp.VerificationID))
	assert.True(t, integrity.Verify(integrity.Canonical{
		Kind:      integrity.KindInvoice,
		Number:    resp.InvoiceNumber,
		InvoiceID: inv.ID,
		Amount:    inv.TotalAmount,
		Currency:  "NGN",
		IssuedAt:  resp.IssuedAt,
	}, resp.InvoiceHash))

	sealed, err := h.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusIssued, sealed.Status)
	require.NotNil(t, sealed.IssuerSnapshot)
	assert.Equal(t, "Ada Okafor", sealed.IssuerSnapshot.Name)
	assert.Equal(t, "NG", sealed.IssuerSnapshot.Jurisdiction)
	require.NotNil(t, sealed.RecipientSnapshot)
	assert.Equal(t, "Acme Ltd", sealed.RecipientSnapshot.Name)
	require.NotNil(t, sealed.TemplateSnapshot)
	assert.True(t, sealed.TemplateSnapshot.RequiresWatermark)
	assert.EqualValues(t, 1, h.auditCount(t, auditdomain.EventInvoiceIssued))

	_, err = h.svc.Issue(ctx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyIssued)
}

func TestSnapshotsSurviveDirectoryEdits(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	inv, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)
	_, err = h.svc.Issue(ctx, inv.ID)
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&directorydomain.Client{}).
		Where("id = ?", h.client).
		Update("name", "Acme Holdings Plc").Error)

	sealed, err := h.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", sealed.RecipientSnapshot.Name)
}

func TestIssueRequiresVerifiedActor(t *testing.T) {
	h := newHarness(t)

	inv, err := h.svc.Create(h.ctx(), h.draftRequest())
	require.NoError(t, err)

	// No actor at all.
	anon := ownercontext.WithOwner(context.Background(), ownercontext.UserOwner(h.userID))
	_, err = h.svc.Issue(anon, inv.ID)
	assert.ErrorIs(t, err, domain.ErrVerificationRequired)

	// Unverified email.
	require.NoError(t, h.db.Model(&directorydomain.UserProfile{}).
		Where("id = ?", h.userID).
		Update("email_verified", false).Error)
	_, err = h.svc.Issue(h.ctx(), inv.ID)
	assert.ErrorIs(t, err, domain.ErrVerificationRequired)

	still, err := h.svc.GetByID(h.ctx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusDraft, still.Status)
}

func TestMarkSentAndViewed(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	inv, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)

	err = h.svc.MarkSent(ctx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.svc.Issue(ctx, inv.ID)
	require.NoError(t, err)
	require.NoError(t, h.svc.MarkSent(ctx, inv.ID))
	require.NoError(t, h.svc.MarkViewed(ctx, inv.ID))

	// Repeat views are accepted and still logged.
	require.NoError(t, h.svc.MarkViewed(ctx, inv.ID))

	got, err := h.svc.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusViewed, got.Status)
	assert.EqualValues(t, 1, h.auditCount(t, auditdomain.EventInvoiceSent))
	assert.EqualValues(t, 2, h.auditCount(t, auditdomain.EventInvoiceViewed))
}

func TestOwnerScopeIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := h.ctx()

	inv, err := h.svc.Create(ctx, h.draftRequest())
	require.NoError(t, err)

	other := h.genID.Generate()
	require.NoError(t, h.db.Create(&directorydomain.UserProfile{
		ID: other, DisplayName: "Intruder", Email: "x@example.com",
		EmailVerified: true, Jurisdiction: "US", UpdatedAt: h.startAt,
	}).Error)
	otherCtx := ownercontext.WithOwner(context.Background(), ownercontext.UserOwner(other))

	_, err = h.svc.GetByID(otherCtx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
	assert.True(t, errors.Is(err, domainerr.ErrNotFound))

	list, err := h.svc.List(otherCtx, domain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Invoices)

	_, err = h.svc.List(context.Background(), domain.ListInvoiceRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)

	mine, err := h.svc.List(ctx, domain.ListInvoiceRequest{})
	require.NoError(t, err)
	require.Len(t, mine.Invoices, 1)
	assert.Equal(t, inv.ID, mine.Invoices[0].ID)
}
