package service_test

import (
	"context"
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
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
	invoiceservice "github.com/veribill/veribill/internal/invoice/service"
	"github.com/veribill/veribill/internal/notify"
	"github.com/veribill/veribill/internal/ownercontext"
	"github.com/veribill/veribill/internal/payment/domain"
	"github.com/veribill/veribill/internal/payment/service"
)

type harness struct {
	db       *gorm.DB
	payments domain.Service
	invoices invoicedomain.Service
	clk      *clock.FakeClock
	userID   snowflake.ID
	clientID snowflake.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&domain.Payment{},
		&directorydomain.UserProfile{},
		&directorydomain.Business{},
		&directorydomain.Client{},
		&directorydomain.Template{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(11)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	recorder := auditservice.NewService(auditservice.Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	dispatcher := notify.NewLogDispatcher(zap.NewNop())

	h := &harness{
		db:       gdb,
		clk:      clk,
		userID:   node.Generate(),
		clientID: node.Generate(),
	}

	require.NoError(t, gdb.Create(&directorydomain.UserProfile{
		ID:            h.userID,
		DisplayName:   "Ada Okafor",
		Email:         "ada@example.com",
		EmailVerified: true,
		Jurisdiction:  "NG",
		UpdatedAt:     clk.Now(),
	}).Error)
	require.NoError(t, gdb.Create(&directorydomain.Client{
		ID:        h.clientID,
		Name:      "Acme Ltd",
		UpdatedAt: clk.Now(),
	}).Error)

	h.invoices = invoiceservice.NewService(invoiceservice.Params{
		DB:        gdb,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Directory: directoryrepo.Provide(directoryrepo.Params{DB: gdb}),
		Audit:     recorder,
		Notifier:  dispatcher,
	})
	h.payments = service.NewService(service.Params{
		DB:       gdb,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Audit:    recorder,
		Notifier: dispatcher,
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx := ownercontext.WithOwner(context.Background(), ownercontext.UserOwner(h.userID))
	return actorcontext.WithActor(ctx, "user", h.userID.String())
}

// issuedInvoice creates and issues an NGN invoice for the given total.
func (h *harness) issuedInvoice(t *testing.T, total int64) invoicedomain.Invoice {
	t.Helper()

	inv, err := h.invoices.Create(h.ctx(), invoicedomain.CreateInvoiceRequest{
		Owner:       ownercontext.UserOwner(h.userID),
		ClientID:    h.clientID,
		Currency:    "NGN",
		Subtotal:    total,
		TotalAmount: total,
	})
	require.NoError(t, err)
	_, err = h.invoices.Issue(h.ctx(), inv.ID)
	require.NoError(t, err)

	issued, err := h.invoices.GetByID(h.ctx(), inv.ID)
	require.NoError(t, err)
	return issued
}

func TestPartialThenFullPayment(t *testing.T) {
	h := newHarness(t)
	inv := h.issuedInvoice(t, 107500)

	first, err := h.payments.Record(h.ctx(), domain.RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    50000,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, first.InvoiceStatus)
	assert.EqualValues(t, 50000, first.AmountPaid)
	assert.EqualValues(t, 57500, first.Balance)

	second, err := h.payments.Record(h.ctx(), domain.RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    57500,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, second.InvoiceStatus)
	assert.Zero(t, second.Balance)

	settled, err := h.invoices.GetByID(h.ctx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, settled.Status)
	assert.EqualValues(t, 107500, settled.AmountPaid)

	var auditCount int64
	require.NoError(t, h.db.Model(&auditdomain.AuditLog{}).
		Where("event_type = ?", auditdomain.EventPaymentRecorded).
		Count(&auditCount).Error)
	assert.EqualValues(t, 2, auditCount)
}

func TestOverpaymentRejected(t *testing.T) {
	h := newHarness(t)
	inv := h.issuedInvoice(t, 100000)

	_, err := h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: inv.ID, Amount: 100001})
	assert.ErrorIs(t, err, domain.ErrOverpayment)

	// Nothing changed and nothing was logged.
	got, err := h.invoices.GetByID(h.ctx(), inv.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AmountPaid)

	var auditCount int64
	require.NoError(t, h.db.Model(&auditdomain.AuditLog{}).
		Where("event_type = ?", auditdomain.EventPaymentRecorded).
		Count(&auditCount).Error)
	assert.Zero(t, auditCount)
}

func TestSettledInvoiceRejectsFurtherPayments(t *testing.T) {
	h := newHarness(t)
	inv := h.issuedInvoice(t, 100000)

	_, err := h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: inv.ID, Amount: 100000})
	require.NoError(t, err)

	_, err = h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: inv.ID, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrPaymentNotAllowed)
}

func TestDraftInvoiceNotPayable(t *testing.T) {
	h := newHarness(t)

	draft, err := h.invoices.Create(h.ctx(), invoicedomain.CreateInvoiceRequest{
		Owner:       ownercontext.UserOwner(h.userID),
		ClientID:    h.clientID,
		Currency:    "NGN",
		Subtotal:    5000,
		TotalAmount: 5000,
	})
	require.NoError(t, err)

	_, err = h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: draft.ID, Amount: 5000})
	assert.ErrorIs(t, err, domain.ErrPaymentNotAllowed)
}

func TestPaymentValidation(t *testing.T) {
	h := newHarness(t)
	inv := h.issuedInvoice(t, 100000)

	_, err := h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: inv.ID, Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: inv.ID, Amount: -50})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: inv.ID, Amount: 1000, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
}

func TestPaymentLedgerMatchesInvoice(t *testing.T) {
	h := newHarness(t)
	inv := h.issuedInvoice(t, 90000)

	for _, amount := range []int64{10000, 20000, 30000} {
		h.clk.Advance(time.Minute)
		_, err := h.payments.Record(h.ctx(), domain.RecordPaymentRequest{InvoiceID: inv.ID, Amount: amount})
		require.NoError(t, err)
	}

	payments, err := h.payments.ListByInvoice(h.ctx(), inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)

	var sum int64
	for _, p := range payments {
		sum += p.Amount
		assert.Equal(t, "NGN", p.Currency)
		assert.Equal(t, h.userID.String(), p.RecordedBy)
	}

	got, err := h.invoices.GetByID(h.ctx(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, got.AmountPaid, sum)
}
