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
	creditnotedomain "github.com/veribill/veribill/internal/creditnote/domain"
	creditnoteservice "github.com/veribill/veribill/internal/creditnote/service"
	directorydomain "github.com/veribill/veribill/internal/directory/domain"
	directoryrepo "github.com/veribill/veribill/internal/directory/repository"
	invoicedomain "github.com/veribill/veribill/internal/invoice/domain"
	invoiceservice "github.com/veribill/veribill/internal/invoice/service"
	"github.com/veribill/veribill/internal/notify"
	"github.com/veribill/veribill/internal/ownercontext"
	paymentdomain "github.com/veribill/veribill/internal/payment/domain"
	"github.com/veribill/veribill/internal/verification/domain"
	"github.com/veribill/veribill/internal/verification/service"
)

type harness struct {
	db       *gorm.DB
	resolver domain.Resolver
	invoices invoicedomain.Service
	notes    creditnotedomain.Service
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
		&creditnotedomain.CreditNote{},
		&paymentdomain.Payment{},
		&directorydomain.UserProfile{},
		&directorydomain.Business{},
		&directorydomain.Client{},
		&directorydomain.Template{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(17)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	recorder := auditservice.NewService(auditservice.Params{
		DB: gdb, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})
	dispatcher := notify.NewLogDispatcher(zap.NewNop())

	h := &harness{
		db:       gdb,
		clk:      clk,
		userID:   node.Generate(),
		clientID: node.Generate(),
	}

	require.NoError(t, gdb.Create(&directorydomain.UserProfile{
		ID: h.userID, DisplayName: "Ada Okafor", Email: "ada@example.com",
		EmailVerified: true, Jurisdiction: "NG", UpdatedAt: clk.Now(),
	}).Error)
	require.NoError(t, gdb.Create(&directorydomain.Client{
		ID: h.clientID, Name: "Acme Ltd", Email: "billing@acme.test", UpdatedAt: clk.Now(),
	}).Error)

	h.invoices = invoiceservice.NewService(invoiceservice.Params{
		DB: gdb, Log: zap.NewNop(), GenID: node, Clock: clk,
		Directory: directoryrepo.Provide(directoryrepo.Params{DB: gdb}),
		Audit:     recorder, Notifier: dispatcher,
	})
	h.notes = creditnoteservice.NewService(creditnoteservice.Params{
		DB: gdb, Log: zap.NewNop(), GenID: node, Clock: clk,
		Audit: recorder, Notifier: dispatcher,
	})
	h.resolver = service.NewService(service.Params{
		DB: gdb, Log: zap.NewNop(), Audit: recorder,
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx := ownercontext.WithOwner(context.Background(), ownercontext.UserOwner(h.userID))
	return actorcontext.WithActor(ctx, "user", h.userID.String())
}

func (h *harness) issuedToken(t *testing.T, total int64) (invoicedomain.Invoice, string) {
	t.Helper()

	inv, err := h.invoices.Create(h.ctx(), invoicedomain.CreateInvoiceRequest{
		Owner:       ownercontext.UserOwner(h.userID),
		ClientID:    h.clientID,
		Currency:    "NGN",
		Subtotal:    total,
		TotalAmount: total,
	})
	require.NoError(t, err)
	resp, err := h.invoices.Issue(h.ctx(), inv.ID)
	require.NoError(t, err)

	issued, err := h.invoices.GetByID(h.ctx(), inv.ID)
	require.NoError(t, err)
	return issued, resp.VerificationID
}

func TestResolveIssuedInvoice(t *testing.T) {
	h := newHarness(t)
	inv, token := h.issuedToken(t, 107500)

	// Lookup is public: no owner or actor in context.
	result, err := h.resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.True(t, result.IntegrityValid)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, domain.DocumentInvoice, result.Snapshot.DocumentType)
	assert.Equal(t, inv.InvoiceNumber, result.Snapshot.DocumentNumber)
	assert.Equal(t, "Ada Okafor", result.Snapshot.IssuerName)
	assert.Equal(t, "Acme Ltd", result.Snapshot.CounterpartName)
	assert.EqualValues(t, 107500, result.Snapshot.Amount)

	var accessCount int64
	require.NoError(t, h.db.Model(&auditdomain.AuditLog{}).
		Where("event_type = ?", auditdomain.EventVerificationAccessed).
		Count(&accessCount).Error)
	assert.EqualValues(t, 1, accessCount)
}

func TestUnknownAndMalformedTokensLookTheSame(t *testing.T) {
	h := newHarness(t)
	h.issuedToken(t, 1000)

	_, errMalformed := h.resolver.Resolve(context.Background(), "not-a-token")
	_, errUnknown := h.resolver.Resolve(context.Background(), "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	assert.ErrorIs(t, errMalformed, domain.ErrNotVerified)
	assert.ErrorIs(t, errUnknown, domain.ErrNotVerified)
	assert.Equal(t, errMalformed.Error(), errUnknown.Error())
}

func TestTamperedInvoiceFailsIntegrity(t *testing.T) {
	h := newHarness(t)
	inv, token := h.issuedToken(t, 100000)

	// Simulate a direct database edit behind the application's back.
	require.NoError(t, h.db.Exec("UPDATE invoices SET total_amount = ? WHERE id = ?", 1, inv.ID).Error)

	result, err := h.resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.False(t, result.IntegrityValid)
	assert.Nil(t, result.Snapshot)
}

// The production clock carries nanoseconds while issued_at is a TIMESTAMPTZ
// column holding microseconds. The sealed hash must match what a resolver
// recomputes from the stored value.
func TestResolveSurvivesTimestampPrecisionRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.clk.Advance(123456789 * time.Nanosecond)

	inv, token := h.issuedToken(t, 42000)
	require.NotNil(t, inv.IssuedAt)

	stored := inv.IssuedAt.UTC().Truncate(time.Microsecond)
	require.NoError(t, h.db.Exec("UPDATE invoices SET issued_at = ? WHERE id = ?", stored, inv.ID).Error)

	result, err := h.resolver.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.True(t, result.IntegrityValid)

	voidResp, err := h.notes.Void(h.ctx(), creditnotedomain.VoidInvoiceRequest{
		InvoiceID: inv.ID,
		Reason:    "issued with the wrong line items",
	})
	require.NoError(t, err)
	require.NotNil(t, voidResp.CreditNote.VerificationID)

	noteStored := voidResp.CreditNote.IssuedAt.UTC().Truncate(time.Microsecond)
	require.NoError(t, h.db.Exec("UPDATE credit_notes SET issued_at = ? WHERE id = ?", noteStored, voidResp.CreditNote.ID).Error)

	noteResult, err := h.resolver.Resolve(context.Background(), *voidResp.CreditNote.VerificationID)
	require.NoError(t, err)
	assert.True(t, noteResult.IntegrityValid)
}

func TestResolveCreditNote(t *testing.T) {
	h := newHarness(t)
	inv, _ := h.issuedToken(t, 50000)

	voidResp, err := h.notes.Void(h.ctx(), creditnotedomain.VoidInvoiceRequest{
		InvoiceID: inv.ID,
		Reason:    "cancelled engagement",
	})
	require.NoError(t, err)
	require.NotNil(t, voidResp.CreditNote.VerificationID)

	result, err := h.resolver.Resolve(context.Background(), *voidResp.CreditNote.VerificationID)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.True(t, result.IntegrityValid)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, domain.DocumentCreditNote, result.Snapshot.DocumentType)
	assert.Equal(t, voidResp.CreditNote.CreditNoteNumber, result.Snapshot.DocumentNumber)
	assert.Equal(t, "Ada Okafor", result.Snapshot.IssuerName)
	assert.EqualValues(t, 50000, result.Snapshot.Amount)
}

func TestDraftHasNoToken(t *testing.T) {
	h := newHarness(t)

	draft, err := h.invoices.Create(h.ctx(), invoicedomain.CreateInvoiceRequest{
		Owner:       ownercontext.UserOwner(h.userID),
		ClientID:    h.clientID,
		Currency:    "NGN",
		Subtotal:    1000,
		TotalAmount: 1000,
	})
	require.NoError(t, err)
	assert.Nil(t, draft.VerificationID)
}
