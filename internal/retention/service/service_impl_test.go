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

	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	auditrepo "github.com/veribill/veribill/internal/audit/repository"
	auditservice "github.com/veribill/veribill/internal/audit/service"
	"github.com/veribill/veribill/internal/clock"
	"github.com/veribill/veribill/internal/config"
	"github.com/veribill/veribill/internal/retention/domain"
	"github.com/veribill/veribill/internal/retention/service"
)

type harness struct {
	db  *gorm.DB
	svc domain.Service
	clk *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&domain.RetentionPolicy{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(19)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	holder, err := config.NewRetentionHolder(zap.NewNop())
	require.NoError(t, err)

	recorder := auditservice.NewService(auditservice.Params{
		DB: gdb, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: auditrepo.Provide(),
	})

	return &harness{
		db:  gdb,
		clk: clk,
		svc: service.NewService(service.Params{
			DB: gdb, Log: zap.NewNop(), GenID: node, Clock: clk,
			Holder: holder, Audit: recorder,
		}),
	}
}

func TestResolvePrecedence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Shipped config rule.
	got, err := h.svc.Resolve(ctx, "ng", "Invoice")
	require.NoError(t, err)
	assert.Equal(t, 6, got.RetentionYears)
	assert.Equal(t, domain.SourceConfig, got.Source)

	// Database override wins.
	_, err = h.svc.SetPolicy(ctx, domain.SetPolicyRequest{
		Jurisdiction:   "NG",
		EntityType:     "invoice",
		RetentionYears: 8,
		LegalBasis:     "internal policy",
	})
	require.NoError(t, err)

	got, err = h.svc.Resolve(ctx, "NG", "invoice")
	require.NoError(t, err)
	assert.Equal(t, 8, got.RetentionYears)
	assert.Equal(t, domain.SourceDatabase, got.Source)

	// Unknown jurisdiction falls back to the strictest default.
	got, err = h.svc.Resolve(ctx, "ZZ", "invoice")
	require.NoError(t, err)
	assert.Equal(t, 10, got.RetentionYears)
	assert.Equal(t, domain.SourceDefault, got.Source)
}

func TestCheckDeletableHonorsFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	createdAt := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)

	earliest, err := h.svc.EarliestDeletion(ctx, "NG", "invoice", createdAt)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), earliest)

	// 2025: still inside the six year window.
	assert.ErrorIs(t, h.svc.CheckDeletable(ctx, "NG", "invoice", createdAt), domain.ErrRetentionActive)

	h.clk.Advance(366 * 24 * time.Hour)
	assert.NoError(t, h.svc.CheckDeletable(ctx, "NG", "invoice", createdAt))
}

func TestSetPolicyRejectsLoweredFloor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.SetPolicy(ctx, domain.SetPolicyRequest{
		Jurisdiction: "DE", EntityType: "invoice", RetentionYears: 5,
	})
	assert.ErrorIs(t, err, domain.ErrBelowFloor)

	_, err = h.svc.SetPolicy(ctx, domain.SetPolicyRequest{
		Jurisdiction: "DE", EntityType: "invoice", RetentionYears: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)

	_, err = h.svc.SetPolicy(ctx, domain.SetPolicyRequest{
		Jurisdiction: "DE", EntityType: "invoice", RetentionYears: 12,
	})
	require.NoError(t, err)

	var auditCount int64
	require.NoError(t, h.db.Model(&auditdomain.AuditLog{}).
		Where("event_type = ?", auditdomain.EventSettingsUpdated).
		Count(&auditCount).Error)
	assert.EqualValues(t, 1, auditCount)
}

func TestSetPolicyUpsertsExisting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.svc.SetPolicy(ctx, domain.SetPolicyRequest{
		Jurisdiction: "US", EntityType: "invoice", RetentionYears: 9,
	})
	require.NoError(t, err)

	h.clk.Advance(time.Hour)
	second, err := h.svc.SetPolicy(ctx, domain.SetPolicyRequest{
		Jurisdiction: "US", EntityType: "invoice", RetentionYears: 11,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, h.db.Model(&domain.RetentionPolicy{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestListMergesConfigAndOverrides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.SetPolicy(ctx, domain.SetPolicyRequest{
		Jurisdiction: "GB", EntityType: "invoice", RetentionYears: 7,
	})
	require.NoError(t, err)

	resolutions, err := h.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, resolutions, len(config.DefaultRetentionConfig().Rules))

	var found bool
	for _, r := range resolutions {
		if r.Jurisdiction == "GB" && r.EntityType == "invoice" {
			found = true
			assert.Equal(t, 7, r.RetentionYears)
			assert.Equal(t, domain.SourceDatabase, r.Source)
		}
	}
	assert.True(t, found)
}
