package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veribill/veribill/internal/actorcontext"
	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	auditrepo "github.com/veribill/veribill/internal/audit/repository"
	auditservice "github.com/veribill/veribill/internal/audit/service"
	"github.com/veribill/veribill/internal/clock"
	"github.com/veribill/veribill/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		event_type TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		previous_state TEXT,
		new_state TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`).Error)

	return db
}

func newRecorder(t *testing.T, db *gorm.DB) auditdomain.Recorder {
	t.Helper()

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	return auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  auditrepo.Provide(),
	})
}

func TestRecordRejectsUnknownEventType(t *testing.T) {
	db := setupTestDB(t)
	recorder := newRecorder(t, db)

	err := recorder.Record(context.Background(), nil, auditdomain.Entry{
		EventType:  auditdomain.EventType("INVOICE_EXPLODED"),
		EntityType: "invoice",
		EntityID:   "1",
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidEventType)
}

func TestRecordCapturesActorAndStates(t *testing.T) {
	db := setupTestDB(t)
	recorder := newRecorder(t, db)

	ctx := actorcontext.WithActor(context.Background(), "user", "42")
	ctx = actorcontext.WithRequestID(ctx, "req-1")
	ctx = actorcontext.WithIPAddress(ctx, "10.0.0.9")

	err := recorder.Record(ctx, nil, auditdomain.Entry{
		EventType:     auditdomain.EventPaymentRecorded,
		EntityType:    "invoice",
		EntityID:      "99",
		PreviousState: map[string]any{"status": "issued", "amount_paid": 0},
		NewState:      map[string]any{"status": "paid", "amount_paid": 1075},
	})
	require.NoError(t, err)

	resp, err := recorder.List(ctx, auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, auditdomain.EventPaymentRecorded, entry.EventType)
	assert.Equal(t, "user", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "42", *entry.ActorID)
	assert.Contains(t, string(entry.PreviousState), `"issued"`)
	assert.Contains(t, string(entry.NewState), `"paid"`)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.9", *entry.IPAddress)
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	db := setupTestDB(t)
	recorder := newRecorder(t, db)

	err := recorder.Record(context.Background(), nil, auditdomain.Entry{
		EventType:  auditdomain.EventInvoiceCreated,
		EntityType: "invoice",
		EntityID:   "1",
	})
	require.NoError(t, err)

	resp, err := recorder.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, auditdomain.ActorTypeSystem, resp.AuditLogs[0].ActorType)
}

func TestRecordInsideTransactionRollsBackWithCaller(t *testing.T) {
	db := setupTestDB(t)
	recorder := newRecorder(t, db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := recorder.Record(ctx, tx, auditdomain.Entry{
			EventType:  auditdomain.EventInvoiceIssued,
			EntityType: "invoice",
			EntityID:   "7",
		}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM audit_logs").Scan(&count).Error)
	assert.Zero(t, count, "audit entry must roll back with the aborted operation")
}

func TestRecordBestEffortSwallowsFailure(t *testing.T) {
	db := setupTestDB(t)
	recorder := newRecorder(t, db)

	require.NoError(t, db.Exec("DROP TABLE audit_logs").Error)

	// must not panic or propagate
	recorder.RecordBestEffort(context.Background(), auditdomain.Entry{
		EventType:  auditdomain.EventInvoiceViewed,
		EntityType: "invoice",
		EntityID:   "1",
	})
}

func TestListFiltersAndPaginates(t *testing.T) {
	db := setupTestDB(t)
	recorder := newRecorder(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, recorder.Record(ctx, nil, auditdomain.Entry{
			EventType:  auditdomain.EventInvoiceCreated,
			EntityType: "invoice",
			EntityID:   "inv-a",
		}))
	}
	require.NoError(t, recorder.Record(ctx, nil, auditdomain.Entry{
		EventType:  auditdomain.EventPaymentRecorded,
		EntityType: "invoice",
		EntityID:   "inv-b",
	}))

	resp, err := recorder.List(ctx, auditdomain.ListAuditLogRequest{EventType: "PAYMENT_RECORDED"})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "inv-b", resp.AuditLogs[0].EntityID)

	_, err = recorder.List(ctx, auditdomain.ListAuditLogRequest{EventType: "NOT_A_THING"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidEventType)

	_, err = recorder.List(ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "garbage"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
