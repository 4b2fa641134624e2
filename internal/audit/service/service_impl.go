package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/veribill/veribill/internal/actorcontext"
	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/internal/audit/masking"
	"github.com/veribill/veribill/internal/clock"
	"github.com/veribill/veribill/internal/observability"
	"github.com/veribill/veribill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    auditdomain.Repository
	Metrics *observability.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    auditdomain.Repository
	metrics *observability.Metrics
}

func NewService(p Params) auditdomain.Recorder {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("audit.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// Record appends an entry through tx so it commits with the caller's state
// change. Failure propagates: compliance-critical events must not proceed
// uncovered.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry auditdomain.Entry) error {
	row, err := s.buildRow(ctx, entry)
	if err != nil {
		return err
	}

	db := tx
	if db == nil {
		db = s.db
	}
	if err := s.repo.Insert(ctx, db, row); err != nil {
		s.log.Error("audit write failed",
			zap.String("event_type", string(entry.EventType)),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
		return err
	}
	s.metrics.AuditWrite(string(entry.EventType))
	return nil
}

// RecordBestEffort appends an entry outside any transaction and swallows
// failures. Only for non-compliance-critical events such as view logs.
func (s *Service) RecordBestEffort(ctx context.Context, entry auditdomain.Entry) {
	if entry.EventType.ComplianceCritical() {
		s.log.Warn("compliance-critical event recorded best-effort",
			zap.String("event_type", string(entry.EventType)))
	}
	if err := s.Record(ctx, nil, entry); err != nil {
		s.log.Warn("best-effort audit write dropped",
			zap.String("event_type", string(entry.EventType)),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	eventType := auditdomain.EventType(strings.TrimSpace(req.EventType))
	if eventType != "" && !eventType.Valid() {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidEventType
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		EventType:  eventType,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      int(pageSize),
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) buildRow(ctx context.Context, entry auditdomain.Entry) (*auditdomain.AuditLog, error) {
	if !entry.EventType.Valid() {
		return nil, auditdomain.ErrInvalidEventType
	}
	entityType := strings.TrimSpace(entry.EntityType)
	entityID := strings.TrimSpace(entry.EntityID)
	if entityType == "" || entityID == "" {
		return nil, auditdomain.ErrInvalidEntity
	}

	previous, err := marshalState(entry.PreviousState)
	if err != nil {
		return nil, err
	}
	next, err := marshalState(entry.NewState)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	if requestID := actorcontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if entry.EventType == auditdomain.EventSettingsUpdated {
		metadata = masking.MaskJSON(metadata)
	}

	actorType, actorID := actorcontext.ActorFromContext(ctx)
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	row := &auditdomain.AuditLog{
		ID:            s.genID.Generate(),
		EventType:     entry.EventType,
		EntityType:    entityType,
		EntityID:      entityID,
		ActorType:     actorType,
		PreviousState: previous,
		NewState:      next,
		Metadata:      datatypes.JSONMap(metadata),
		CreatedAt:     s.clock.Now(),
	}
	if actorID != "" {
		row.ActorID = &actorID
	}
	if ip := actorcontext.IPAddressFromContext(ctx); ip != "" {
		row.IPAddress = &ip
	}
	if ua := actorcontext.UserAgentFromContext(ctx); ua != "" {
		row.UserAgent = &ua
	}
	return row, nil
}

func marshalState(state any) (datatypes.JSON, error) {
	if state == nil {
		return nil, nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
