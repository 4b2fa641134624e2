package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/internal/clock"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Enforcer *casbin.SyncedEnforcer
	Audit    auditdomain.Recorder
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	enforcer *casbin.SyncedEnforcer
	audit    auditdomain.Recorder
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		enforcer: p.Enforcer,
		audit:    p.Audit,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor, scope, object, action string) error {
	actor = strings.TrimSpace(actor)
	scope = strings.TrimSpace(scope)
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	if actor == "" {
		return ErrInvalidActor
	}
	if scope == "" {
		return ErrInvalidScope
	}
	if object == "" || action == "" {
		return ErrForbidden
	}

	subject, roleName, err := s.resolveActor(ctx, actor, scope)
	if err != nil {
		return err
	}

	if err := s.ensureGrouping(subject, roleName, scope); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, scope, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor", actor),
			zap.String("scope", scope),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// AssignRole grants or changes a member's role within a business. The role
// change is compliance-critical and commits together with its audit entry.
func (s *ServiceImpl) AssignRole(ctx context.Context, req AssignRoleRequest) (Member, error) {
	role := strings.ToLower(strings.TrimSpace(req.Role))
	switch role {
	case RoleOwner, RoleAdmin, RoleAuditor:
	default:
		return Member{}, ErrInvalidRole
	}
	if req.BusinessID == 0 || req.UserID == 0 {
		return Member{}, ErrInvalidScope
	}

	var member Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Member
		if err := tx.Raw("SELECT * FROM business_members WHERE business_id = ? AND user_id = ?",
			req.BusinessID, req.UserID).Scan(&existing).Error; err != nil {
			return err
		}

		now := s.clock.Now()
		var previous any
		if existing.ID != 0 {
			previous = existing
			member = existing
			member.Role = role
			member.UpdatedAt = now
			if err := tx.Exec("UPDATE business_members SET role = ?, updated_at = ? WHERE id = ?",
				role, now, existing.ID).Error; err != nil {
				return err
			}
		} else {
			member = Member{
				ID:         s.genID.Generate(),
				BusinessID: req.BusinessID,
				UserID:     req.UserID,
				Role:       role,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		}

		// Drop any cached grouping so the next Authorize re-reads the row.
		subject := fmt.Sprintf("user:%s", req.UserID.String())
		scope := fmt.Sprintf("business:%s", req.BusinessID.String())
		if _, err := s.enforcer.RemoveFilteredGroupingPolicy(0, subject, "", scope); err != nil {
			return err
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			EventType:     auditdomain.EventRoleChanged,
			EntityType:    "business_member",
			EntityID:      member.ID.String(),
			PreviousState: previous,
			NewState:      member,
			Metadata: map[string]any{
				"business_id": req.BusinessID.String(),
				"user_id":     req.UserID.String(),
				"role":        role,
			},
		})
	})
	if err != nil {
		return Member{}, err
	}
	return member, nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor, scope string) (string, string, error) {
	if actor == "system" {
		return actor, "role:system", nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", "", ErrInvalidActor
	}
	userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
	if err != nil || userID == 0 {
		return "", "", ErrInvalidActor
	}

	switch {
	case strings.HasPrefix(scope, "user:"):
		ownerID, err := snowflake.ParseString(strings.TrimPrefix(scope, "user:"))
		if err != nil || ownerID == 0 {
			return "", "", ErrInvalidScope
		}
		if ownerID != userID {
			return "", "", ErrForbidden
		}
		return actor, "role:owner", nil

	case strings.HasPrefix(scope, "business:"):
		businessID, err := snowflake.ParseString(strings.TrimPrefix(scope, "business:"))
		if err != nil || businessID == 0 {
			return "", "", ErrInvalidScope
		}
		role, err := s.roleForUser(ctx, businessID, userID)
		if err != nil {
			return "", "", err
		}
		return actor, fmt.Sprintf("role:%s", role), nil
	}
	return "", "", ErrInvalidScope
}

func (s *ServiceImpl) roleForUser(ctx context.Context, businessID, userID snowflake.ID) (string, error) {
	// The business owner needs no membership row.
	var ownerID int64
	if err := s.db.WithContext(ctx).Raw(
		"SELECT owner_user_id FROM businesses WHERE id = ?", businessID,
	).Scan(&ownerID).Error; err != nil {
		return "", err
	}
	if snowflake.ID(ownerID) == userID {
		return RoleOwner, nil
	}

	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		"SELECT role FROM business_members WHERE business_id = ? AND user_id = ? LIMIT 1",
		businessID, userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.ToLower(strings.TrimSpace(row.Role))
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject, roleName, scope string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", scope)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, scope)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, scope)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Auditors read everything and touch nothing.
		{"role:auditor", ObjectInvoice, ActionInvoiceView},
		{"role:auditor", ObjectPayment, ActionPaymentView},
		{"role:auditor", ObjectCreditNote, ActionCreditNoteView},
		{"role:auditor", ObjectAuditLog, ActionAuditLogView},
		{"role:auditor", ObjectRetentionPolicy, ActionRetentionPolicyView},

		// Admins run day-to-day invoicing.
		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoiceCreate},
		{"role:admin", ObjectInvoice, ActionInvoiceUpdate},
		{"role:admin", ObjectInvoice, ActionInvoiceDelete},
		{"role:admin", ObjectInvoice, ActionInvoiceIssue},
		{"role:admin", ObjectInvoice, ActionInvoiceSend},
		{"role:admin", ObjectPayment, ActionPaymentView},
		{"role:admin", ObjectPayment, ActionPaymentRecord},
		{"role:admin", ObjectCreditNote, ActionCreditNoteView},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectRetentionPolicy, ActionRetentionPolicyView},

		// Owners additionally void invoices and manage retention and membership.
		{"role:owner", ObjectInvoice, ActionInvoiceView},
		{"role:owner", ObjectInvoice, ActionInvoiceCreate},
		{"role:owner", ObjectInvoice, ActionInvoiceUpdate},
		{"role:owner", ObjectInvoice, ActionInvoiceDelete},
		{"role:owner", ObjectInvoice, ActionInvoiceIssue},
		{"role:owner", ObjectInvoice, ActionInvoiceSend},
		{"role:owner", ObjectInvoice, ActionInvoiceVoid},
		{"role:owner", ObjectPayment, ActionPaymentView},
		{"role:owner", ObjectPayment, ActionPaymentRecord},
		{"role:owner", ObjectCreditNote, ActionCreditNoteView},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
		{"role:owner", ObjectRetentionPolicy, ActionRetentionPolicyView},
		{"role:owner", ObjectRetentionPolicy, ActionRetentionPolicyManage},
		{"role:owner", ObjectMembership, ActionMembershipManage},

		// Automated processes.
		{"role:system", ObjectInvoice, ActionInvoiceView},
		{"role:system", ObjectInvoice, ActionInvoiceSend},
		{"role:system", ObjectPayment, ActionPaymentRecord},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
