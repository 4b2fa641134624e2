package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/veribill/veribill/internal/audit/domain"
	"github.com/veribill/veribill/internal/clock"
	"github.com/veribill/veribill/internal/config"
	"github.com/veribill/veribill/internal/retention/domain"
	"github.com/veribill/veribill/pkg/repository"
)

// fallbackYears applies when neither the database nor the config file knows
// the jurisdiction. It matches the strictest shipped rule so an unknown
// jurisdiction never shortens anyone's obligations.
const fallbackYears = 10

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Holder *config.RetentionHolder
	Audit  auditdomain.Recorder
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	holder   *config.RetentionHolder
	audit    auditdomain.Recorder
	policies repository.Repository[domain.RetentionPolicy]
}

func NewService(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("retention.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		holder:   p.Holder,
		audit:    p.Audit,
		policies: repository.ProvideStore[domain.RetentionPolicy](p.DB),
	}
}

// Resolve returns the effective floor: database override first, then the
// config file, then the conservative fallback.
func (s *Service) Resolve(ctx context.Context, jurisdiction, entityType string) (domain.Resolution, error) {
	jurisdiction = strings.ToUpper(strings.TrimSpace(jurisdiction))
	entityType = strings.ToLower(strings.TrimSpace(entityType))
	if jurisdiction == "" || entityType == "" {
		return domain.Resolution{}, domain.ErrInvalidPolicy
	}

	override, err := s.policies.FindOne(ctx, &domain.RetentionPolicy{
		Jurisdiction: jurisdiction,
		EntityType:   entityType,
	})
	if err != nil {
		return domain.Resolution{}, err
	}
	if override != nil {
		return domain.Resolution{
			Jurisdiction:   jurisdiction,
			EntityType:     entityType,
			RetentionYears: override.RetentionYears,
			LegalBasis:     override.LegalBasis,
			Source:         domain.SourceDatabase,
		}, nil
	}

	if rule, ok := s.configRule(jurisdiction, entityType); ok {
		return domain.Resolution{
			Jurisdiction:   jurisdiction,
			EntityType:     entityType,
			RetentionYears: rule.RetentionYears,
			LegalBasis:     rule.LegalBasis,
			Source:         domain.SourceConfig,
		}, nil
	}

	return domain.Resolution{
		Jurisdiction:   jurisdiction,
		EntityType:     entityType,
		RetentionYears: fallbackYears,
		Source:         domain.SourceDefault,
	}, nil
}

func (s *Service) EarliestDeletion(ctx context.Context, jurisdiction, entityType string, createdAt time.Time) (time.Time, error) {
	resolution, err := s.Resolve(ctx, jurisdiction, entityType)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt.UTC().AddDate(resolution.RetentionYears, 0, 0), nil
}

// CheckDeletable rejects deletion requests that land inside the retention
// window. The caller decides what deletion means; this service only guards
// the floor.
func (s *Service) CheckDeletable(ctx context.Context, jurisdiction, entityType string, createdAt time.Time) error {
	earliest, err := s.EarliestDeletion(ctx, jurisdiction, entityType, createdAt)
	if err != nil {
		return err
	}
	if s.clock.Now().Before(earliest) {
		return domain.ErrRetentionActive
	}
	return nil
}

// SetPolicy upserts a database override. Overrides can extend the shipped
// floor but never dip below it.
func (s *Service) SetPolicy(ctx context.Context, req domain.SetPolicyRequest) (domain.RetentionPolicy, error) {
	jurisdiction := strings.ToUpper(strings.TrimSpace(req.Jurisdiction))
	entityType := strings.ToLower(strings.TrimSpace(req.EntityType))
	if jurisdiction == "" || entityType == "" || req.RetentionYears <= 0 {
		return domain.RetentionPolicy{}, domain.ErrInvalidPolicy
	}

	floor := fallbackYears
	if rule, ok := s.configRule(jurisdiction, entityType); ok {
		floor = rule.RetentionYears
	}
	if req.RetentionYears < floor {
		return domain.RetentionPolicy{}, domain.ErrBelowFloor
	}

	now := s.clock.Now()
	existing, err := s.policies.FindOne(ctx, &domain.RetentionPolicy{
		Jurisdiction: jurisdiction,
		EntityType:   entityType,
	})
	if err != nil {
		return domain.RetentionPolicy{}, err
	}

	var previous any
	policy := domain.RetentionPolicy{
		ID:             s.genID.Generate(),
		Jurisdiction:   jurisdiction,
		EntityType:     entityType,
		RetentionYears: req.RetentionYears,
		LegalBasis:     strings.TrimSpace(req.LegalBasis),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if existing != nil {
		previous = *existing
		policy.ID = existing.ID
		policy.CreatedAt = existing.CreatedAt
		if err := s.policies.Update(ctx, policy.ID.String(), &policy); err != nil {
			return domain.RetentionPolicy{}, err
		}
	} else {
		if err := s.policies.Create(ctx, &policy); err != nil {
			return domain.RetentionPolicy{}, err
		}
	}

	s.audit.RecordBestEffort(ctx, auditdomain.Entry{
		EventType:     auditdomain.EventSettingsUpdated,
		EntityType:    "retention_policy",
		EntityID:      policy.ID.String(),
		PreviousState: previous,
		NewState:      policy,
		Metadata: map[string]any{
			"jurisdiction": jurisdiction,
			"entity_type":  entityType,
		},
	})
	return policy, nil
}

// List returns the effective rule set: every config rule, with database
// overrides applied on top.
func (s *Service) List(ctx context.Context) ([]domain.Resolution, error) {
	effective := make(map[string]domain.Resolution)
	for _, rule := range s.holder.Current().Rules {
		effective[rule.Jurisdiction+"/"+rule.EntityType] = domain.Resolution{
			Jurisdiction:   rule.Jurisdiction,
			EntityType:     rule.EntityType,
			RetentionYears: rule.RetentionYears,
			LegalBasis:     rule.LegalBasis,
			Source:         domain.SourceConfig,
		}
	}

	overrides, err := s.policies.Find(ctx, &domain.RetentionPolicy{})
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		effective[override.Jurisdiction+"/"+override.EntityType] = domain.Resolution{
			Jurisdiction:   override.Jurisdiction,
			EntityType:     override.EntityType,
			RetentionYears: override.RetentionYears,
			LegalBasis:     override.LegalBasis,
			Source:         domain.SourceDatabase,
		}
	}

	keys := make([]string, 0, len(effective))
	for key := range effective {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	resolutions := make([]domain.Resolution, 0, len(keys))
	for _, key := range keys {
		resolutions = append(resolutions, effective[key])
	}
	return resolutions, nil
}

func (s *Service) configRule(jurisdiction, entityType string) (config.RetentionRule, bool) {
	for _, rule := range s.holder.Current().Rules {
		if rule.Jurisdiction == jurisdiction && rule.EntityType == entityType {
			return rule, true
		}
	}
	return config.RetentionRule{}, false
}
