package config

import (
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RetentionRule is a minimum-retention floor for one (jurisdiction, entity type) pair.
type RetentionRule struct {
	Jurisdiction   string `mapstructure:"jurisdiction"`
	EntityType     string `mapstructure:"entity_type"`
	RetentionYears int    `mapstructure:"retention_years"`
	LegalBasis     string `mapstructure:"legal_basis"`
}

// RetentionConfig is the file-backed set of retention rules.
type RetentionConfig struct {
	Rules []RetentionRule `mapstructure:"rules"`
}

// DefaultRetentionConfig covers the jurisdictions the product ships with.
// Values are floors, never ceilings; actual deletion is a separate job.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Rules: []RetentionRule{
			{Jurisdiction: "NG", EntityType: "invoice", RetentionYears: 6, LegalBasis: "FIRS Companies Income Tax Act s.63"},
			{Jurisdiction: "NG", EntityType: "audit_log", RetentionYears: 6, LegalBasis: "FIRS Companies Income Tax Act s.63"},
			{Jurisdiction: "US", EntityType: "invoice", RetentionYears: 7, LegalBasis: "IRS Rev. Proc. 98-25"},
			{Jurisdiction: "US", EntityType: "audit_log", RetentionYears: 7, LegalBasis: "IRS Rev. Proc. 98-25"},
			{Jurisdiction: "GB", EntityType: "invoice", RetentionYears: 6, LegalBasis: "HMRC VAT Notice 700/21"},
			{Jurisdiction: "GB", EntityType: "audit_log", RetentionYears: 6, LegalBasis: "HMRC VAT Notice 700/21"},
			{Jurisdiction: "DE", EntityType: "invoice", RetentionYears: 10, LegalBasis: "GoBD / AO §147"},
			{Jurisdiction: "DE", EntityType: "audit_log", RetentionYears: 10, LegalBasis: "GoBD / AO §147"},
		},
	}
}

// RetentionHolder serves the current retention config and hot-reloads it on file change.
type RetentionHolder struct {
	current atomic.Value // holds RetentionConfig
	log     *zap.Logger
}

// NewRetentionHolder loads retention.yml if present and watches it for changes.
// Missing file is not an error: the shipped defaults apply.
func NewRetentionHolder(log *zap.Logger) (*RetentionHolder, error) {
	h := &RetentionHolder{log: log.Named("config.retention")}
	h.current.Store(DefaultRetentionConfig())

	v := viper.New()
	v.SetConfigName("retention")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/veribill")
	v.AddConfigPath(".")
	v.SetEnvPrefix("VERIBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return h, nil
	}

	if err := h.apply(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := v.ReadInConfig(); err != nil {
			h.log.Warn("retention config reload failed", zap.Error(err))
			return
		}
		if err := h.apply(v); err != nil {
			h.log.Warn("retention config rejected", zap.Error(err))
		}
	})
	v.WatchConfig()

	return h, nil
}

// Current returns the active retention config.
func (h *RetentionHolder) Current() RetentionConfig {
	cfg, _ := h.current.Load().(RetentionConfig)
	return cfg
}

func (h *RetentionHolder) apply(v *viper.Viper) error {
	var cfg RetentionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	if len(cfg.Rules) == 0 {
		cfg = DefaultRetentionConfig()
	}
	for i := range cfg.Rules {
		cfg.Rules[i].Jurisdiction = strings.ToUpper(strings.TrimSpace(cfg.Rules[i].Jurisdiction))
		cfg.Rules[i].EntityType = strings.ToLower(strings.TrimSpace(cfg.Rules[i].EntityType))
	}
	h.current.Store(cfg)
	h.log.Info("retention config loaded", zap.Int("rules", len(cfg.Rules)))
	return nil
}
