// Package seed bootstraps baseline rows so a fresh deployment is usable
// without manual setup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	directorydomain "github.com/veribill/veribill/internal/directory/domain"
)

// EnsureDefaultTemplates seeds the shipped invoice templates. Existing rows
// with the same name are left alone, so reruns are harmless.
func EnsureDefaultTemplates(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id node is required")
	}

	ctx := context.Background()
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		defaults := []directorydomain.Template{
			{Name: "Free Tier", RequiresWatermark: true, UpdatedAt: now},
			{Name: "Professional", SupportsCustomBranding: true, UpdatedAt: now},
			{Name: "Classic", UpdatedAt: now},
		}
		for _, tmpl := range defaults {
			var count int64
			if err := tx.Model(&directorydomain.Template{}).
				Where("name = ?", tmpl.Name).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			tmpl.ID = node.Generate()
			if err := tx.Create(&tmpl).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
