package migration_test

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/veribill/veribill/internal/config"
	directorydomain "github.com/veribill/veribill/internal/directory/domain"
	"github.com/veribill/veribill/internal/migration"
	"github.com/veribill/veribill/internal/ratelimit"
)

func TestRunSeedsTemplatesAndIsIdempotent(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&directorydomain.Template{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	// No Redis address: the lock is a pass-through and the run proceeds.
	limiter, err := ratelimit.NewVerifyLimiter(config.Config{})
	require.NoError(t, err)

	cfg := config.Config{DBType: "sqlite"}
	require.NoError(t, migration.Run(gdb, cfg, node, limiter, zap.NewNop()))
	require.NoError(t, migration.Run(gdb, cfg, node, limiter, zap.NewNop()))

	var count int64
	require.NoError(t, gdb.Model(&directorydomain.Template{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)

	var free directorydomain.Template
	require.NoError(t, gdb.Where("name = ?", "Free Tier").First(&free).Error)
	assert.True(t, free.RequiresWatermark)
}
