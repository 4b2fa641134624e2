package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/veribill/veribill/internal/audit"
	"github.com/veribill/veribill/internal/authorization"
	"github.com/veribill/veribill/internal/clock"
	"github.com/veribill/veribill/internal/config"
	"github.com/veribill/veribill/internal/creditnote"
	"github.com/veribill/veribill/internal/directory"
	"github.com/veribill/veribill/internal/invoice"
	"github.com/veribill/veribill/internal/logger"
	"github.com/veribill/veribill/internal/migration"
	"github.com/veribill/veribill/internal/notify"
	"github.com/veribill/veribill/internal/observability"
	"github.com/veribill/veribill/internal/payment"
	"github.com/veribill/veribill/internal/ratelimit"
	"github.com/veribill/veribill/internal/retention"
	"github.com/veribill/veribill/internal/server"
	"github.com/veribill/veribill/internal/verification"
	"github.com/veribill/veribill/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domains
		audit.Module,
		directory.Module,
		notify.Module,
		invoice.Module,
		payment.Module,
		creditnote.Module,
		verification.Module,
		retention.Module,
		authorization.Module,
		ratelimit.Module,

		// Transport
		server.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
