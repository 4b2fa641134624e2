package audit

import (
	"github.com/veribill/veribill/internal/audit/repository"
	"github.com/veribill/veribill/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
