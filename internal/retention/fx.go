package retention

import (
	"go.uber.org/fx"

	"github.com/veribill/veribill/internal/retention/service"
)

var Module = fx.Module("retention",
	fx.Provide(service.NewService),
)
