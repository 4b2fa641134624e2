package verification

import (
	"go.uber.org/fx"

	"github.com/veribill/veribill/internal/verification/service"
)

var Module = fx.Module("verification",
	fx.Provide(service.NewService),
)
