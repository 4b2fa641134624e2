package invoice

import (
	"go.uber.org/fx"

	"github.com/veribill/veribill/internal/invoice/service"
)

var Module = fx.Module("invoice",
	fx.Provide(service.NewService),
)
