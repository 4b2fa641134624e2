package creditnote

import (
	"go.uber.org/fx"

	"github.com/veribill/veribill/internal/creditnote/service"
)

var Module = fx.Module("creditnote",
	fx.Provide(service.NewService),
)
