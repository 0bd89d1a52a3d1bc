package checkout

import (
	"github.com/glowhub/portal/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(service.New),
)
