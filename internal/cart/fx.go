package cart

import (
	"github.com/glowhub/portal/internal/cart/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cart.service",
	fx.Provide(service.New),
)
