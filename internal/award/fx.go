package award

import (
	"github.com/glowhub/portal/internal/award/service"
	"go.uber.org/fx"
)

var Module = fx.Module("award.service",
	fx.Provide(service.New),
)
