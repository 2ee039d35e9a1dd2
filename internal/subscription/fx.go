package subscription

import (
	"github.com/smallbiznis/tenantcore/internal/subscription/repository"
	"github.com/smallbiznis/tenantcore/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.NewRepository,
		service.New,
	),
)
