package tenant

import (
	"github.com/smallbiznis/tenantcore/internal/tenant/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant",
	fx.Provide(
		repository.NewRepository,
	),
)
