package payment

import (
	"github.com/smallbiznis/tenantcore/internal/payment/repository"
	"github.com/smallbiznis/tenantcore/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.NewRepository,
		service.New,
	),
)
