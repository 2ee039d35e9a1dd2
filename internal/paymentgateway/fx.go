package paymentgateway

import (
	"github.com/smallbiznis/tenantcore/internal/paymentgateway/adapters/stripegateway"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentgateway",
	fx.Provide(stripegateway.New),
)
