package onboarding

import (
	"github.com/smallbiznis/tenantcore/internal/onboarding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding",
	fx.Provide(
		service.New,
	),
)
