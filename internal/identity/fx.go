package identity

import (
	"github.com/smallbiznis/tenantcore/internal/identity/adapters/httpapi"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(httpapi.New),
)
