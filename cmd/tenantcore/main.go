package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantcore/internal/clock"
	"github.com/smallbiznis/tenantcore/internal/config"
	"github.com/smallbiznis/tenantcore/internal/identity"
	"github.com/smallbiznis/tenantcore/internal/logger"
	"github.com/smallbiznis/tenantcore/internal/migration"
	"github.com/smallbiznis/tenantcore/internal/notification"
	"github.com/smallbiznis/tenantcore/internal/observability"
	"github.com/smallbiznis/tenantcore/internal/onboarding"
	"github.com/smallbiznis/tenantcore/internal/payment"
	"github.com/smallbiznis/tenantcore/internal/paymentgateway"
	"github.com/smallbiznis/tenantcore/internal/plan"
	"github.com/smallbiznis/tenantcore/internal/scheduler"
	"github.com/smallbiznis/tenantcore/internal/server"
	"github.com/smallbiznis/tenantcore/internal/subscription"
	"github.com/smallbiznis/tenantcore/internal/tenant"
	"github.com/smallbiznis/tenantcore/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		plan.Module,
		migration.Module,

		// External collaborators
		identity.Module,
		paymentgateway.Module,
		notification.Module,

		// Functional domains
		tenant.Module,
		subscription.Module,
		payment.Module,
		onboarding.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
