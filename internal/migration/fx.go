package migration

import (
	"github.com/smallbiznis/tenantcore/internal/config"
	paymentdomain "github.com/smallbiznis/tenantcore/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/tenantcore/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres deployments (sqlite for local development) fall
		// back to schema auto-migration.
		return conn.AutoMigrate(
			&tenantdomain.Tenant{},
			&tenantdomain.AdminUser{},
			&tenantdomain.Role{},
			&tenantdomain.RoleAssignment{},
			&subscriptiondomain.Subscription{},
			&subscriptiondomain.ScheduledDowngrade{},
			&subscriptiondomain.TrialEvent{},
			&paymentdomain.Payment{},
		)
	}),
)
