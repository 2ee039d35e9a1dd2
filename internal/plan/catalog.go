// Package plan defines the ordered plan tiers and the per-tier tool/limit matrix.
package plan

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BillingCycle selects the subscription billing interval.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// Days returns the billing period length used for proration math.
func (c BillingCycle) Days() int {
	if c == CycleYearly {
		return 365
	}
	return 30
}

// NormalizeCycle maps free-form input onto a known cycle, defaulting to monthly.
func NormalizeCycle(raw string) BillingCycle {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(CycleYearly), "annual", "annually":
		return CycleYearly
	default:
		return CycleMonthly
	}
}

// Well-known plan identifiers. Trial is assignable only at provisioning time
// and sits outside the orderable upgrade path.
const (
	Trial        = "trial"
	Free         = "free"
	Starter      = "starter"
	Professional = "professional"
	Enterprise   = "enterprise"
)

// Definition describes one plan tier.
type Definition struct {
	ID                    string           `mapstructure:"id"`
	Name                  string           `mapstructure:"name"`
	Level                 int              `mapstructure:"level"`
	AllowDowngrade        bool             `mapstructure:"allow_downgrade"`
	Tools                 []string         `mapstructure:"tools"`
	Limits                map[string]int64 `mapstructure:"limits"`
	Permissions           []string         `mapstructure:"permissions"`
	MonthlyPrice          string           `mapstructure:"monthly_price"`
	YearlyPrice           string           `mapstructure:"yearly_price"`
	GatewayMonthlyPriceID string           `mapstructure:"gateway_monthly_price_id"`
	GatewayYearlyPriceID  string           `mapstructure:"gateway_yearly_price_id"`
}

// Price returns the cycle amount as an exact decimal. Malformed or missing
// prices resolve to zero.
func (d Definition) Price(cycle BillingCycle) decimal.Decimal {
	raw := d.MonthlyPrice
	if cycle == CycleYearly {
		raw = d.YearlyPrice
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// GatewayPriceID returns the payment-gateway price reference for the cycle.
func (d Definition) GatewayPriceID(cycle BillingCycle) string {
	if cycle == CycleYearly {
		return d.GatewayYearlyPriceID
	}
	return d.GatewayMonthlyPriceID
}

// Catalog holds every known plan tier.
type Catalog struct {
	Plans []Definition `mapstructure:"plans"`
}

// Lookup finds a plan definition by id.
func (c Catalog) Lookup(id string) (Definition, bool) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	for _, def := range c.Plans {
		if def.ID == normalized {
			return def, true
		}
	}
	return Definition{}, false
}

// Level resolves a plan id to its position in the upgrade order. Unknown ids
// (including trial) resolve to level 0.
func (c Catalog) Level(id string) int {
	def, ok := c.Lookup(id)
	if !ok {
		return 0
	}
	return def.Level
}

// DefaultCatalog is the built-in tier matrix used when no plans.yml overrides it.
func DefaultCatalog() Catalog {
	return Catalog{
		Plans: []Definition{
			{
				ID:             Trial,
				Name:           "Trial",
				Level:          0,
				AllowDowngrade: false,
				Tools:          []string{"dashboard", "reports"},
				Limits:         map[string]int64{"users": 5, "projects": 3, "storage_gb": 1},
				Permissions:    []string{"tenant.admin", "users.manage", "billing.view"},
				MonthlyPrice:   "0.00",
				YearlyPrice:    "0.00",
			},
			{
				ID:             Free,
				Name:           "Free",
				Level:          0,
				AllowDowngrade: true,
				Tools:          []string{"dashboard"},
				Limits:         map[string]int64{"users": 2, "projects": 1, "storage_gb": 1},
				Permissions:    []string{"tenant.admin", "users.manage", "billing.view"},
				MonthlyPrice:   "0.00",
				YearlyPrice:    "0.00",
			},
			{
				ID:                    Starter,
				Name:                  "Starter",
				Level:                 1,
				AllowDowngrade:        true,
				Tools:                 []string{"dashboard", "reports", "integrations"},
				Limits:                map[string]int64{"users": 10, "projects": 10, "storage_gb": 25},
				Permissions:           []string{"tenant.admin", "users.manage", "billing.view", "billing.manage"},
				MonthlyPrice:          "29.00",
				YearlyPrice:           "290.00",
				GatewayMonthlyPriceID: "price_starter_monthly",
				GatewayYearlyPriceID:  "price_starter_yearly",
			},
			{
				ID:                    Professional,
				Name:                  "Professional",
				Level:                 2,
				AllowDowngrade:        true,
				Tools:                 []string{"dashboard", "reports", "integrations", "automation", "api"},
				Limits:                map[string]int64{"users": 50, "projects": 100, "storage_gb": 250},
				Permissions:           []string{"tenant.admin", "users.manage", "billing.view", "billing.manage", "api.manage"},
				MonthlyPrice:          "100.00",
				YearlyPrice:           "1000.00",
				GatewayMonthlyPriceID: "price_professional_monthly",
				GatewayYearlyPriceID:  "price_professional_yearly",
			},
			{
				ID:                    Enterprise,
				Name:                  "Enterprise",
				Level:                 3,
				AllowDowngrade:        true,
				Tools:                 []string{"dashboard", "reports", "integrations", "automation", "api", "audit", "sso"},
				Limits:                map[string]int64{"users": 1000, "projects": 1000, "storage_gb": 2048},
				Permissions:           []string{"tenant.admin", "users.manage", "billing.view", "billing.manage", "api.manage", "audit.view", "sso.manage"},
				MonthlyPrice:          "299.00",
				YearlyPrice:           "2990.00",
				GatewayMonthlyPriceID: "price_enterprise_monthly",
				GatewayYearlyPriceID:  "price_enterprise_yearly",
			},
		},
	}
}
