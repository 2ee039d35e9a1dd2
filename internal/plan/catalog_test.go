package plan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogLevelsAreOrdered(t *testing.T) {
	catalog := DefaultCatalog()

	assert.Equal(t, 0, catalog.Level(Free))
	assert.Equal(t, 1, catalog.Level(Starter))
	assert.Equal(t, 2, catalog.Level(Professional))
	assert.Equal(t, 3, catalog.Level(Enterprise))
}

func TestCatalogLevelUnknownDefaultsToZero(t *testing.T) {
	catalog := DefaultCatalog()

	assert.Equal(t, 0, catalog.Level("no-such-plan"))
	assert.Equal(t, 0, catalog.Level(Trial))
	assert.Equal(t, 0, catalog.Level(""))
}

func TestLookupNormalizesID(t *testing.T) {
	catalog := DefaultCatalog()

	def, ok := catalog.Lookup("  Professional ")
	require.True(t, ok)
	assert.Equal(t, Professional, def.ID)
}

func TestDefinitionPrice(t *testing.T) {
	catalog := DefaultCatalog()
	def, ok := catalog.Lookup(Professional)
	require.True(t, ok)

	assert.True(t, def.Price(CycleMonthly).Equal(decimal.RequireFromString("100.00")))
	assert.True(t, def.Price(CycleYearly).Equal(decimal.RequireFromString("1000.00")))
}

func TestBillingCycleDays(t *testing.T) {
	assert.Equal(t, 30, CycleMonthly.Days())
	assert.Equal(t, 365, CycleYearly.Days())
}

func TestNormalizeCycle(t *testing.T) {
	assert.Equal(t, CycleYearly, NormalizeCycle("YEARLY"))
	assert.Equal(t, CycleYearly, NormalizeCycle("annual"))
	assert.Equal(t, CycleMonthly, NormalizeCycle("monthly"))
	assert.Equal(t, CycleMonthly, NormalizeCycle(""))
}

func TestValidateCatalogRejectsDuplicates(t *testing.T) {
	err := validateCatalog(Catalog{Plans: []Definition{{ID: "starter"}, {ID: "starter"}}})
	require.Error(t, err)
}
