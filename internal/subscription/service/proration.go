package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// daysRemaining counts whole days until end, rounding partial days up.
// Returns 0 when end is in the past.
func daysRemaining(now, end time.Time) int {
	if !end.After(now) {
		return 0
	}
	remaining := end.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// prorationRatio returns remainingDays/totalDays clamped to [0,1].
func prorationRatio(remainingDays, totalDays int) decimal.Decimal {
	if totalDays <= 0 || remainingDays <= 0 {
		return decimal.Zero
	}
	if remainingDays >= totalDays {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(int64(remainingDays)).Div(decimal.NewFromInt(int64(totalDays)))
}

// prorationAmount computes the unused portion of cycleAmount, rounded to
// two decimal places.
func prorationAmount(cycleAmount decimal.Decimal, remainingDays, totalDays int) decimal.Decimal {
	return cycleAmount.Mul(prorationRatio(remainingDays, totalDays)).Round(2)
}
