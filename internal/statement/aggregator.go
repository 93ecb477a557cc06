package statement

import (
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Recalculate folds every numeric field of rows into fresh totals. The owner
// cleaning fee is not part of the fold; see WithOwnerCleaningFee.
func Recalculate(rows []domain.ProcessedReservation) domain.StatementTotals {
	t := domain.StatementTotals{
		TotalAmountPaid:         decimal.Zero,
		TotalStayPrice:          decimal.Zero,
		TotalCleaningFee:        decimal.Zero,
		TotalTouristTax:         decimal.Zero,
		TotalPlatformCommission: decimal.Zero,
		TotalPaymentFee:         decimal.Zero,
		TotalGrossRevenue:       decimal.Zero,
		TotalNetPaidToOwner:     decimal.Zero,
		TotalOwnerNetRevenue:    decimal.Zero,
		TotalCommission:         decimal.Zero,
	}

	for _, r := range rows {
		t.ReservationCount++
		t.TotalNights += r.Nights
		t.TotalGuests += r.GuestCount
		t.TotalAmountPaid = t.TotalAmountPaid.Add(r.AmountPaidByGuest)
		t.TotalStayPrice = t.TotalStayPrice.Add(r.StayPrice)
		t.TotalCleaningFee = t.TotalCleaningFee.Add(r.CleaningFee)
		t.TotalTouristTax = t.TotalTouristTax.Add(r.TouristTax)
		t.TotalPlatformCommission = t.TotalPlatformCommission.Add(r.PlatformCommission)
		t.TotalPaymentFee = t.TotalPaymentFee.Add(r.PaymentFee)
		t.TotalGrossRevenue = t.TotalGrossRevenue.Add(r.GrossRevenue)
		t.TotalNetPaidToOwner = t.TotalNetPaidToOwner.Add(r.NetPaidToOwner)
		t.TotalOwnerNetRevenue = t.TotalOwnerNetRevenue.Add(r.OwnerNetRevenue)
		t.TotalCommission = t.TotalCommission.Add(r.ManagementCommission)
	}

	return WithOwnerCleaningFee(t, decimal.Zero)
}

// WithOwnerCleaningFee sets the user-entered fee and re-derives InvoiceTotal
// without refolding the rows.
func WithOwnerCleaningFee(t domain.StatementTotals, fee decimal.Decimal) domain.StatementTotals {
	t.OwnerCleaningFee = fee
	t.InvoiceTotal = t.TotalCommission.Add(t.TotalCleaningFee).Add(fee)
	return t
}

// Ratios derives the indicators shown next to the totals. periodDays is the
// number of days the statement covers and objective the revenue target; any
// ratio whose denominator is zero is reported as zero.
func Ratios(t domain.StatementTotals, periodDays int, objective decimal.Decimal) domain.StatementRatios {
	return domain.StatementRatios{
		AverageNightlyRate:      safeDiv(t.TotalStayPrice, decimal.NewFromInt(int64(t.TotalNights))).Round(moneyPlaces),
		EffectiveCommissionRate: safeDiv(t.TotalCommission, t.TotalOwnerNetRevenue).Round(4),
		Occupancy:               safeDiv(decimal.NewFromInt(int64(t.TotalNights)), decimal.NewFromInt(int64(periodDays))).Round(4),
		ObjectiveProgress:       safeDiv(t.TotalGrossRevenue, objective).Round(4),
	}
}

func safeDiv(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, moneyPlaces+2)
}

// PeriodDays returns the number of days of a "YYYY-MM" period, or 0 when the
// period is not a month.
func PeriodDays(period string) int {
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return 0
	}
	return int(start.AddDate(0, 1, 0).Sub(start).Hours() / 24)
}
