package statement_test

import (
	"testing"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/statement"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func derived(channel domain.Channel, portal string, nights, guests int, stay, cleaning, tax, commission, fee string, rate string) domain.ProcessedReservation {
	return statement.Derive(domain.ProcessedReservation{
		Channel:            channel,
		Portal:             portal,
		Nights:             nights,
		GuestCount:         guests,
		StayPrice:          dec(stay),
		CleaningFee:        dec(cleaning),
		TouristTax:         dec(tax),
		PlatformCommission: dec(commission),
		PaymentFee:         dec(fee),
	}, dec(rate))
}

func threeRows() []domain.ProcessedReservation {
	return []domain.ProcessedReservation{
		derived(domain.ChannelAirbnb, "Airbnb", 4, 2, "100", "20", "5", "10", "2", "0.26"),
		derived(domain.ChannelDirect, "Site", 3, 4, "333.33", "40", "6.60", "0", "9.99", "0.26"),
		derived(domain.ChannelBooking, "Booking.com", 1, 1, "79.90", "15", "1.65", "12.35", "0", "0.26"),
	}
}

func TestRecalculate_FoldCorrectness(t *testing.T) {
	rows := threeRows()
	totals := statement.Recalculate(rows)

	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.ManagementCommission)
	}
	assert.True(t, totals.TotalCommission.Equal(sum), "%s != %s", totals.TotalCommission, sum)

	assert.Equal(t, 3, totals.ReservationCount)
	assert.Equal(t, 8, totals.TotalNights)
	assert.Equal(t, 7, totals.TotalGuests)
	assert.Equal(t, "513.23", totals.TotalStayPrice.String())
	assert.Equal(t, "75", totals.TotalCleaningFee.String())
	assert.Equal(t, "6.6", totals.TotalTouristTax.String(), "airbnb and booking taxes are zeroed")
	assert.True(t, totals.InvoiceTotal.Equal(totals.TotalCommission.Add(totals.TotalCleaningFee)))
}

func TestRecalculate_Idempotent(t *testing.T) {
	rows := threeRows()
	assert.Equal(t, statement.Recalculate(rows), statement.Recalculate(rows))
}

func TestRecalculate_Empty(t *testing.T) {
	totals := statement.Recalculate(nil)

	assert.Zero(t, totals.ReservationCount)
	assert.Zero(t, totals.TotalNights)
	assert.Zero(t, totals.TotalGuests)
	for _, d := range []decimal.Decimal{
		totals.TotalAmountPaid, totals.TotalStayPrice, totals.TotalCleaningFee,
		totals.TotalTouristTax, totals.TotalPlatformCommission, totals.TotalPaymentFee,
		totals.TotalGrossRevenue, totals.TotalNetPaidToOwner, totals.TotalOwnerNetRevenue,
		totals.TotalCommission, totals.OwnerCleaningFee, totals.InvoiceTotal,
	} {
		assert.True(t, d.IsZero())
	}
}

func TestWithOwnerCleaningFee_DoesNotRefold(t *testing.T) {
	totals := statement.Recalculate(threeRows())
	before := totals

	updated := statement.WithOwnerCleaningFee(totals, dec("45"))
	assert.Equal(t, "45", updated.OwnerCleaningFee.String())
	assert.True(t, updated.InvoiceTotal.Equal(before.InvoiceTotal.Add(dec("45"))))
	assert.True(t, updated.TotalCommission.Equal(before.TotalCommission))
	assert.True(t, before.OwnerCleaningFee.IsZero(), "input totals are not mutated")
}

func TestRatios(t *testing.T) {
	totals := statement.Recalculate([]domain.ProcessedReservation{
		derived(domain.ChannelDirect, "Site", 4, 2, "400", "0", "0", "0", "0", "0.25"),
	})

	r := statement.Ratios(totals, 31, dec("800"))
	assert.Equal(t, "100", r.AverageNightlyRate.String())
	assert.Equal(t, "0.25", r.EffectiveCommissionRate.String())
	assert.Equal(t, "0.129", r.Occupancy.String())
	assert.Equal(t, "0.5", r.ObjectiveProgress.String())
}

func TestRatios_ZeroDenominators(t *testing.T) {
	r := statement.Ratios(statement.Recalculate(nil), 0, decimal.Zero)
	assert.True(t, r.AverageNightlyRate.IsZero())
	assert.True(t, r.EffectiveCommissionRate.IsZero())
	assert.True(t, r.Occupancy.IsZero())
	assert.True(t, r.ObjectiveProgress.IsZero())
}

func TestPeriodDays(t *testing.T) {
	assert.Equal(t, 31, statement.PeriodDays("2025-01"))
	assert.Equal(t, 29, statement.PeriodDays("2024-02"))
	assert.Equal(t, 0, statement.PeriodDays("Q1 2025"))
}

func TestAllocate(t *testing.T) {
	rows := threeRows()
	router := statement.NewRouter([]string{"Stripe", "airbnb", "stripe"}, "stripe")
	require.Equal(t, []string{"stripe", "airbnb"}, router.Sources)

	alloc, err := statement.Allocate(rows, router, "", dec("50"))
	require.NoError(t, err)
	require.Len(t, alloc.Groups, 2)

	airbnb := alloc.Groups["airbnb"]
	stripe := alloc.Groups["stripe"]
	require.Len(t, airbnb.Reservations, 1)
	require.Len(t, stripe.Reservations, 2)
	assert.True(t, airbnb.Total.Equal(rows[0].NetPaidToOwner))
	assert.True(t, stripe.Total.Equal(rows[1].NetPaidToOwner.Add(rows[2].NetPaidToOwner)))
	assert.Empty(t, alloc.DeductedFrom)
	assert.Empty(t, alloc.Unassigned)
}

func TestAllocate_DeductsFromExactlyOneSource(t *testing.T) {
	rows := threeRows()
	router := statement.NewRouter([]string{"stripe", "airbnb"}, "stripe")

	alloc, err := statement.Allocate(rows, router, "AIRBNB", dec("50"))
	require.NoError(t, err)
	assert.Equal(t, "airbnb", alloc.DeductedFrom)

	airbnb := alloc.Groups["airbnb"]
	assert.Equal(t, "50", airbnb.Deducted.String())
	assert.True(t, airbnb.Total.Equal(airbnb.Gross.Sub(dec("50"))))

	stripe := alloc.Groups["stripe"]
	assert.True(t, stripe.Deducted.IsZero())
	assert.True(t, stripe.Total.Equal(stripe.Gross))
}

func TestAllocate_UnknownDeductionSource(t *testing.T) {
	_, err := statement.Allocate(threeRows(), statement.NewRouter([]string{"stripe"}, "stripe"), "paypal", dec("1"))
	assert.Error(t, err)
}

func TestAllocate_UnassignedRows(t *testing.T) {
	rows := threeRows()
	router := statement.NewRouter([]string{"airbnb"}, "stripe")

	alloc, err := statement.Allocate(rows, router, "", decimal.Zero)
	require.NoError(t, err)
	assert.Len(t, alloc.Groups["airbnb"].Reservations, 1)
	assert.Len(t, alloc.Unassigned, 2)
	_, hasStripe := alloc.Groups["stripe"]
	assert.False(t, hasStripe)
}

func TestAllocate_EmptyGroupsForEverySource(t *testing.T) {
	alloc, err := statement.Allocate(nil, statement.NewRouter([]string{"stripe", "airbnb"}, "stripe"), "stripe", dec("10"))
	require.NoError(t, err)
	assert.Len(t, alloc.Groups, 2)
	assert.Equal(t, "-10", alloc.Groups["stripe"].Total.String())
	assert.True(t, alloc.Groups["airbnb"].Total.IsZero())
}

func TestSelectRows(t *testing.T) {
	rows := threeRows()

	all, err := statement.SelectRows(rows, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := statement.SelectRows(rows, []int{2, 0, 2})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, domain.ChannelBooking, some[0].Channel)

	_, err = statement.SelectRows(rows, []int{3})
	assert.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	s := &domain.Statement{Status: domain.StatementDraft, Rows: threeRows()}
	statement.Recompute(s, now)
	assert.False(t, s.Dirty, "drafts are never dirty")

	err := statement.MarkSent(s, "owner@example.com", now)
	require.Error(t, err, "drafts cannot be sent")

	require.NoError(t, statement.Save(s, now))
	assert.Equal(t, domain.StatementSaved, s.Status)
	assert.Equal(t, 1, s.Version)
	assert.Error(t, statement.CanDiscard(s))

	s.Totals = statement.WithOwnerCleaningFee(s.Totals, dec("30"))
	statement.Recompute(s, now.Add(time.Minute))
	assert.True(t, s.Dirty)
	assert.Equal(t, "30", s.Totals.OwnerCleaningFee.String(), "fee survives a refold")
	assert.Error(t, statement.MarkSent(s, "owner@example.com", now), "unsaved edits block sending")

	require.NoError(t, statement.Save(s, now.Add(2*time.Minute)))
	assert.Equal(t, 2, s.Version)
	assert.False(t, s.Dirty)

	require.Error(t, statement.MarkSent(s, "", now))
	require.NoError(t, statement.MarkSent(s, "owner@example.com", now.Add(3*time.Minute)))
	assert.Equal(t, domain.StatementSent, s.Status)
	assert.Equal(t, "owner@example.com", s.SentTo)
	require.NotNil(t, s.SentAt)
	assert.Equal(t, 3, s.Version)

	require.NoError(t, statement.Save(s, now.Add(4*time.Minute)))
	assert.Equal(t, domain.StatementSent, s.Status, "sent statements stay sent after an update")
	assert.Equal(t, 4, s.Version)
}

func TestCanDiscard_Draft(t *testing.T) {
	assert.NoError(t, statement.CanDiscard(&domain.Statement{Status: domain.StatementDraft}))
}
