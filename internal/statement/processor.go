// Package statement derives owner statements from booking exports: per-row
// revenue, totals, payout transfers and the statement lifecycle. Everything
// here is pure and works on snapshots passed in by the caller.
package statement

import (
	"fmt"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/ingest"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the rounding applied to derived commission amounts.
const moneyPlaces = 2

// ValidateRate checks a commission rate is a fraction in [0, 1].
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return &domain.ErrValidation{Field: "commissionRate", Message: fmt.Sprintf("must be between 0 and 1, got %s", rate)}
	}
	return nil
}

// Batch is the outcome of processing every data row of a sheet.
type Batch struct {
	Rows              []domain.ProcessedReservation
	Warnings          []domain.ParseWarning
	RowsRead          int
	OwnerRows         int
	Skipped           int
	TaxZeroingApplied bool
}

// LineProcessor turns export rows into processed reservations.
type LineProcessor struct {
	normalizer *ingest.Normalizer
	rate       decimal.Decimal
}

// NewLineProcessor creates a processor applying commissionRate to every row.
func NewLineProcessor(normalizer *ingest.Normalizer, commissionRate decimal.Decimal) (*LineProcessor, error) {
	if err := ValidateRate(commissionRate); err != nil {
		return nil, err
	}
	if normalizer == nil {
		normalizer = ingest.NewNormalizer()
	}
	return &LineProcessor{normalizer: normalizer, rate: commissionRate}, nil
}

// ProcessRow derives spreadsheet row n. ok is false when the row is skipped;
// the warnings then say why. A kept row may still carry warnings for
// unreadable numeric cells.
func (p *LineProcessor) ProcessRow(n int, cells []string) (domain.ProcessedReservation, bool, []domain.ParseWarning) {
	row, w := ingest.ParseExportRow(n, cells)
	if w != nil {
		return domain.ProcessedReservation{}, false, []domain.ParseWarning{*w}
	}

	r, ok, warnings := p.normalizer.FromExportRow(row)
	if !ok {
		return domain.ProcessedReservation{}, false, warnings
	}

	pr := domain.ProcessedReservation{
		SourceRow:          n,
		Channel:            r.Channel,
		Portal:             r.ChannelLabel,
		GuestName:          r.GuestName,
		CheckIn:            r.CheckIn,
		CheckOut:           r.CheckOut,
		Nights:             r.Nights,
		GuestCount:         r.GuestCount,
		AmountPaidByGuest:  r.AmountPaidByGuest,
		StayPrice:          r.StayPrice,
		CleaningFee:        r.CleaningFee,
		TouristTax:         r.TouristTax,
		PlatformCommission: r.PlatformCommission,
		PaymentFee:         r.PaymentProcessingFee,
	}
	return Derive(pr, p.rate), true, warnings
}

// ProcessBatch processes every row after the header. Spreadsheet rows are
// numbered from 1, so the first data row is row 2.
func (p *LineProcessor) ProcessBatch(rows [][]string) Batch {
	var b Batch
	if len(rows) < 2 {
		return b
	}
	for i, cells := range rows[1:] {
		n := i + 2
		b.RowsRead++

		pr, ok, warnings := p.ProcessRow(n, cells)
		b.Warnings = append(b.Warnings, warnings...)
		if !ok {
			b.Skipped++
			if len(warnings) > 0 && warnings[0].Code == domain.WarnOwnerRow {
				b.OwnerRows++
			}
			continue
		}
		if pr.TaxZeroed {
			b.TaxZeroingApplied = true
		}
		b.Rows = append(b.Rows, pr)
	}
	return b
}

// Derive applies the channel tax rule to r and recomputes every derived
// amount from its inputs. Previously computed values are ignored.
//
//	gross      = stay + cleaning + tax
//	net        = gross - platform commission - payment fee
//	owner net  = net - cleaning - tax
//	commission = owner net * rate
func Derive(r domain.ProcessedReservation, rate decimal.Decimal) domain.ProcessedReservation {
	if r.Channel.CollectsTouristTax() {
		if !r.TouristTax.IsZero() {
			r.TaxZeroed = true
		}
		r.TouristTax = decimal.Zero
	} else {
		r.TaxZeroed = false
	}

	r.GrossRevenue = r.StayPrice.Add(r.CleaningFee).Add(r.TouristTax)
	r.NetPaidToOwner = r.GrossRevenue.Sub(r.PlatformCommission).Sub(r.PaymentFee)
	r.OwnerNetRevenue = r.NetPaidToOwner.Sub(r.CleaningFee).Sub(r.TouristTax)
	r.ManagementCommission = r.OwnerNetRevenue.Mul(rate).Round(moneyPlaces)
	return r
}

// ApplyEdit applies an admin correction to row and re-derives it. Dates in
// the edit are read with layouts, falling back to domain.DateLayout.
func ApplyEdit(row domain.ProcessedReservation, edit domain.RowEdit, rate decimal.Decimal, layouts ...string) (domain.ProcessedReservation, error) {
	if len(layouts) == 0 {
		layouts = []string{domain.DateLayout}
	}

	if edit.Channel != nil {
		row.Portal = *edit.Channel
		row.Channel = ingest.ParseChannel(*edit.Channel)
	}
	if edit.GuestName != nil {
		if ingest.IsOwnerPlaceholder(*edit.GuestName) {
			return row, &domain.ErrValidation{Field: "guestName", Message: "owner placeholder cannot be a statement row"}
		}
		row.GuestName = *edit.GuestName
	}

	datesChanged := false
	if edit.CheckIn != nil {
		d, ok := ingest.ParseDay(*edit.CheckIn, layouts)
		if !ok {
			return row, &domain.ErrValidation{Field: "checkIn", Message: "invalid date"}
		}
		row.CheckIn, datesChanged = d, true
	}
	if edit.CheckOut != nil {
		d, ok := ingest.ParseDay(*edit.CheckOut, layouts)
		if !ok {
			return row, &domain.ErrValidation{Field: "checkOut", Message: "invalid date"}
		}
		row.CheckOut, datesChanged = d, true
	}
	if row.CheckOut.Before(row.CheckIn) {
		return row, &domain.ErrValidation{Field: "checkOut", Message: "check-out is before check-in"}
	}

	switch {
	case edit.Nights != nil:
		if *edit.Nights < 0 {
			return row, &domain.ErrValidation{Field: "nights", Message: "must not be negative"}
		}
		row.Nights = *edit.Nights
	case datesChanged:
		row.Nights = spanNights(row.CheckIn, row.CheckOut)
	}
	if row.CheckIn.Equal(row.CheckOut) {
		row.Nights = 0
	}

	if edit.GuestCount != nil {
		if *edit.GuestCount < 0 {
			return row, &domain.ErrValidation{Field: "guestCount", Message: "must not be negative"}
		}
		row.GuestCount = *edit.GuestCount
	}

	for _, a := range []struct {
		src *decimal.Decimal
		dst *decimal.Decimal
	}{
		{edit.AmountPaidByGuest, &row.AmountPaidByGuest},
		{edit.StayPrice, &row.StayPrice},
		{edit.CleaningFee, &row.CleaningFee},
		{edit.TouristTax, &row.TouristTax},
		{edit.PlatformCommission, &row.PlatformCommission},
		{edit.PaymentFee, &row.PaymentFee},
	} {
		if a.src != nil {
			*a.dst = *a.src
		}
	}

	// Keep the flag when the tax was already zeroed on import.
	zeroed := row.TaxZeroed
	row = Derive(row, rate)
	if zeroed && row.Channel.CollectsTouristTax() {
		row.TaxZeroed = true
	}
	return row, nil
}

func spanNights(in, out time.Time) int {
	return int(out.Sub(in).Hours() / 24)
}
