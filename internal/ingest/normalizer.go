// Package ingest turns heterogeneous booking data (reservation-source JSON
// and booking-export spreadsheets) into canonical reservations.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Column positions of the booking export (0-indexed).
const (
	ColCheckIn            = 2
	ColCheckOut           = 3
	ColNights             = 4
	ColGuests             = 7
	ColChannel            = 16
	ColGuestName          = 18
	ColTotalPaid          = 22
	ColStayPrice          = 23
	ColTouristTax         = 24
	ColCleaningFee        = 25
	ColPlatformCommission = 38
	ColPaymentFee         = 39

	// ExportWidth is the minimum number of cells of a usable export row.
	ExportWidth = 40
)

// DefaultSheetLayouts are the date formats accepted in export cells.
var DefaultSheetLayouts = []string{"02/01/2006", domain.DateLayout, "02-01-2006", "2/1/2006"}

// apiLayouts are the formats accepted from the reservation source.
var apiLayouts = []string{domain.DateLayout, time.RFC3339, "2006-01-02T15:04:05"}

// ExportRow is a booking-export row whose width has been checked. Cells are
// still raw text; the normalizer interprets them.
type ExportRow struct {
	Number             int
	CheckIn            string
	CheckOut           string
	Nights             string
	Guests             string
	Channel            string
	GuestName          string
	TotalPaid          string
	StayPrice          string
	TouristTax         string
	CleaningFee        string
	PlatformCommission string
	PaymentFee         string
}

// ParseExportRow maps the cells of spreadsheet row number n onto the export
// schema. Rows narrower than ExportWidth yield a short-row warning.
func ParseExportRow(n int, cells []string) (ExportRow, *domain.ParseWarning) {
	if len(cells) < ExportWidth {
		return ExportRow{}, &domain.ParseWarning{
			Row:     n,
			Code:    domain.WarnShortRow,
			Message: fmt.Sprintf("row has %d columns, %d required", len(cells), ExportWidth),
		}
	}
	return ExportRow{
		Number:             n,
		CheckIn:            cells[ColCheckIn],
		CheckOut:           cells[ColCheckOut],
		Nights:             cells[ColNights],
		Guests:             cells[ColGuests],
		Channel:            cells[ColChannel],
		GuestName:          cells[ColGuestName],
		TotalPaid:          cells[ColTotalPaid],
		StayPrice:          cells[ColStayPrice],
		TouristTax:         cells[ColTouristTax],
		CleaningFee:        cells[ColCleaningFee],
		PlatformCommission: cells[ColPlatformCommission],
		PaymentFee:         cells[ColPaymentFee],
	}, nil
}

// RawValue is a JSON scalar the reservation source may send either as a
// string or as a number.
type RawValue string

// UnmarshalJSON accepts strings, numbers and null.
func (v *RawValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}
	*v = RawValue(b)
	return nil
}

// RawReservation is a reservation record as returned by the reservation source.
type RawReservation struct {
	ID                 RawValue `json:"id"`
	RoomID             RawValue `json:"room_id"`
	GuestName          string   `json:"guest_name"`
	CheckIn            string   `json:"check_in"`
	CheckOut           string   `json:"check_out"`
	Status             string   `json:"status"`
	Channel            string   `json:"channel"`
	AmountPaid         RawValue `json:"amount_paid"`
	PlatformCommission RawValue `json:"platform_commission"`
	PaymentFee         RawValue `json:"payment_fee"`
	StayPrice          RawValue `json:"stay_price"`
	CleaningFee        RawValue `json:"cleaning_fee"`
	TouristTax         RawValue `json:"tourist_tax"`
	Nights             RawValue `json:"nights"`
	Guests             RawValue `json:"guests"`
}

// Normalizer converts raw records into canonical reservations.
type Normalizer struct {
	sheetLayouts []string
}

// NewNormalizer creates a normalizer. With no layouts the export cells are
// read with DefaultSheetLayouts.
func NewNormalizer(sheetLayouts ...string) *Normalizer {
	if len(sheetLayouts) == 0 {
		sheetLayouts = DefaultSheetLayouts
	}
	return &Normalizer{sheetLayouts: sheetLayouts}
}

// FromAPI normalizes a reservation-source record. A warning is returned
// instead of a reservation when the dates are unusable.
func (n *Normalizer) FromAPI(rec RawReservation) (domain.Reservation, *domain.ParseWarning) {
	id := strings.TrimSpace(string(rec.ID))
	in, okIn := ParseDay(rec.CheckIn, apiLayouts)
	out, okOut := ParseDay(rec.CheckOut, apiLayouts)

	r := domain.Reservation{
		ID:             id,
		RoomExternalID: strings.TrimSpace(string(rec.RoomID)),
		GuestName:      cleanText(rec.GuestName),
		ChannelLabel:   cleanText(rec.Channel),
		CheckIn:        in,
		CheckOut:       out,
		Status:         ParseStatus(rec.Status),
		Channel:        ParseChannel(rec.Channel),
	}
	r.AmountPaidByGuest, _ = ParseAmount(string(rec.AmountPaid))
	r.PlatformCommission, _ = ParseAmount(string(rec.PlatformCommission))
	r.PaymentProcessingFee, _ = ParseAmount(string(rec.PaymentFee))
	r.StayPrice, _ = ParseAmount(string(rec.StayPrice))
	r.CleaningFee, _ = ParseAmount(string(rec.CleaningFee))
	r.TouristTax, _ = ParseAmount(string(rec.TouristTax))
	r.GuestCount, _ = ParseCount(string(rec.Guests))

	if w := checkDates(0, okIn, okOut, in, out); w != nil {
		w.Message = fmt.Sprintf("reservation %s: %s", id, w.Message)
		return r, w
	}
	r.Nights = nightsFor(string(rec.Nights), in, out)
	return r, nil
}

// FromExportRow normalizes a booking-export row. ok is false for owner
// placeholder rows and rows with unusable dates, which are skipped. Non-numeric
// amounts are read as zero and reported alongside the reservation.
func (n *Normalizer) FromExportRow(row ExportRow) (r domain.Reservation, ok bool, warnings []domain.ParseWarning) {
	guest := cleanText(row.GuestName)
	if IsOwnerPlaceholder(guest) {
		return r, false, []domain.ParseWarning{{
			Row:     row.Number,
			Code:    domain.WarnOwnerRow,
			Field:   "guestName",
			Message: "owner placeholder row skipped",
		}}
	}

	in, okIn := ParseDay(row.CheckIn, n.sheetLayouts)
	out, okOut := ParseDay(row.CheckOut, n.sheetLayouts)
	if w := checkDates(row.Number, okIn, okOut, in, out); w != nil {
		return r, false, []domain.ParseWarning{*w}
	}

	r = domain.Reservation{
		ID:           fmt.Sprintf("row-%d", row.Number),
		GuestName:    guest,
		ChannelLabel: cleanText(row.Channel),
		CheckIn:      in,
		CheckOut:     out,
		Status:       domain.StatusConfirmed,
		Channel:      ParseChannel(row.Channel),
		Nights:       nightsFor(row.Nights, in, out),
	}

	amount := func(field, raw string) decimal.Decimal {
		d, ok := ParseAmount(raw)
		if !ok {
			warnings = append(warnings, invalidValue(row.Number, field, raw))
		}
		return d
	}
	r.AmountPaidByGuest = amount("totalPaid", row.TotalPaid)
	r.StayPrice = amount("stayPrice", row.StayPrice)
	r.TouristTax = amount("touristTax", row.TouristTax)
	r.CleaningFee = amount("cleaningFee", row.CleaningFee)
	r.PlatformCommission = amount("platformCommission", row.PlatformCommission)
	r.PaymentProcessingFee = amount("paymentFee", row.PaymentFee)

	guests, valid := ParseCount(row.Guests)
	if !valid {
		warnings = append(warnings, invalidValue(row.Number, "guestCount", row.Guests))
	}
	r.GuestCount = guests

	return r, true, warnings
}

func checkDates(row int, okIn, okOut bool, in, out time.Time) *domain.ParseWarning {
	switch {
	case !okIn:
		return &domain.ParseWarning{Row: row, Code: domain.WarnInvalidDate, Field: "checkIn", Message: "missing or unparseable check-in date"}
	case !okOut:
		return &domain.ParseWarning{Row: row, Code: domain.WarnInvalidDate, Field: "checkOut", Message: "missing or unparseable check-out date"}
	case out.Before(in):
		return &domain.ParseWarning{Row: row, Code: domain.WarnDateOrder, Field: "checkOut", Message: "check-out is before check-in"}
	}
	return nil
}

// nightsFor prefers the declared count and falls back to the date span.
// Zero-night blocks always count 0.
func nightsFor(raw string, in, out time.Time) int {
	if in.Equal(out) {
		return 0
	}
	if n, ok := ParseCount(raw); ok && n > 0 {
		return n
	}
	return int(out.Sub(in).Hours() / 24)
}

func invalidValue(row int, field, raw string) domain.ParseWarning {
	return domain.ParseWarning{
		Row:     row,
		Code:    domain.WarnInvalidValue,
		Field:   field,
		Message: fmt.Sprintf("non-numeric value %q read as 0", raw),
	}
}
