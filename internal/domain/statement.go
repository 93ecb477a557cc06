package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessedReservation is one export row with its revenue fields derived.
// Computed fields are only ever written by the statement line processor.
type ProcessedReservation struct {
	SourceRow          int             `json:"sourceRow"`
	Channel            Channel         `json:"channel"`
	Portal             string          `json:"portal"`
	GuestName          string          `json:"guestName"`
	CheckIn            time.Time       `json:"checkIn"`
	CheckOut           time.Time       `json:"checkOut"`
	Nights             int             `json:"nights"`
	GuestCount         int             `json:"guestCount"`
	AmountPaidByGuest  decimal.Decimal `json:"amountPaidByGuest"`
	StayPrice          decimal.Decimal `json:"stayPrice"`
	CleaningFee        decimal.Decimal `json:"cleaningFee"`
	TouristTax         decimal.Decimal `json:"touristTax"`
	PlatformCommission decimal.Decimal `json:"platformCommission"`
	PaymentFee         decimal.Decimal `json:"paymentFee"`
	TaxZeroed          bool            `json:"taxZeroed"`

	GrossRevenue         decimal.Decimal `json:"grossRevenue"`
	NetPaidToOwner       decimal.Decimal `json:"netPaidToOwner"`
	OwnerNetRevenue      decimal.Decimal `json:"ownerNetRevenue"`
	ManagementCommission decimal.Decimal `json:"managementCommission"`
}

// RowEdit carries an admin correction to the inputs of a processed row.
// Nil fields are left unchanged. Computed amounts cannot be supplied.
type RowEdit struct {
	Channel            *string          `json:"channel,omitempty"`
	GuestName          *string          `json:"guestName,omitempty"`
	CheckIn            *string          `json:"checkIn,omitempty"`
	CheckOut           *string          `json:"checkOut,omitempty"`
	Nights             *int             `json:"nights,omitempty"`
	GuestCount         *int             `json:"guestCount,omitempty"`
	AmountPaidByGuest  *decimal.Decimal `json:"amountPaidByGuest,omitempty"`
	StayPrice          *decimal.Decimal `json:"stayPrice,omitempty"`
	CleaningFee        *decimal.Decimal `json:"cleaningFee,omitempty"`
	TouristTax         *decimal.Decimal `json:"touristTax,omitempty"`
	PlatformCommission *decimal.Decimal `json:"platformCommission,omitempty"`
	PaymentFee         *decimal.Decimal `json:"paymentFee,omitempty"`
}

// StatementTotals is the fold of every numeric field of a statement's rows.
type StatementTotals struct {
	ReservationCount        int             `json:"reservationCount"`
	TotalNights             int             `json:"totalNights"`
	TotalGuests             int             `json:"totalGuests"`
	TotalAmountPaid         decimal.Decimal `json:"totalAmountPaid"`
	TotalStayPrice          decimal.Decimal `json:"totalStayPrice"`
	TotalCleaningFee        decimal.Decimal `json:"totalCleaningFee"`
	TotalTouristTax         decimal.Decimal `json:"totalTouristTax"`
	TotalPlatformCommission decimal.Decimal `json:"totalPlatformCommission"`
	TotalPaymentFee         decimal.Decimal `json:"totalPaymentFee"`
	TotalGrossRevenue       decimal.Decimal `json:"totalGrossRevenue"`
	TotalNetPaidToOwner     decimal.Decimal `json:"totalNetPaidToOwner"`
	TotalOwnerNetRevenue    decimal.Decimal `json:"totalOwnerNetRevenue"`
	TotalCommission         decimal.Decimal `json:"totalCommission"`

	// OwnerCleaningFee is entered by the user, outside of the fold.
	OwnerCleaningFee decimal.Decimal `json:"ownerCleaningFee"`
	InvoiceTotal     decimal.Decimal `json:"invoiceTotal"`
}

// StatementRatios are derived indicators shown next to the totals.
type StatementRatios struct {
	AverageNightlyRate      decimal.Decimal `json:"averageNightlyRate"`
	EffectiveCommissionRate decimal.Decimal `json:"effectiveCommissionRate"`
	Occupancy               decimal.Decimal `json:"occupancy"`
	ObjectiveProgress       decimal.Decimal `json:"objectiveProgress"`
}

// ParseWarning records a row that was skipped or partially read.
type ParseWarning struct {
	Row     int    `json:"row"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Warning codes.
const (
	WarnShortRow     = "short_row"
	WarnInvalidDate  = "invalid_date"
	WarnDateOrder    = "date_order"
	WarnOwnerRow     = "owner_row"
	WarnInvalidValue = "invalid_value"
)

// StatementStatus is the lifecycle state of a statement.
type StatementStatus string

const (
	StatementDraft StatementStatus = "draft"
	StatementSaved StatementStatus = "saved"
	StatementSent  StatementStatus = "sent"
)

// Statement is a financial summary for one client over one period.
type Statement struct {
	ID                string                 `json:"id"`
	ClientID          string                 `json:"clientId"`
	Period            string                 `json:"period"`
	Status            StatementStatus        `json:"status"`
	Version           int                    `json:"version"`
	Dirty             bool                   `json:"dirty"`
	CommissionRate    decimal.Decimal        `json:"commissionRate"`
	Rows              []ProcessedReservation `json:"rows"`
	Totals            StatementTotals        `json:"totals"`
	Warnings          []ParseWarning         `json:"warnings,omitempty"`
	TaxZeroingApplied bool                   `json:"taxZeroingApplied"`
	SourceFile        string                 `json:"sourceFile,omitempty"`
	SourceChecksum    string                 `json:"sourceChecksum,omitempty"`
	SentTo            string                 `json:"sentTo,omitempty"`
	SentAt            *time.Time             `json:"sentAt,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// StatementSummary is the listing view of a persisted statement.
type StatementSummary struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"clientId"`
	Period       string          `json:"period"`
	Status       StatementStatus `json:"status"`
	Version      int             `json:"version"`
	InvoiceTotal decimal.Decimal `json:"invoiceTotal"`
	RowCount     int             `json:"rowCount"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Summary returns the listing view of s.
func (s *Statement) Summary() StatementSummary {
	return StatementSummary{
		ID:           s.ID,
		ClientID:     s.ClientID,
		Period:       s.Period,
		Status:       s.Status,
		Version:      s.Version,
		InvoiceTotal: s.Totals.InvoiceTotal,
		RowCount:     len(s.Rows),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// ImportRequest describes an uploaded booking export.
type ImportRequest struct {
	ClientID       string
	Period         string
	FileName       string
	Content        []byte
	CommissionRate *decimal.Decimal
}

// ImportReport summarises one import run.
type ImportReport struct {
	StatementID       string         `json:"statementId"`
	Sheet             string         `json:"sheet"`
	RowsRead          int            `json:"rowsRead"`
	RowsProcessed     int            `json:"rowsProcessed"`
	RowsSkipped       int            `json:"rowsSkipped"`
	OwnerRows         int            `json:"ownerRows"`
	TaxZeroingApplied bool           `json:"taxZeroingApplied"`
	SourceChecksum    string         `json:"sourceChecksum"`
	Warnings          []ParseWarning `json:"warnings"`
}

// ImportResult is returned by the import endpoint.
type ImportResult struct {
	Report    ImportReport `json:"report"`
	Statement *Statement   `json:"statement"`
}

// TransferGroup is the payout bucket for one payment source.
type TransferGroup struct {
	SourceKey    string                 `json:"sourceKey"`
	Reservations []ProcessedReservation `json:"reservations"`
	Gross        decimal.Decimal        `json:"gross"`
	Deducted     decimal.Decimal        `json:"deducted"`
	Total        decimal.Decimal        `json:"total"`
}

// TransferRequest selects rows and an optional invoice deduction source.
// An empty Rows selects every row of the statement.
type TransferRequest struct {
	Rows       []int  `json:"rows,omitempty"`
	DeductFrom string `json:"deductFrom,omitempty"`
}

// TransferAllocation is the full payout plan for a selection of rows.
type TransferAllocation struct {
	Groups       map[string]*TransferGroup `json:"groups"`
	Unassigned   []ProcessedReservation    `json:"unassigned,omitempty"`
	DeductedFrom string                    `json:"deductedFrom,omitempty"`
	InvoiceTotal decimal.Decimal           `json:"invoiceTotal"`
}

// SendRequest marks a statement as dispatched to a recipient.
type SendRequest struct {
	Recipient string `json:"recipient"`
}

// OwnerCleaningFeeRequest sets the user-entered cleaning fee override.
type OwnerCleaningFeeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// StatementView bundles a statement with its derived ratios.
type StatementView struct {
	*Statement
	Ratios StatementRatios `json:"ratios"`
}
