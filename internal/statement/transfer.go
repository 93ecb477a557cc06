package statement

import (
	"fmt"
	"strings"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Router maps a processed row onto a payment source. A row whose channel
// label contains a configured source key goes to that source; every other
// row goes to Default.
type Router struct {
	Sources []string
	Default string
}

// NewRouter builds a router over the configured sources. Keys are
// lower-cased and de-duplicated, order preserved.
func NewRouter(sources []string, defaultSource string) Router {
	seen := make(map[string]bool, len(sources))
	r := Router{Default: strings.ToLower(strings.TrimSpace(defaultSource))}
	for _, s := range sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		r.Sources = append(r.Sources, s)
	}
	return r
}

// Route returns the source key for row. The key may be one that is not
// configured, in which case the allocation leaves the row unassigned.
func (r Router) Route(row domain.ProcessedReservation) string {
	label := strings.ToLower(string(row.Channel) + " " + row.Portal)
	for _, s := range r.Sources {
		if s != r.Default && strings.Contains(label, s) {
			return s
		}
	}
	return r.Default
}

func (r Router) configured(key string) bool {
	for _, s := range r.Sources {
		if s == key {
			return true
		}
	}
	return false
}

// SelectRows returns the rows at the given indexes, in index order of the
// request. An empty selection returns every row.
func SelectRows(rows []domain.ProcessedReservation, indexes []int) ([]domain.ProcessedReservation, error) {
	if len(indexes) == 0 {
		return rows, nil
	}
	seen := make(map[int]bool, len(indexes))
	out := make([]domain.ProcessedReservation, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(rows) {
			return nil, &domain.ErrValidation{Field: "rows", Message: fmt.Sprintf("row index %d out of range", i)}
		}
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, rows[i])
	}
	return out, nil
}

// Allocate groups the selected rows by payment source and sums what is owed
// to the owner per source. When deductFrom is set the invoice total is taken
// off that one group only. Rows routed to a source that is not configured
// are listed in Unassigned and count toward no group.
func Allocate(selected []domain.ProcessedReservation, router Router, deductFrom string, invoiceTotal decimal.Decimal) (*domain.TransferAllocation, error) {
	deductFrom = strings.ToLower(strings.TrimSpace(deductFrom))
	if deductFrom != "" && !router.configured(deductFrom) {
		return nil, &domain.ErrValidation{Field: "deductFrom", Message: fmt.Sprintf("unknown payment source %q", deductFrom)}
	}

	alloc := &domain.TransferAllocation{
		Groups:       make(map[string]*domain.TransferGroup, len(router.Sources)),
		InvoiceTotal: invoiceTotal,
	}
	for _, s := range router.Sources {
		alloc.Groups[s] = &domain.TransferGroup{
			SourceKey:    s,
			Reservations: []domain.ProcessedReservation{},
			Gross:        decimal.Zero,
			Deducted:     decimal.Zero,
			Total:        decimal.Zero,
		}
	}

	for _, row := range selected {
		g, ok := alloc.Groups[router.Route(row)]
		if !ok {
			alloc.Unassigned = append(alloc.Unassigned, row)
			continue
		}
		g.Reservations = append(g.Reservations, row)
		g.Gross = g.Gross.Add(row.NetPaidToOwner)
	}

	for key, g := range alloc.Groups {
		if key == deductFrom {
			g.Deducted = invoiceTotal
			alloc.DeductedFrom = key
		}
		g.Total = g.Gross.Sub(g.Deducted)
	}
	return alloc, nil
}
