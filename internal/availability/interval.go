// Package availability detects date conflicts between a candidate stay and
// existing reservations of a room.
//
// Ranges are calendar days. A stay occupies every night from check-in up to,
// but not including, the check-out day, which stays free for turnover. A
// zero-night block (check-in == check-out) occupies its single day.
package availability

import (
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
)

// Day truncates t to its calendar day at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Overlaps reports whether the inclusive day ranges [aStart, aEnd] and
// [bStart, bEnd] share at least one day. It is commutative.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	aStart, aEnd, bStart, bEnd = Day(aStart), Day(aEnd), Day(bStart), Day(bEnd)
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// Occupied returns the inclusive range of days a stay from checkIn to
// checkOut blocks. ok is false when the dates are missing or inverted.
func Occupied(checkIn, checkOut time.Time) (start, end time.Time, ok bool) {
	if checkIn.IsZero() || checkOut.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	start, out := Day(checkIn), Day(checkOut)
	switch {
	case out.Before(start):
		return time.Time{}, time.Time{}, false
	case out.Equal(start):
		return start, start, true
	default:
		return start, out.AddDate(0, 0, -1), true
	}
}

// Nights returns the number of billable nights between two days.
// Zero-night blocks and malformed ranges count as 0.
func Nights(checkIn, checkOut time.Time) int {
	if checkIn.IsZero() || checkOut.IsZero() {
		return 0
	}
	n := int(Day(checkOut).Sub(Day(checkIn)).Hours() / 24)
	if n < 0 {
		return 0
	}
	return n
}

// wellFormed reports whether r carries usable stay dates.
func wellFormed(r domain.Reservation) bool {
	_, _, ok := Occupied(r.CheckIn, r.CheckOut)
	return ok
}
