package availability

import (
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
)

// Scan is the outcome of checking a candidate stay against a snapshot.
type Scan struct {
	// Conflicts are the reservations blocking at least one candidate day,
	// in snapshot order.
	Conflicts []domain.Reservation
	// Malformed are reservations of the room that were ignored because their
	// dates are missing or inverted.
	Malformed []domain.Reservation
}

// ScanRoom checks the candidate stay [checkIn, checkOut) of room against
// reservations. Cancelled reservations and the one identified by excludeID
// never conflict. The input slice is not modified.
func ScanRoom(room domain.Room, checkIn, checkOut time.Time, reservations []domain.Reservation, excludeID string) Scan {
	var scan Scan

	cs, ce, ok := Occupied(checkIn, checkOut)
	if !ok {
		return scan
	}

	for _, r := range reservations {
		if r.RoomExternalID != room.ExternalRoomID {
			continue
		}
		if r.Status == domain.StatusCancelled {
			continue
		}
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if !wellFormed(r) {
			scan.Malformed = append(scan.Malformed, r)
			continue
		}

		rs, re, _ := Occupied(r.CheckIn, r.CheckOut)
		if Overlaps(cs, ce, rs, re) {
			scan.Conflicts = append(scan.Conflicts, r)
		}
	}
	return scan
}

// CheckAvailability returns every reservation of room that collides with the
// candidate stay. An empty result means the dates are free.
func CheckAvailability(room domain.Room, checkIn, checkOut time.Time, reservations []domain.Reservation, excludeID string) []domain.Reservation {
	return ScanRoom(room, checkIn, checkOut, reservations, excludeID).Conflicts
}

// Report converts conflicting reservations into their human-readable form.
func Report(conflicts []domain.Reservation) []domain.Conflict {
	out := make([]domain.Conflict, 0, len(conflicts))
	for _, r := range conflicts {
		out = append(out, domain.NewConflict(r))
	}
	return out
}
