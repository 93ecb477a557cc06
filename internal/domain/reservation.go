package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar days (check-in, check-out, periods).
const DateLayout = "2006-01-02"

// Room is a rentable unit owned by a user account.
type Room struct {
	ID             string `json:"id"`
	ExternalRoomID string `json:"externalRoomId"`
	Name           string `json:"name"`
	OwnerID        string `json:"ownerId,omitempty"`
}

// ReservationStatus is the booking state reported by the reservation source.
type ReservationStatus string

const (
	StatusConfirmed  ReservationStatus = "confirmed"
	StatusPending    ReservationStatus = "pending"
	StatusCancelled  ReservationStatus = "cancelled"
	StatusOwnerBlock ReservationStatus = "owner_block"
	StatusUnknown    ReservationStatus = "unknown"
)

// Channel is the booking platform a reservation originated from.
type Channel string

const (
	ChannelAirbnb      Channel = "airbnb"
	ChannelBooking     Channel = "booking"
	ChannelAbritel     Channel = "abritel"
	ChannelDirect      Channel = "direct"
	ChannelOwnerDirect Channel = "owner_direct"
	ChannelUnknown     Channel = "unknown"
)

// CollectsTouristTax reports whether the platform collects and remits the
// tourist tax itself, in which case the tax never reaches the owner.
func (c Channel) CollectsTouristTax() bool {
	return c == ChannelAirbnb || c == ChannelBooking
}

// Reservation is the canonical reservation shape produced by the normalizer.
// CheckIn and CheckOut are calendar days at UTC midnight.
type Reservation struct {
	ID                   string            `json:"id"`
	RoomExternalID       string            `json:"roomExternalId"`
	GuestName            string            `json:"guestName"`
	ChannelLabel         string            `json:"channelLabel,omitempty"`
	CheckIn              time.Time         `json:"checkIn"`
	CheckOut             time.Time         `json:"checkOut"`
	Status               ReservationStatus `json:"status"`
	Channel              Channel           `json:"channel"`
	AmountPaidByGuest    decimal.Decimal   `json:"amountPaidByGuest"`
	PlatformCommission   decimal.Decimal   `json:"platformCommission"`
	PaymentProcessingFee decimal.Decimal   `json:"paymentProcessingFee"`
	StayPrice            decimal.Decimal   `json:"stayPrice"`
	CleaningFee          decimal.Decimal   `json:"cleaningFee"`
	TouristTax           decimal.Decimal   `json:"touristTax"`
	Nights               int               `json:"nights"`
	GuestCount           int               `json:"guestCount"`
}

// IsZeroNight reports a technical block that starts and ends on the same day.
func (r Reservation) IsZeroNight() bool {
	return r.CheckIn.Equal(r.CheckOut)
}

// Conflict is the human-readable view of a colliding reservation.
type Conflict struct {
	ReservationID string            `json:"reservationId"`
	GuestName     string            `json:"guestName"`
	CheckIn       string            `json:"checkIn"`
	CheckOut      string            `json:"checkOut"`
	Status        ReservationStatus `json:"status"`
	Channel       Channel           `json:"channel"`
}

// NewConflict builds the conflict report entry for r.
func NewConflict(r Reservation) Conflict {
	return Conflict{
		ReservationID: r.ID,
		GuestName:     r.GuestName,
		CheckIn:       r.CheckIn.Format(DateLayout),
		CheckOut:      r.CheckOut.Format(DateLayout),
		Status:        r.Status,
		Channel:       r.Channel,
	}
}

// AvailabilityResult is returned by availability queries for one room.
type AvailabilityResult struct {
	RoomID    string     `json:"roomId"`
	RoomName  string     `json:"roomName,omitempty"`
	CheckIn   string     `json:"checkIn"`
	CheckOut  string     `json:"checkOut"`
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts"`
}

// MultiRoomAvailabilityRequest checks one candidate range against several rooms.
type MultiRoomAvailabilityRequest struct {
	RoomIDs  []string `json:"roomIds"`
	CheckIn  string   `json:"checkIn"`
	CheckOut string   `json:"checkOut"`
}

// OwnerBlockRequest asks to reserve a room for the owner's own use.
type OwnerBlockRequest struct {
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	Note     string `json:"note,omitempty"`
}

// OwnerBlock is the block as accepted by the reservation source.
type OwnerBlock struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"roomId"`
	RoomExternalID string    `json:"roomExternalId"`
	CheckIn        time.Time `json:"checkIn"`
	CheckOut       time.Time `json:"checkOut"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
