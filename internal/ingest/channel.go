package ingest

import (
	"strings"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
)

// channelKeywords is checked in order; owner keywords come before "DIRECT"
// so "Propriétaire direct" is an owner stay, not a direct booking.
var channelKeywords = []struct {
	keyword string
	channel domain.Channel
}{
	{"AIRBNB", domain.ChannelAirbnb},
	{"BOOKING", domain.ChannelBooking},
	{"ABRITEL", domain.ChannelAbritel},
	{"VRBO", domain.ChannelAbritel},
	{"HOMEAWAY", domain.ChannelAbritel},
	{"PROPRIETAIRE", domain.ChannelOwnerDirect},
	{"OWNER", domain.ChannelOwnerDirect},
	{"DIRECT", domain.ChannelDirect},
	{"SITE", domain.ChannelDirect},
	{"WEBSITE", domain.ChannelDirect},
}

// ParseChannel maps a free-text portal/source label onto a Channel.
// Labels matching no known platform map to ChannelUnknown.
func ParseChannel(raw string) domain.Channel {
	s := fold(raw)
	if s == "" {
		return domain.ChannelUnknown
	}
	for _, k := range channelKeywords {
		if strings.Contains(s, k.keyword) {
			return k.channel
		}
	}
	return domain.ChannelUnknown
}

// ParseStatus maps a reservation-source status onto a ReservationStatus.
func ParseStatus(raw string) domain.ReservationStatus {
	s := fold(raw)
	switch {
	case s == "":
		return domain.StatusUnknown
	case strings.HasPrefix(s, "CANCEL"), s == "ANNULEE", s == "ANNULE":
		return domain.StatusCancelled
	case strings.Contains(s, "OWNER"), strings.Contains(s, "BLOCK"), strings.Contains(s, "PROPRIETAIRE"):
		return domain.StatusOwnerBlock
	case s == "CONFIRMED", s == "CONFIRMEE", s == "BOOKED", s == "ACCEPTED", s == "NEW":
		return domain.StatusConfirmed
	case s == "PENDING", s == "EN ATTENTE", s == "REQUEST", s == "INQUIRY":
		return domain.StatusPending
	}
	return domain.StatusUnknown
}
