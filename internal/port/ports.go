// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
)

// ReservationSource reads and writes reservations on the upstream booking
// system. Returned reservations are already normalized; records with
// unusable dates are still returned so callers can report them.
type ReservationSource interface {
	ListReservations(ctx context.Context, roomExternalID string) ([]domain.Reservation, error)
	CreateOwnerBlock(ctx context.Context, room *domain.Room, req *domain.OwnerBlockRequest) (*domain.OwnerBlock, error)
}

// RoomStore resolves portal rooms to their upstream identifiers.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
}

// StatementStore persists saved statements. Drafts never reach it.
type StatementStore interface {
	CreateStatement(ctx context.Context, s *domain.Statement) (*domain.Statement, error)
	UpdateStatement(ctx context.Context, s *domain.Statement) error
	GetStatement(ctx context.Context, id string) (*domain.Statement, error)
	ListStatements(ctx context.Context, clientID string) ([]domain.StatementSummary, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
