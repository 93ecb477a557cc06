// Package service provides the business logic layer (use cases).
// AvailabilityService answers date-conflict questions for rooms and
// registers owner blocks; StatementService runs the statement pipeline
// from an uploaded booking export to a saved, sent statement.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/availability"
	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/observability"
	"github.com/boddenberg/pm-portal-bfa/internal/ingest"
	"github.com/boddenberg/pm-portal-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var availTracer = otel.Tracer("service/availability")

// maxRoomsPerCheck bounds one multi-room availability request.
const maxRoomsPerCheck = 50

// snapshotFetchTimeout bounds a shared upstream fetch. The fetch outlives
// the caller that started it, so other callers joined on it still get an
// answer when that caller goes away.
const snapshotFetchTimeout = 30 * time.Second

// AvailabilityService checks candidate stays against upstream reservations.
type AvailabilityService struct {
	rooms          port.RoomStore
	source         port.ReservationSource
	snapshots      port.Cache[[]domain.Reservation]
	inflight       singleflight.Group
	maxConcurrency int
	metrics        *observability.Metrics
	logger         *zap.Logger
}

// NewAvailabilityService creates the availability service with all dependencies injected.
func NewAvailabilityService(
	rooms port.RoomStore,
	source port.ReservationSource,
	snapshots port.Cache[[]domain.Reservation],
	maxConcurrency int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AvailabilityService {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &AvailabilityService{
		rooms:          rooms,
		source:         source,
		snapshots:      snapshots,
		maxConcurrency: maxConcurrency,
		metrics:        metrics,
		logger:         logger,
	}
}

// CheckRoom reports the reservations of roomID colliding with the stay
// [checkIn, checkOut). excludeID leaves one reservation out, for edits.
func (s *AvailabilityService) CheckRoom(ctx context.Context, roomID, checkIn, checkOut, excludeID string) (*domain.AvailabilityResult, error) {
	ctx, span := availTracer.Start(ctx, "AvailabilityService.CheckRoom")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))

	in, out, err := parseStay(checkIn, checkOut)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.snapshot(ctx, room)
	if err != nil {
		return nil, err
	}
	return s.scan(room, in, out, reservations, excludeID), nil
}

// CheckRooms checks one candidate stay against several rooms concurrently.
// Results keep the order of the requested ids.
func (s *AvailabilityService) CheckRooms(ctx context.Context, req *domain.MultiRoomAvailabilityRequest) ([]domain.AvailabilityResult, error) {
	ctx, span := availTracer.Start(ctx, "AvailabilityService.CheckRooms")
	defer span.End()
	span.SetAttributes(attribute.Int("rooms.count", len(req.RoomIDs)))

	if len(req.RoomIDs) == 0 {
		return nil, &domain.ErrValidation{Field: "roomIds", Message: "at least one room is required"}
	}
	if len(req.RoomIDs) > maxRoomsPerCheck {
		return nil, &domain.ErrValidation{Field: "roomIds", Message: fmt.Sprintf("at most %d rooms per request", maxRoomsPerCheck)}
	}
	in, out, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	results := make([]domain.AvailabilityResult, len(req.RoomIDs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for i, roomID := range req.RoomIDs {
		i, roomID := i, roomID
		g.Go(func() error {
			room, err := s.rooms.GetRoom(gCtx, roomID)
			if err != nil {
				return err
			}
			reservations, err := s.snapshot(gCtx, room)
			if err != nil {
				return err
			}
			results[i] = *s.scan(room, in, out, reservations, "")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// CreateOwnerBlock reserves a room for the owner. The dates are checked
// against a fresh snapshot first; any conflict rejects the block.
func (s *AvailabilityService) CreateOwnerBlock(ctx context.Context, roomID string, req *domain.OwnerBlockRequest) (*domain.OwnerBlock, error) {
	ctx, span := availTracer.Start(ctx, "AvailabilityService.CreateOwnerBlock")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))

	in, out, err := parseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, err
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reservations, err := s.source.ListReservations(ctx, room.ExternalRoomID)
	s.metrics.RecordRequestDuration("reservations", time.Since(start))
	if err != nil {
		s.metrics.IncrExternalError("reservations")
		return nil, err
	}

	result := s.scan(room, in, out, reservations, "")
	if !result.Available {
		return nil, &domain.ErrConflict{
			Message:   fmt.Sprintf("room %s is not free from %s to %s", room.ID, req.CheckIn, req.CheckOut),
			Conflicts: result.Conflicts,
		}
	}

	block, err := s.source.CreateOwnerBlock(ctx, room, req)
	if err != nil {
		s.logger.Error("owner block rejected upstream",
			zap.String("room_id", room.ID),
			zap.Error(err),
		)
		return nil, err
	}
	s.snapshots.Delete(snapshotKey(room))

	s.logger.Info("owner block created",
		zap.String("room_id", room.ID),
		zap.String("block_id", block.ID),
		zap.String("check_in", req.CheckIn),
		zap.String("check_out", req.CheckOut),
	)
	return block, nil
}

func (s *AvailabilityService) scan(room *domain.Room, in, out time.Time, reservations []domain.Reservation, excludeID string) *domain.AvailabilityResult {
	scan := availability.ScanRoom(*room, in, out, reservations, excludeID)
	if n := len(scan.Malformed); n > 0 {
		s.metrics.IncrMalformed(n)
		for _, r := range scan.Malformed {
			s.logger.Warn("reservation ignored: unusable dates",
				zap.String("room_id", room.ID),
				zap.String("reservation_id", r.ID),
				zap.Time("check_in", r.CheckIn),
				zap.Time("check_out", r.CheckOut),
			)
		}
	}
	s.metrics.IncrConflicts(len(scan.Conflicts))

	return &domain.AvailabilityResult{
		RoomID:    room.ID,
		RoomName:  room.Name,
		CheckIn:   in.Format(domain.DateLayout),
		CheckOut:  out.Format(domain.DateLayout),
		Available: len(scan.Conflicts) == 0,
		Conflicts: availability.Report(scan.Conflicts),
	}
}

// snapshot returns the room's reservations, shared by concurrent callers
// and cached for a short while.
func (s *AvailabilityService) snapshot(ctx context.Context, room *domain.Room) ([]domain.Reservation, error) {
	key := snapshotKey(room)
	if cached, ok := s.snapshots.Get(key); ok {
		s.metrics.IncrCacheHit("reservations")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("reservations")

	v, err, _ := s.inflight.Do(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotFetchTimeout)
		defer cancel()

		start := time.Now()
		reservations, err := s.source.ListReservations(fetchCtx, room.ExternalRoomID)
		s.metrics.RecordRequestDuration("reservations", time.Since(start))
		if err != nil {
			s.metrics.IncrExternalError("reservations")
			s.logger.Error("failed to fetch reservations",
				zap.String("room_id", room.ID),
				zap.String("room_external_id", room.ExternalRoomID),
				zap.Error(err),
			)
			return nil, err
		}
		s.snapshots.Set(key, reservations)
		return reservations, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Reservation), nil
}

func snapshotKey(room *domain.Room) string {
	return "reservations:" + room.ExternalRoomID
}

// parseStay validates a candidate stay. Check-out may equal check-in for a
// zero-night block but never precede it.
func parseStay(checkIn, checkOut string) (time.Time, time.Time, error) {
	layouts := []string{domain.DateLayout}
	in, ok := ingest.ParseDay(checkIn, layouts)
	if !ok {
		return time.Time{}, time.Time{}, &domain.ErrValidation{Field: "checkIn", Message: "must be a date in YYYY-MM-DD format"}
	}
	out, ok := ingest.ParseDay(checkOut, layouts)
	if !ok {
		return time.Time{}, time.Time{}, &domain.ErrValidation{Field: "checkOut", Message: "must be a date in YYYY-MM-DD format"}
	}
	if out.Before(in) {
		return time.Time{}, time.Time{}, &domain.ErrValidation{Field: "checkOut", Message: "must not be before checkIn"}
	}
	return in, out, nil
}
