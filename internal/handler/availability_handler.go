package handler

import (
	"net/http"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Availability
// ============================================================

func roomAvailabilityHandler(svc *service.AvailabilityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/rooms/{roomId}/availability")
		defer span.End()

		roomID := chi.URLParam(r, "roomId")
		span.SetAttributes(attribute.String("room.id", roomID))

		q := r.URL.Query()
		result, err := svc.CheckRoom(ctx, roomID, q.Get("check_in"), q.Get("check_out"), q.Get("exclude"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func multiRoomAvailabilityHandler(svc *service.AvailabilityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/availability")
		defer span.End()

		var req domain.MultiRoomAvailabilityRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		results, err := svc.CheckRooms(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.AvailabilityResult]{
			Data:  results,
			Total: len(results),
		})
	}
}

func ownerBlockHandler(svc *service.AvailabilityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/rooms/{roomId}/owner-blocks")
		defer span.End()

		roomID := chi.URLParam(r, "roomId")
		span.SetAttributes(attribute.String("room.id", roomID))

		var req domain.OwnerBlockRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		block, err := svc.CreateOwnerBlock(ctx, roomID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, block)
	}
}
