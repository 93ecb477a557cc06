// Package client holds HTTP adapters for upstream services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/resilience"
	"github.com/boddenberg/pm-portal-bfa/internal/ingest"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// ReservationsClient talks to the upstream reservation source.
type ReservationsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	normalizer *ingest.Normalizer
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewReservationsClient creates a new ReservationsClient.
func NewReservationsClient(httpClient *http.Client, baseURL, apiKey string, normalizer *ingest.Normalizer, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *ReservationsClient {
	if normalizer == nil {
		normalizer = ingest.NewNormalizer()
	}
	return &ReservationsClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
		normalizer: normalizer,
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		logger:     logger,
	}
}

// reservationsEnvelope accepts both a bare array and {"data": [...]}.
type reservationsEnvelope []ingest.RawReservation

func (e *reservationsEnvelope) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var wrapped struct {
			Data []ingest.RawReservation `json:"data"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return err
		}
		*e = wrapped.Data
		return nil
	}
	var list []ingest.RawReservation
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*e = list
	return nil
}

// ListReservations fetches every reservation of a room with retry, circuit
// breaker, and tracing. Records with unusable dates are logged and returned
// as they are; the availability checker leaves them out of the scan.
func (c *ReservationsClient) ListReservations(ctx context.Context, roomExternalID string) ([]domain.Reservation, error) {
	ctx, span := tracer.Start(ctx, "ReservationsClient.ListReservations")
	defer span.End()
	span.SetAttributes(attribute.String("room.external_id", roomExternalID))

	var raw reservationsEnvelope

	err := c.call(ctx, func() error {
		endpoint := fmt.Sprintf("%s/v1/rooms/%s/reservations", c.baseURL, url.PathEscape(roomExternalID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "room", ID: roomExternalID})
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("reservations API returned status %d", resp.StatusCode)
		}

		return json.NewDecoder(resp.Body).Decode(&raw)
	})
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil, nf
		}
		return nil, upstreamError("ReservationsClient.ListReservations", err)
	}

	out := make([]domain.Reservation, 0, len(raw))
	for _, rec := range raw {
		r, w := c.normalizer.FromAPI(rec)
		if w != nil {
			c.logger.Warn("reservation with unusable dates",
				zap.String("room_external_id", roomExternalID),
				zap.String("reservation_id", r.ID),
				zap.String("code", w.Code),
				zap.String("detail", w.Message),
			)
		}
		if r.RoomExternalID == "" {
			r.RoomExternalID = roomExternalID
		}
		out = append(out, r)
	}
	span.SetAttributes(attribute.Int("reservations.count", len(out)))
	return out, nil
}

type ownerBlockPayload struct {
	RoomID    string `json:"room_id"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Status    string `json:"status"`
	GuestName string `json:"guest_name"`
	Note      string `json:"note,omitempty"`
}

type ownerBlockResponse struct {
	ID        ingest.RawValue `json:"id"`
	CreatedAt string          `json:"created_at"`
}

// CreateOwnerBlock registers an owner block upstream. The same idempotency
// key is sent on every retry so a retried call cannot create two blocks.
func (c *ReservationsClient) CreateOwnerBlock(ctx context.Context, room *domain.Room, req *domain.OwnerBlockRequest) (*domain.OwnerBlock, error) {
	ctx, span := tracer.Start(ctx, "ReservationsClient.CreateOwnerBlock")
	defer span.End()
	span.SetAttributes(
		attribute.String("room.id", room.ID),
		attribute.String("room.external_id", room.ExternalRoomID),
	)

	checkIn, okIn := ingest.ParseDay(req.CheckIn, []string{domain.DateLayout})
	checkOut, okOut := ingest.ParseDay(req.CheckOut, []string{domain.DateLayout})
	if !okIn || !okOut {
		return nil, &domain.ErrValidation{Field: "checkIn", Message: "dates must be YYYY-MM-DD"}
	}

	body, err := json.Marshal(ownerBlockPayload{
		RoomID:    room.ExternalRoomID,
		CheckIn:   req.CheckIn,
		CheckOut:  req.CheckOut,
		Status:    string(domain.StatusOwnerBlock),
		GuestName: ingest.OwnerSentinel,
		Note:      req.Note,
	})
	if err != nil {
		return nil, err
	}
	idempotencyKey := uuid.NewString()

	var created ownerBlockResponse
	err = c.call(ctx, func() error {
		endpoint := fmt.Sprintf("%s/v1/rooms/%s/reservations", c.baseURL, url.PathEscape(room.ExternalRoomID))
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		c.authorize(httpReq)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusConflict:
			return resilience.Permanent(&domain.ErrConflict{Message: "reservation source rejected the block: dates already taken"})
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return resilience.Permanent(fmt.Errorf("reservations API returned status %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
			return fmt.Errorf("reservations API returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&created)
	})
	if err != nil {
		var conflict *domain.ErrConflict
		if errors.As(err, &conflict) {
			return nil, conflict
		}
		return nil, upstreamError("ReservationsClient.CreateOwnerBlock", err)
	}

	createdAt, perr := time.Parse(time.RFC3339, created.CreatedAt)
	if perr != nil {
		createdAt = time.Now().UTC()
	}
	return &domain.OwnerBlock{
		ID:             string(created.ID),
		RoomID:         room.ID,
		RoomExternalID: room.ExternalRoomID,
		CheckIn:        checkIn,
		CheckOut:       checkOut,
		Note:           req.Note,
		CreatedAt:      createdAt,
	}, nil
}

// call runs fn with retries inside the circuit breaker, holding a bulkhead
// slot so a burst of room checks cannot flood the upstream.
func (c *ReservationsClient) call(ctx context.Context, fn func() error) error {
	return c.bulkhead.Do(ctx, func(ctx context.Context) error {
		_, err := c.cb.Execute(func() (any, error) {
			return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
		})
		return err
	})
}

// upstreamError classifies a failed call for the HTTP layer.
func upstreamError(operation string, err error) error {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: "reservations"}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: operation}
	default:
		return &domain.ErrExternalService{Service: "reservations", Err: err}
	}
}

func (c *ReservationsClient) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
