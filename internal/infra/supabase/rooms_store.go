package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Rooms (implements port.RoomStore)
// ============================================================

type supabaseRoom struct {
	ID             string `json:"id"`
	ExternalRoomID string `json:"external_room_id"`
	Name           string `json:"name"`
	OwnerID        string `json:"owner_id"`
}

// GetRoom resolves a portal room by id.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetRoom")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))

	var rows []supabaseRoom
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("rooms?id=eq.%s&limit=1", url.QueryEscape(roomID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		if body == nil {
			rows = nil
			return nil
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/rooms", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "room", ID: roomID}
	}

	r := rows[0]
	return &domain.Room{ID: r.ID, ExternalRoomID: r.ExternalRoomID, Name: r.Name, OwnerID: r.OwnerID}, nil
}
