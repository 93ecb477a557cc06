package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/sqlite"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlite.Migrate(db, zap.NewNop()))
	// a second run is a no-op
	require.NoError(t, sqlite.Migrate(db, zap.NewNop()))
	return sqlite.NewStore(db, zap.NewNop())
}

func sampleStatement(id, client string, created time.Time) *domain.Statement {
	return &domain.Statement{
		ID:             id,
		ClientID:       client,
		Period:         "2025-01",
		Status:         domain.StatementSaved,
		Version:        1,
		CommissionRate: decimal.RequireFromString("0.2"),
		Rows: []domain.ProcessedReservation{{
			SourceRow:            2,
			Channel:              domain.ChannelAirbnb,
			GuestName:            "Jeanne",
			Nights:               3,
			StayPrice:            decimal.RequireFromString("300.50"),
			ManagementCommission: decimal.RequireFromString("60.10"),
		}},
		Totals: domain.StatementTotals{
			ReservationCount: 1,
			TotalCommission:  decimal.RequireFromString("60.10"),
			InvoiceTotal:     decimal.RequireFromString("60.10"),
		},
		TaxZeroingApplied: true,
		SourceFile:        "export.xlsx",
		SourceChecksum:    "abc",
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestRooms(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.GetRoom(ctx, "room-1")
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))

	require.NoError(t, store.UpsertRoom(ctx, &domain.Room{ID: "room-1", ExternalRoomID: "A101", Name: "Studio"}))
	require.NoError(t, store.UpsertRoom(ctx, &domain.Room{ID: "room-1", ExternalRoomID: "A102", Name: "Studio"}))

	room, err := store.GetRoom(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "A102", room.ExternalRoomID)
}

func TestSeedRooms(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	n, err := store.SeedRooms(ctx, strings.NewReader(`[
		{"id":"room-1","externalRoomId":"A101","name":"Studio"},
		{"id":"room-2","externalRoomId":"B202","name":"Loft","ownerId":"u1"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	room, err := store.GetRoom(ctx, "room-2")
	require.NoError(t, err)
	assert.Equal(t, "u1", room.OwnerID)

	_, err = store.SeedRooms(ctx, strings.NewReader(`[{"id":"room-3"}]`))
	var ve *domain.ErrValidation
	assert.True(t, errors.As(err, &ve))
}

func TestStatements_CreateGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	created := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)

	_, err := store.CreateStatement(ctx, sampleStatement("st-1", "client-1", created))
	require.NoError(t, err)

	got, err := store.GetStatement(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatementSaved, got.Status)
	assert.Equal(t, "0.2", got.CommissionRate.String())
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "300.5", got.Rows[0].StayPrice.String())
	assert.Equal(t, "60.1", got.Totals.InvoiceTotal.String())
	assert.True(t, got.TaxZeroingApplied)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.SentAt)

	_, err = store.GetStatement(ctx, "missing")
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestStatements_UpdateChecksVersion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)

	st := sampleStatement("st-1", "client-1", now)
	_, err := store.CreateStatement(ctx, st)
	require.NoError(t, err)

	sentAt := now.Add(time.Hour)
	st.Status = domain.StatementSent
	st.Version = 2
	st.SentTo = "owner@example.com"
	st.SentAt = &sentAt
	require.NoError(t, store.UpdateStatement(ctx, st))

	// same version again: the stored one is now 2
	err = store.UpdateStatement(ctx, st)
	var conflict *domain.ErrConflict
	require.True(t, errors.As(err, &conflict), "got %v", err)

	got, err := store.GetStatement(ctx, "st-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, domain.StatementSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.True(t, got.SentAt.Equal(sentAt))
}

func TestStatements_ListNewestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)

	offsets := []struct {
		id     string
		offset time.Duration
	}{
		{"old", 0},
		{"new", time.Hour},
		{"mid", 500 * time.Millisecond},
	}
	for _, o := range offsets {
		_, err := store.CreateStatement(ctx, sampleStatement(o.id, "client-1", base.Add(o.offset)))
		require.NoError(t, err)
	}
	_, err := store.CreateStatement(ctx, sampleStatement("other", "client-2", base))
	require.NoError(t, err)

	list, err := store.ListStatements(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "old", list[2].ID)
	assert.Equal(t, 1, list[0].RowCount)

	empty, err := store.ListStatements(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
