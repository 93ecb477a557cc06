package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
)

// --- Mocks ---

type mockRoomStore struct {
	rooms map[string]*domain.Room
}

func (m *mockRoomStore) GetRoom(_ context.Context, roomID string) (*domain.Room, error) {
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "room", ID: roomID}
	}
	return r, nil
}

type mockReservationSource struct {
	mu           sync.Mutex
	reservations map[string][]domain.Reservation
	listCalls    atomic.Int32
	listErr      error
	blocks       []*domain.OwnerBlockRequest
	blockErr     error
	// gate, when set, holds every fetch until it is closed.
	gate chan struct{}
}

func (m *mockReservationSource) ListReservations(ctx context.Context, roomExternalID string) ([]domain.Reservation, error) {
	m.listCalls.Add(1)
	if m.gate != nil {
		<-m.gate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Reservation(nil), m.reservations[roomExternalID]...), nil
}

func (m *mockReservationSource) CreateOwnerBlock(_ context.Context, room *domain.Room, req *domain.OwnerBlockRequest) (*domain.OwnerBlock, error) {
	if m.blockErr != nil {
		return nil, m.blockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, req)
	return &domain.OwnerBlock{ID: fmt.Sprintf("blk-%d", len(m.blocks)), RoomID: room.ID, RoomExternalID: room.ExternalRoomID}, nil
}

// mockStatementStore is an in-memory store with the same version check as
// the real adapters.
type mockStatementStore struct {
	mu         sync.Mutex
	statements map[string]domain.Statement
	creates    int
	updates    int
	err        error
}

func newMockStatementStore() *mockStatementStore {
	return &mockStatementStore{statements: make(map[string]domain.Statement)}
}

func (m *mockStatementStore) CreateStatement(_ context.Context, s *domain.Statement) (*domain.Statement, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.statements[s.ID] = *s
	out := *s
	return &out, nil
}

func (m *mockStatementStore) UpdateStatement(_ context.Context, s *domain.Statement) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.statements[s.ID]
	if !ok || cur.Version != s.Version-1 {
		return &domain.ErrConflict{Message: "version mismatch"}
	}
	m.updates++
	m.statements[s.ID] = *s
	return nil
}

func (m *mockStatementStore) GetStatement(_ context.Context, id string) (*domain.Statement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statements[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	s.Rows = append([]domain.ProcessedReservation(nil), s.Rows...)
	return &s, nil
}

func (m *mockStatementStore) ListStatements(_ context.Context, clientID string) ([]domain.StatementSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.StatementSummary, 0)
	for _, s := range m.statements {
		if s.ClientID == clientID {
			out = append(out, s.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
