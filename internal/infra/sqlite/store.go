package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("sqlite")

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements port.RoomStore and port.StatementStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore creates a Store on an opened, migrated database.
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Ping reports whether the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ============================================================
// Rooms
// ============================================================

// UpsertRoom inserts or replaces a room. Used to seed the local store.
func (s *Store) UpsertRoom(ctx context.Context, room *domain.Room) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, external_room_id, name, owner_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET external_room_id = excluded.external_room_id, name = excluded.name, owner_id = excluded.owner_id`,
		room.ID, room.ExternalRoomID, room.Name, room.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", room.ID, err)
	}
	return nil
}

// SeedRooms upserts every room of a JSON array read from r.
func (s *Store) SeedRooms(ctx context.Context, r io.Reader) (int, error) {
	var rooms []domain.Room
	if err := json.NewDecoder(r).Decode(&rooms); err != nil {
		return 0, fmt.Errorf("decode rooms: %w", err)
	}
	for i := range rooms {
		if rooms[i].ID == "" || rooms[i].ExternalRoomID == "" {
			return i, &domain.ErrValidation{Field: "rooms", Message: fmt.Sprintf("entry %d needs id and externalRoomId", i)}
		}
		if err := s.UpsertRoom(ctx, &rooms[i]); err != nil {
			return i, err
		}
	}
	s.logger.Info("rooms seeded", zap.Int("count", len(rooms)))
	return len(rooms), nil
}

// GetRoom loads a room by id.
func (s *Store) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetRoom")
	defer span.End()
	span.SetAttributes(attribute.String("room.id", roomID))

	var room domain.Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, external_room_id, name, owner_id FROM rooms WHERE id = ?`, roomID,
	).Scan(&room.ID, &room.ExternalRoomID, &room.Name, &room.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "room", ID: roomID}
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &room, nil
}

// ============================================================
// Statements
// ============================================================

const statementColumns = `id, client_id, period, status, version, commission_rate, rows_json, totals_json,
	warnings_json, tax_zeroing_applied, source_file, source_checksum, sent_to, sent_at, created_at, updated_at`

// CreateStatement inserts a newly saved statement.
func (s *Store) CreateStatement(ctx context.Context, st *domain.Statement) (*domain.Statement, error) {
	ctx, span := tracer.Start(ctx, "SQLite.CreateStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", st.ID))

	rec, err := encodeStatement(st)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO statements (`+statementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.args()...,
	)
	if err != nil {
		return nil, fmt.Errorf("insert statement %s: %w", st.ID, err)
	}

	s.logger.Info("sqlite: statement created",
		zap.String("statement_id", st.ID),
		zap.String("client_id", st.ClientID),
		zap.String("period", st.Period),
	)
	out := *st
	return &out, nil
}

// UpdateStatement replaces a saved statement if the stored version is the
// one preceding st.Version.
func (s *Store) UpdateStatement(ctx context.Context, st *domain.Statement) error {
	ctx, span := tracer.Start(ctx, "SQLite.UpdateStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", st.ID), attribute.Int("statement.version", st.Version))

	rec, err := encodeStatement(st)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE statements SET status = ?, version = ?, commission_rate = ?, rows_json = ?, totals_json = ?,
			warnings_json = ?, tax_zeroing_applied = ?, sent_to = ?, sent_at = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		rec.status, rec.version, rec.commissionRate, rec.rows, rec.totals,
		rec.warnings, rec.taxZeroing, rec.sentTo, rec.sentAt, rec.updatedAt,
		rec.id, st.Version-1,
	)
	if err != nil {
		return fmt.Errorf("update statement %s: %w", st.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update statement %s: %w", st.ID, err)
	}
	if n == 0 {
		return &domain.ErrConflict{Message: fmt.Sprintf("statement %s was modified concurrently", st.ID)}
	}
	return nil
}

// GetStatement loads a saved statement.
func (s *Store) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	ctx, span := tracer.Start(ctx, "SQLite.GetStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	row := s.db.QueryRowContext(ctx, `SELECT `+statementColumns+` FROM statements WHERE id = ?`, id)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get statement %s: %w", id, err)
	}
	return st, nil
}

// ListStatements returns a client's saved statements, newest first.
func (s *Store) ListStatements(ctx context.Context, clientID string) ([]domain.StatementSummary, error) {
	ctx, span := tracer.Start(ctx, "SQLite.ListStatements")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statementColumns+` FROM statements WHERE client_id = ? ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StatementSummary, 0)
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		out = append(out, st.Summary())
	}
	return out, rows.Err()
}

// statementRecord is a statement flattened to column values.
type statementRecord struct {
	id, clientID, period, status string
	version                      int
	commissionRate               string
	rows, totals, warnings       string
	taxZeroing                   bool
	sourceFile, sourceChecksum   string
	sentTo                       string
	sentAt                       sql.NullString
	createdAt, updatedAt         string
}

func (r statementRecord) args() []any {
	return []any{
		r.id, r.clientID, r.period, r.status, r.version, r.commissionRate, r.rows, r.totals,
		r.warnings, r.taxZeroing, r.sourceFile, r.sourceChecksum, r.sentTo, r.sentAt, r.createdAt, r.updatedAt,
	}
}

func encodeStatement(st *domain.Statement) (statementRecord, error) {
	rows, err := json.Marshal(st.Rows)
	if err != nil {
		return statementRecord{}, fmt.Errorf("encode rows: %w", err)
	}
	totals, err := json.Marshal(st.Totals)
	if err != nil {
		return statementRecord{}, fmt.Errorf("encode totals: %w", err)
	}
	warnings := st.Warnings
	if warnings == nil {
		warnings = []domain.ParseWarning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return statementRecord{}, fmt.Errorf("encode warnings: %w", err)
	}

	rec := statementRecord{
		id:             st.ID,
		clientID:       st.ClientID,
		period:         st.Period,
		status:         string(st.Status),
		version:        st.Version,
		commissionRate: st.CommissionRate.String(),
		rows:           string(rows),
		totals:         string(totals),
		warnings:       string(warningsJSON),
		taxZeroing:     st.TaxZeroingApplied,
		sourceFile:     st.SourceFile,
		sourceChecksum: st.SourceChecksum,
		sentTo:         st.SentTo,
		createdAt:      st.CreatedAt.UTC().Format(timeLayout),
		updatedAt:      st.UpdatedAt.UTC().Format(timeLayout),
	}
	if st.SentAt != nil {
		rec.sentAt = sql.NullString{String: st.SentAt.UTC().Format(timeLayout), Valid: true}
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatement(sc scanner) (*domain.Statement, error) {
	var rec statementRecord
	if err := sc.Scan(
		&rec.id, &rec.clientID, &rec.period, &rec.status, &rec.version, &rec.commissionRate,
		&rec.rows, &rec.totals, &rec.warnings, &rec.taxZeroing, &rec.sourceFile, &rec.sourceChecksum,
		&rec.sentTo, &rec.sentAt, &rec.createdAt, &rec.updatedAt,
	); err != nil {
		return nil, err
	}

	st := &domain.Statement{
		ID:                rec.id,
		ClientID:          rec.clientID,
		Period:            rec.period,
		Status:            domain.StatementStatus(rec.status),
		Version:           rec.version,
		TaxZeroingApplied: rec.taxZeroing,
		SourceFile:        rec.sourceFile,
		SourceChecksum:    rec.sourceChecksum,
		SentTo:            rec.sentTo,
	}
	var err error
	if st.CommissionRate, err = decimal.NewFromString(rec.commissionRate); err != nil {
		return nil, fmt.Errorf("decode commission rate: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.rows), &st.Rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.totals), &st.Totals); err != nil {
		return nil, fmt.Errorf("decode totals: %w", err)
	}
	if err := json.Unmarshal([]byte(rec.warnings), &st.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if st.CreatedAt, err = time.Parse(timeLayout, rec.createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if st.UpdatedAt, err = time.Parse(timeLayout, rec.updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	if rec.sentAt.Valid {
		sentAt, err := time.Parse(timeLayout, rec.sentAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode sent_at: %w", err)
		}
		st.SentAt = &sentAt
	}
	return st, nil
}
