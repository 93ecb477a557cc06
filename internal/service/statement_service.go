package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/observability"
	"github.com/boddenberg/pm-portal-bfa/internal/ingest"
	"github.com/boddenberg/pm-portal-bfa/internal/port"
	"github.com/boddenberg/pm-portal-bfa/internal/statement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var stmtTracer = otel.Tracer("service/statement")

// StatementService runs the statement pipeline. Drafts and statements with
// unsaved edits live in the working cache; the store only ever receives
// explicit saves.
type StatementService struct {
	store       port.StatementStore
	working     port.Cache[*domain.Statement]
	normalizer  *ingest.Normalizer
	router      statement.Router
	defaultRate decimal.Decimal
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time

	locks keyedMutex
}

// NewStatementService creates the statement service with all dependencies injected.
func NewStatementService(
	store port.StatementStore,
	working port.Cache[*domain.Statement],
	normalizer *ingest.Normalizer,
	router statement.Router,
	defaultRate decimal.Decimal,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *StatementService {
	if normalizer == nil {
		normalizer = ingest.NewNormalizer()
	}
	return &StatementService{
		store:       store,
		working:     working,
		normalizer:  normalizer,
		router:      router,
		defaultRate: defaultRate,
		metrics:     metrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================
// Import
// ============================================================

// Import reads an uploaded booking export into a new draft statement.
func (s *StatementService) Import(ctx context.Context, req *domain.ImportRequest) (*domain.ImportResult, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Import")
	defer span.End()
	span.SetAttributes(
		attribute.String("client.id", req.ClientID),
		attribute.String("statement.period", req.Period),
		attribute.Int("file.size", len(req.Content)),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("statement_import", time.Since(start))
	}()

	if req.ClientID == "" {
		return nil, &domain.ErrValidation{Field: "clientId", Message: "is required"}
	}
	if statement.PeriodDays(req.Period) == 0 {
		return nil, &domain.ErrValidation{Field: "period", Message: "must be a month in YYYY-MM format"}
	}
	rate := s.defaultRate
	if req.CommissionRate != nil {
		rate = *req.CommissionRate
	}
	processor, err := statement.NewLineProcessor(s.normalizer, rate)
	if err != nil {
		return nil, err
	}

	sheet, err := ingest.ReadWorkbook(req.FileName, req.Content)
	if err != nil {
		s.logger.Warn("booking export rejected",
			zap.String("client_id", req.ClientID),
			zap.String("file", req.FileName),
			zap.Error(err),
		)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := processor.ProcessBatch(sheet.Rows)
	now := s.now()
	st := &domain.Statement{
		ID:                uuid.NewString(),
		ClientID:          req.ClientID,
		Period:            req.Period,
		Status:            domain.StatementDraft,
		CommissionRate:    rate,
		Rows:              batch.Rows,
		Totals:            statement.Recalculate(batch.Rows),
		Warnings:          batch.Warnings,
		TaxZeroingApplied: batch.TaxZeroingApplied,
		SourceFile:        req.FileName,
		SourceChecksum:    ingest.Fingerprint(req.Content),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if st.Rows == nil {
		st.Rows = []domain.ProcessedReservation{}
	}
	s.working.Set(workingKey(st.ID), clone(st))

	s.metrics.IncrImportedRows(observability.RowProcessed, len(batch.Rows))
	s.metrics.IncrImportedRows(observability.RowSkipped, batch.Skipped)
	s.metrics.IncrImportedRows(observability.RowOwner, batch.OwnerRows)
	for _, w := range batch.Warnings {
		if w.Code == domain.WarnOwnerRow {
			continue
		}
		s.logger.Warn("export row skipped or partially read",
			zap.String("statement_id", st.ID),
			zap.Int("row", w.Row),
			zap.String("code", w.Code),
			zap.String("field", w.Field),
			zap.String("detail", w.Message),
		)
	}
	s.logger.Info("booking export imported",
		zap.String("statement_id", st.ID),
		zap.String("client_id", st.ClientID),
		zap.String("period", st.Period),
		zap.String("sheet", sheet.Name),
		zap.Int("rows_read", batch.RowsRead),
		zap.Int("rows_processed", len(batch.Rows)),
		zap.Int("rows_skipped", batch.Skipped),
		zap.Bool("tax_zeroing_applied", batch.TaxZeroingApplied),
	)

	warnings := batch.Warnings
	if warnings == nil {
		warnings = []domain.ParseWarning{}
	}
	return &domain.ImportResult{
		Report: domain.ImportReport{
			StatementID:       st.ID,
			Sheet:             sheet.Name,
			RowsRead:          batch.RowsRead,
			RowsProcessed:     len(batch.Rows),
			RowsSkipped:       batch.Skipped,
			OwnerRows:         batch.OwnerRows,
			TaxZeroingApplied: batch.TaxZeroingApplied,
			SourceChecksum:    st.SourceChecksum,
			Warnings:          warnings,
		},
		Statement: st,
	}, nil
}

// ============================================================
// Read
// ============================================================

// Get returns the current state of a statement with its ratios. objective
// is the revenue target used for objective progress; zero disables it.
func (s *StatementService) Get(ctx context.Context, id string, objective decimal.Decimal) (*domain.StatementView, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Get")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.StatementView{
		Statement: st,
		Ratios:    statement.Ratios(st.Totals, statement.PeriodDays(st.Period), objective),
	}, nil
}

// List returns a client's saved statements, newest first.
func (s *StatementService) List(ctx context.Context, clientID string) ([]domain.StatementSummary, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.List")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	if clientID == "" {
		return nil, &domain.ErrValidation{Field: "clientId", Message: "is required"}
	}
	return s.store.ListStatements(ctx, clientID)
}

// Transfers plans the payouts for the selected rows of a statement.
func (s *StatementService) Transfers(ctx context.Context, id string, req *domain.TransferRequest) (*domain.TransferAllocation, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Transfers")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	selected, err := statement.SelectRows(st.Rows, req.Rows)
	if err != nil {
		return nil, err
	}
	alloc, err := statement.Allocate(selected, s.router, req.DeductFrom, st.Totals.InvoiceTotal)
	if err != nil {
		return nil, err
	}
	if len(alloc.Unassigned) > 0 {
		s.logger.Warn("rows routed to an unconfigured payment source",
			zap.String("statement_id", id),
			zap.Int("count", len(alloc.Unassigned)),
		)
	}
	return alloc, nil
}

// ============================================================
// Edits
// ============================================================

// EditRow corrects the inputs of row index and refolds the statement.
func (s *StatementService) EditRow(ctx context.Context, id string, index int, edit domain.RowEdit) (*domain.Statement, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.EditRow")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id), attribute.Int("row.index", index))

	return s.mutate(ctx, id, func(st *domain.Statement) error {
		if index < 0 || index >= len(st.Rows) {
			return &domain.ErrValidation{Field: "index", Message: fmt.Sprintf("row %d does not exist", index)}
		}
		row, err := statement.ApplyEdit(st.Rows[index], edit, st.CommissionRate)
		if err != nil {
			return err
		}
		st.Rows[index] = row
		if row.TaxZeroed {
			st.TaxZeroingApplied = true
		}
		statement.Recompute(st, s.now())
		return nil
	})
}

// SetOwnerCleaningFee sets the user-entered cleaning fee added to the
// invoice. Row totals are not refolded.
func (s *StatementService) SetOwnerCleaningFee(ctx context.Context, id string, fee decimal.Decimal) (*domain.Statement, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.SetOwnerCleaningFee")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	if fee.IsNegative() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must not be negative"}
	}
	return s.mutate(ctx, id, func(st *domain.Statement) error {
		st.Totals = statement.WithOwnerCleaningFee(st.Totals, fee)
		if st.Status != domain.StatementDraft {
			st.Dirty = true
		}
		st.UpdatedAt = s.now()
		return nil
	})
}

// ============================================================
// Lifecycle
// ============================================================

// Save persists the working copy: a draft is created, a saved or sent
// statement is updated in place.
func (s *StatementService) Save(ctx context.Context, id string) (*domain.Statement, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Save")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	unlock := s.lock(id)
	defer unlock()

	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	wasDraft := st.Status == domain.StatementDraft
	if err := statement.Save(st, s.now()); err != nil {
		return nil, err
	}

	if wasDraft {
		created, err := s.store.CreateStatement(ctx, st)
		if err != nil {
			s.metrics.IncrExternalError("statement_store")
			return nil, err
		}
		st = created
	} else if err := s.store.UpdateStatement(ctx, st); err != nil {
		s.metrics.IncrExternalError("statement_store")
		return nil, err
	}
	s.working.Delete(workingKey(id))
	s.metrics.IncrStatement(domain.StatementSaved)

	s.logger.Info("statement saved",
		zap.String("statement_id", st.ID),
		zap.String("client_id", st.ClientID),
		zap.Int("version", st.Version),
		zap.String("invoice_total", st.Totals.InvoiceTotal.StringFixed(2)),
	)
	return st, nil
}

// Send marks a saved statement as sent to recipient.
func (s *StatementService) Send(ctx context.Context, id, recipient string) (*domain.Statement, error) {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Send")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	unlock := s.lock(id)
	defer unlock()

	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := statement.MarkSent(st, recipient, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStatement(ctx, st); err != nil {
		s.metrics.IncrExternalError("statement_store")
		return nil, err
	}
	s.working.Delete(workingKey(id))
	s.metrics.IncrStatement(domain.StatementSent)

	s.logger.Info("statement sent",
		zap.String("statement_id", st.ID),
		zap.String("client_id", st.ClientID),
		zap.Int("version", st.Version),
	)
	return st, nil
}

// Discard drops a draft with all its rows.
func (s *StatementService) Discard(ctx context.Context, id string) error {
	ctx, span := stmtTracer.Start(ctx, "StatementService.Discard")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	unlock := s.lock(id)
	defer unlock()

	st, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := statement.CanDiscard(st); err != nil {
		return err
	}
	s.working.Delete(workingKey(id))
	s.logger.Info("draft discarded", zap.String("statement_id", id))
	return nil
}

// ============================================================
// Helpers
// ============================================================

// mutate applies fn to a copy of the statement and stores the result as
// the new working copy.
func (s *StatementService) mutate(ctx context.Context, id string, fn func(*domain.Statement) error) (*domain.Statement, error) {
	unlock := s.lock(id)
	defer unlock()

	st, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		return nil, err
	}
	s.working.Set(workingKey(id), clone(st))
	return st, nil
}

// load returns a private copy of the working statement, falling back to
// the store for statements without pending edits.
func (s *StatementService) load(ctx context.Context, id string) (*domain.Statement, error) {
	if st, ok := s.working.Get(workingKey(id)); ok {
		return clone(st), nil
	}
	return s.store.GetStatement(ctx, id)
}

func (s *StatementService) lock(id string) func() {
	return s.locks.Lock(id)
}

func workingKey(id string) string {
	return "statement:" + id
}

func clone(st *domain.Statement) *domain.Statement {
	out := *st
	if st.Rows != nil {
		out.Rows = make([]domain.ProcessedReservation, len(st.Rows))
		copy(out.Rows, st.Rows)
	}
	if st.Warnings != nil {
		out.Warnings = make([]domain.ParseWarning, len(st.Warnings))
		copy(out.Warnings, st.Warnings)
	}
	if st.SentAt != nil {
		sent := *st.SentAt
		out.SentAt = &sent
	}
	return &out
}
