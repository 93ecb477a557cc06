package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Statements (implements port.StatementStore)
// ============================================================

// supabaseStatement maps the statements table. Rows, totals and warnings
// are jsonb columns.
type supabaseStatement struct {
	ID                string                        `json:"id"`
	ClientID          string                        `json:"client_id"`
	Period            string                        `json:"period"`
	Status            domain.StatementStatus        `json:"status"`
	Version           int                           `json:"version"`
	CommissionRate    decimal.Decimal               `json:"commission_rate"`
	Rows              []domain.ProcessedReservation `json:"rows"`
	Totals            domain.StatementTotals        `json:"totals"`
	Warnings          []domain.ParseWarning         `json:"warnings"`
	TaxZeroingApplied bool                          `json:"tax_zeroing_applied"`
	SourceFile        string                        `json:"source_file"`
	SourceChecksum    string                        `json:"source_checksum"`
	SentTo            string                        `json:"sent_to,omitempty"`
	SentAt            *time.Time                    `json:"sent_at,omitempty"`
	CreatedAt         time.Time                     `json:"created_at"`
	UpdatedAt         time.Time                     `json:"updated_at"`
}

func toRecord(s *domain.Statement) supabaseStatement {
	return supabaseStatement{
		ID:                s.ID,
		ClientID:          s.ClientID,
		Period:            s.Period,
		Status:            s.Status,
		Version:           s.Version,
		CommissionRate:    s.CommissionRate,
		Rows:              s.Rows,
		Totals:            s.Totals,
		Warnings:          s.Warnings,
		TaxZeroingApplied: s.TaxZeroingApplied,
		SourceFile:        s.SourceFile,
		SourceChecksum:    s.SourceChecksum,
		SentTo:            s.SentTo,
		SentAt:            s.SentAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (r supabaseStatement) toDomain() *domain.Statement {
	return &domain.Statement{
		ID:                r.ID,
		ClientID:          r.ClientID,
		Period:            r.Period,
		Status:            r.Status,
		Version:           r.Version,
		CommissionRate:    r.CommissionRate,
		Rows:              r.Rows,
		Totals:            r.Totals,
		Warnings:          r.Warnings,
		TaxZeroingApplied: r.TaxZeroingApplied,
		SourceFile:        r.SourceFile,
		SourceChecksum:    r.SourceChecksum,
		SentTo:            r.SentTo,
		SentAt:            r.SentAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// CreateStatement inserts a newly saved statement.
func (c *Client) CreateStatement(ctx context.Context, s *domain.Statement) (*domain.Statement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", s.ID), attribute.String("client.id", s.ClientID))

	var created []supabaseStatement
	err := c.execute(ctx, func() error {
		body, err := c.doPost(ctx, "statements", toRecord(s))
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &created)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/statements", Err: err}
	}
	if len(created) == 0 {
		return nil, &domain.ErrExternalService{Service: "supabase/statements", Err: fmt.Errorf("insert returned no row")}
	}

	c.logger.Info("supabase: statement created",
		zap.String("statement_id", created[0].ID),
		zap.String("client_id", created[0].ClientID),
		zap.String("period", created[0].Period),
	)
	return created[0].toDomain(), nil
}

// UpdateStatement replaces a saved statement. The previous version must
// still be stored; a concurrent update makes this one fail.
func (c *Client) UpdateStatement(ctx context.Context, s *domain.Statement) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", s.ID), attribute.Int("statement.version", s.Version))

	var updated []supabaseStatement
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("statements?id=eq.%s&version=eq.%d", url.QueryEscape(s.ID), s.Version-1)
		body, err := c.doPatch(ctx, path, toRecord(s))
		if err != nil {
			return err
		}
		return json.Unmarshal(body, &updated)
	})
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/statements", Err: err}
	}
	if len(updated) == 0 {
		return &domain.ErrConflict{Message: fmt.Sprintf("statement %s was modified concurrently", s.ID)}
	}
	return nil
}

// GetStatement loads a saved statement.
func (c *Client) GetStatement(ctx context.Context, id string) (*domain.Statement, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetStatement")
	defer span.End()
	span.SetAttributes(attribute.String("statement.id", id))

	var rows []supabaseStatement
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("statements?id=eq.%s&limit=1", url.QueryEscape(id)))
		if err != nil || body == nil {
			return err
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/statements", Err: err}
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "statement", ID: id}
	}
	return rows[0].toDomain(), nil
}

// ListStatements returns the summaries of a client's statements, newest first.
func (c *Client) ListStatements(ctx context.Context, clientID string) ([]domain.StatementSummary, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListStatements")
	defer span.End()
	span.SetAttributes(attribute.String("client.id", clientID))

	var rows []supabaseStatement
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("statements?client_id=eq.%s&order=created_at.desc", url.QueryEscape(clientID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil || body == nil {
			return err
		}
		return json.Unmarshal(body, &rows)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/statements", Err: err}
	}

	out := make([]domain.StatementSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain().Summary())
	}
	return out, nil
}
