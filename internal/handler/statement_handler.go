package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Statements
// ============================================================

func importStatementHandler(svc *service.StatementService, maxUploadBytes int64, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/statements/import")
		defer span.End()

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			writeError(w, http.StatusBadRequest, "expected a multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing file")
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable file")
			return
		}

		req := &domain.ImportRequest{
			ClientID: r.FormValue("client_id"),
			Period:   r.FormValue("period"),
			FileName: header.Filename,
			Content:  content,
		}
		if raw := r.FormValue("commission_rate"); raw != "" {
			rate, err := decimal.NewFromString(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "commission_rate must be a decimal number")
				return
			}
			req.CommissionRate = &rate
		}
		span.SetAttributes(attribute.String("client.id", req.ClientID), attribute.String("file.name", req.FileName))

		result, err := svc.Import(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, result)
	}
}

func getStatementHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/statements/{statementId}")
		defer span.End()

		id := chi.URLParam(r, "statementId")
		span.SetAttributes(attribute.String("statement.id", id))

		objective := decimal.Zero
		if raw := r.URL.Query().Get("objective"); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil || v.IsNegative() {
				writeError(w, http.StatusBadRequest, "objective must be a non-negative decimal number")
				return
			}
			objective = v
		}

		view, err := svc.Get(ctx, id, objective)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func editRowHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/statements/{statementId}/rows/{index}")
		defer span.End()

		id := chi.URLParam(r, "statementId")
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "row index must be an integer")
			return
		}
		span.SetAttributes(attribute.String("statement.id", id), attribute.Int("row.index", index))

		var edit domain.RowEdit
		if err := decodeJSON(r, &edit); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		st, err := svc.EditRow(ctx, id, index, edit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func ownerCleaningFeeHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/statements/{statementId}/owner-cleaning-fee")
		defer span.End()

		var req domain.OwnerCleaningFeeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		st, err := svc.SetOwnerCleaningFee(ctx, chi.URLParam(r, "statementId"), req.Amount)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func transfersHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/statements/{statementId}/transfers")
		defer span.End()

		var req domain.TransferRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		alloc, err := svc.Transfers(ctx, chi.URLParam(r, "statementId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, alloc)
	}
}

func saveStatementHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/statements/{statementId}/save")
		defer span.End()

		st, err := svc.Save(ctx, chi.URLParam(r, "statementId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func sendStatementHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/statements/{statementId}/send")
		defer span.End()

		var req domain.SendRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		st, err := svc.Send(ctx, chi.URLParam(r, "statementId"), req.Recipient)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func discardStatementHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/statements/{statementId}")
		defer span.End()

		id := chi.URLParam(r, "statementId")
		if err := svc.Discard(ctx, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "draft discarded", ID: id})
	}
}

func listStatementsHandler(svc *service.StatementService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/clients/{clientId}/statements")
		defer span.End()

		list, err := svc.List(ctx, chi.URLParam(r, "clientId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.StatementSummary]{
			Data:  list,
			Total: len(list),
		})
	}
}
