package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/pm-portal-bfa/internal/domain"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/cache"
	"github.com/boddenberg/pm-portal-bfa/internal/infra/observability"
	"github.com/boddenberg/pm-portal-bfa/internal/ingest"
	"github.com/boddenberg/pm-portal-bfa/internal/service"
	"github.com/boddenberg/pm-portal-bfa/internal/statement"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func exportLine(channel, guest, stay, cleaning, tax, commission, fee string) string {
	row := make([]string, ingest.ExportWidth)
	row[ingest.ColCheckIn] = "01/01/2025"
	row[ingest.ColCheckOut] = "05/01/2025"
	row[ingest.ColNights] = "4"
	row[ingest.ColGuests] = "2"
	row[ingest.ColChannel] = channel
	row[ingest.ColGuestName] = guest
	row[ingest.ColTotalPaid] = "125"
	row[ingest.ColStayPrice] = stay
	row[ingest.ColTouristTax] = tax
	row[ingest.ColCleaningFee] = cleaning
	row[ingest.ColPlatformCommission] = commission
	row[ingest.ColPaymentFee] = fee
	return strings.Join(row, ",")
}

func exportCSV() []byte {
	header := make([]string, ingest.ExportWidth)
	for i := range header {
		header[i] = "col"
	}
	lines := []string{
		strings.Join(header, ","),
		exportLine("AIRBNB", "Jeanne", "100", "20", "5", "10", "2"),
		exportLine("Site web", "Paul", "200", "30", "4", "0", "5"),
		exportLine("Booking.com", "PROPRIETAIRE", "0", "0", "0", "0", "0"),
		"too,short",
	}
	return []byte(strings.Join(lines, "\n"))
}

func newStatementFixture() (*service.StatementService, *mockStatementStore, *observability.Metrics) {
	store := newMockStatementStore()
	metrics := observability.NewMetrics()
	svc := service.NewStatementService(
		store,
		cache.New[*domain.Statement](time.Hour),
		nil,
		statement.NewRouter([]string{"stripe", "airbnb"}, "stripe"),
		decimal.RequireFromString("0.26"),
		metrics,
		zap.NewNop(),
	)
	return svc, store, metrics
}

func importSample(t *testing.T, svc *service.StatementService) *domain.ImportResult {
	t.Helper()
	res, err := svc.Import(context.Background(), &domain.ImportRequest{
		ClientID: "client-1",
		Period:   "2025-01",
		FileName: "export.csv",
		Content:  exportCSV(),
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	return res
}

func TestImport(t *testing.T) {
	svc, store, metrics := newStatementFixture()
	res := importSample(t, svc)

	r := res.Report
	if r.RowsRead != 4 || r.RowsProcessed != 2 || r.RowsSkipped != 2 || r.OwnerRows != 1 {
		t.Errorf("unexpected report counts %+v", r)
	}
	if !r.TaxZeroingApplied {
		t.Error("expected tax zeroing flag for the airbnb row")
	}
	if r.SourceChecksum == "" || r.StatementID == "" {
		t.Errorf("missing identifiers in report %+v", r)
	}

	st := res.Statement
	if st.Status != domain.StatementDraft {
		t.Errorf("expected draft, got %s", st.Status)
	}
	if got := st.Rows[0].ManagementCommission.String(); got != "22.88" {
		t.Errorf("expected commission 22.88, got %s", got)
	}
	if !st.Totals.InvoiceTotal.Equal(st.Totals.TotalCommission.Add(st.Totals.TotalCleaningFee)) {
		t.Errorf("unexpected invoice total %s", st.Totals.InvoiceTotal)
	}
	if store.creates != 0 {
		t.Error("drafts must not reach the store")
	}

	snap := metrics.GetImportSnapshot()
	if snap.RowsProcessed != 2 || snap.RowsSkipped != 2 || snap.OwnerRows != 1 {
		t.Errorf("unexpected import metrics %+v", snap)
	}
}

func TestImport_Rejections(t *testing.T) {
	svc, _, _ := newStatementFixture()
	tooHigh := decimal.RequireFromString("1.5")

	tests := []struct {
		name string
		req  *domain.ImportRequest
		want any
	}{
		{"missing client", &domain.ImportRequest{Period: "2025-01", FileName: "a.csv", Content: exportCSV()}, &domain.ErrValidation{}},
		{"bad period", &domain.ImportRequest{ClientID: "c", Period: "January", FileName: "a.csv", Content: exportCSV()}, &domain.ErrValidation{}},
		{"rate out of range", &domain.ImportRequest{ClientID: "c", Period: "2025-01", FileName: "a.csv", Content: exportCSV(), CommissionRate: &tooHigh}, &domain.ErrValidation{}},
		{"empty file", &domain.ImportRequest{ClientID: "c", Period: "2025-01", FileName: "a.csv"}, &domain.ErrImport{}},
		{"header only", &domain.ImportRequest{ClientID: "c", Period: "2025-01", FileName: "a.csv", Content: []byte("a,b,c\n")}, &domain.ErrImport{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(context.Background(), tt.req)
			switch tt.want.(type) {
			case *domain.ErrValidation:
				var ve *domain.ErrValidation
				if !errors.As(err, &ve) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
			case *domain.ErrImport:
				var ie *domain.ErrImport
				if !errors.As(err, &ie) {
					t.Fatalf("expected ErrImport, got %v", err)
				}
			}
		})
	}
}

func TestStatementLifecycle(t *testing.T) {
	svc, store, _ := newStatementFixture()
	ctx := context.Background()
	id := importSample(t, svc).Statement.ID

	// edit the draft
	stay := decimal.RequireFromString("150")
	edited, err := svc.EditRow(ctx, id, 0, domain.RowEdit{StayPrice: &stay})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if edited.Dirty {
		t.Error("drafts are never dirty")
	}
	if got := edited.Rows[0].ManagementCommission.String(); got != "35.88" {
		t.Errorf("expected re-derived commission 35.88, got %s", got)
	}

	// the edit is visible on read
	view, err := svc.Get(ctx, id, decimal.Zero)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !view.Totals.TotalCommission.Equal(edited.Totals.TotalCommission) {
		t.Errorf("read does not reflect the edit: %s vs %s", view.Totals.TotalCommission, edited.Totals.TotalCommission)
	}

	if _, err := svc.Send(ctx, id, "owner@example.com"); err == nil {
		t.Fatal("drafts cannot be sent")
	}

	saved, err := svc.Save(ctx, id)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if saved.Status != domain.StatementSaved || saved.Version != 1 || store.creates != 1 {
		t.Errorf("unexpected saved statement %+v", saved)
	}

	// owner cleaning fee on a saved statement leaves it dirty until saved
	withFee, err := svc.SetOwnerCleaningFee(ctx, id, decimal.RequireFromString("40"))
	if err != nil {
		t.Fatalf("set fee failed: %v", err)
	}
	if !withFee.Dirty {
		t.Error("expected saved statement to be dirty after an edit")
	}
	if !withFee.Totals.InvoiceTotal.Equal(saved.Totals.InvoiceTotal.Add(decimal.NewFromInt(40))) {
		t.Errorf("unexpected invoice total %s", withFee.Totals.InvoiceTotal)
	}
	if stored, _ := store.GetStatement(ctx, id); !stored.Totals.OwnerCleaningFee.IsZero() {
		t.Error("persisted record must not change before an explicit save")
	}
	if _, err := svc.Send(ctx, id, "owner@example.com"); err == nil {
		t.Fatal("unsaved edits must block sending")
	}

	resaved, err := svc.Save(ctx, id)
	if err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
	if resaved.Version != 2 || store.updates != 1 {
		t.Errorf("expected an update to version 2, got %+v", resaved)
	}

	sent, err := svc.Send(ctx, id, "owner@example.com")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if sent.Status != domain.StatementSent || sent.SentAt == nil || sent.Version != 3 {
		t.Errorf("unexpected sent statement %+v", sent)
	}

	var transition *domain.ErrInvalidTransition
	if err := svc.Discard(ctx, id); !errors.As(err, &transition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	list, err := svc.List(ctx, "client-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || list[0].Status != domain.StatementSent {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestEditRow_Rejections(t *testing.T) {
	svc, _, _ := newStatementFixture()
	ctx := context.Background()
	id := importSample(t, svc).Statement.ID

	if _, err := svc.EditRow(ctx, id, 9, domain.RowEdit{}); err == nil {
		t.Error("expected error for an unknown row")
	}
	owner := "Propriétaire"
	if _, err := svc.EditRow(ctx, id, 0, domain.RowEdit{GuestName: &owner}); err == nil {
		t.Error("expected error for the owner placeholder")
	}
	if _, err := svc.SetOwnerCleaningFee(ctx, id, decimal.NewFromInt(-1)); err == nil {
		t.Error("expected error for a negative fee")
	}
	if _, err := svc.EditRow(ctx, "missing", 0, domain.RowEdit{}); err == nil {
		t.Error("expected error for an unknown statement")
	}
}

func TestDiscardDraft(t *testing.T) {
	svc, _, _ := newStatementFixture()
	ctx := context.Background()
	id := importSample(t, svc).Statement.ID

	if err := svc.Discard(ctx, id); err != nil {
		t.Fatalf("discard failed: %v", err)
	}
	_, err := svc.Get(ctx, id, decimal.Zero)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound after discard, got %v", err)
	}
}

func TestTransfers(t *testing.T) {
	svc, _, _ := newStatementFixture()
	ctx := context.Background()
	res := importSample(t, svc)

	alloc, err := svc.Transfers(ctx, res.Statement.ID, &domain.TransferRequest{DeductFrom: "stripe"})
	if err != nil {
		t.Fatalf("transfers failed: %v", err)
	}
	airbnb, stripe := alloc.Groups["airbnb"], alloc.Groups["stripe"]
	if len(airbnb.Reservations) != 1 || len(stripe.Reservations) != 1 {
		t.Fatalf("unexpected grouping %+v", alloc.Groups)
	}
	if !airbnb.Total.Equal(res.Statement.Rows[0].NetPaidToOwner) {
		t.Errorf("unexpected airbnb total %s", airbnb.Total)
	}
	want := res.Statement.Rows[1].NetPaidToOwner.Sub(res.Statement.Totals.InvoiceTotal)
	if !stripe.Total.Equal(want) {
		t.Errorf("expected stripe total %s, got %s", want, stripe.Total)
	}

	if _, err := svc.Transfers(ctx, res.Statement.ID, &domain.TransferRequest{Rows: []int{5}}); err == nil {
		t.Error("expected error for an out of range selection")
	}
}

func TestGet_Ratios(t *testing.T) {
	svc, _, _ := newStatementFixture()
	res := importSample(t, svc)

	view, err := svc.Get(context.Background(), res.Statement.ID, decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	// 8 nights over 31 days
	if got := view.Ratios.Occupancy.String(); got != "0.2581" {
		t.Errorf("expected occupancy 0.2581, got %s", got)
	}
	if view.Ratios.ObjectiveProgress.IsZero() {
		t.Error("expected objective progress")
	}
}
