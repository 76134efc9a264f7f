package transfer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/galley-erp/galley/internal/ledger"
	"github.com/galley-erp/galley/internal/money"
	"github.com/galley-erp/galley/internal/observability"
	"github.com/galley-erp/galley/internal/period"
	"github.com/galley-erp/galley/internal/shared"
)

type fakeStore struct {
	stock     map[stockKey]ledger.StockLine
	transfers map[int64]Transfer
	lines     []Line
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stock:     make(map[stockKey]ledger.StockLine),
		transfers: make(map[int64]Transfer),
	}
}

func (f *fakeStore) clone() *fakeStore {
	c := &fakeStore{
		stock:     make(map[stockKey]ledger.StockLine, len(f.stock)),
		transfers: make(map[int64]Transfer, len(f.transfers)),
		lines:     append([]Line(nil), f.lines...),
		nextID:    f.nextID,
	}
	for k, v := range f.stock {
		c.stock[k] = v
	}
	for k, v := range f.transfers {
		c.transfers[k] = v
	}
	return c
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	c := f.clone()
	if err := fn(ctx, c); err != nil {
		return err
	}
	*f = *c
	return nil
}

func (f *fakeStore) GetTransfer(_ context.Context, id int64) (Transfer, []Line, error) {
	tr, ok := f.transfers[id]
	if !ok {
		return Transfer{}, nil, shared.NewNotFound("transfer", id)
	}
	var lines []Line
	for _, l := range f.lines {
		if l.TransferID == id {
			lines = append(lines, l)
		}
	}
	return tr, lines, nil
}

// GetLine implements StockReader for request-time sufficiency checks.
func (f *fakeStore) GetLine(_ context.Context, locationID, itemID int64) (ledger.StockLine, error) {
	line, ok := f.stock[stockKey{locationID, itemID}]
	if !ok {
		return ledger.StockLine{}, ledger.ErrLineNotFound
	}
	return line, nil
}

func (f *fakeStore) InsertTransfer(_ context.Context, tr *Transfer) error {
	f.nextID++
	tr.ID = f.nextID
	tr.RequestedAt = time.Now()
	f.transfers[tr.ID] = *tr
	return nil
}

func (f *fakeStore) InsertLine(_ context.Context, l *Line) error {
	f.nextID++
	l.ID = f.nextID
	f.lines = append(f.lines, *l)
	return nil
}

func (f *fakeStore) GetTransferForUpdate(_ context.Context, id int64) (Transfer, error) {
	tr, ok := f.transfers[id]
	if !ok {
		return Transfer{}, shared.NewNotFound("transfer", id)
	}
	return tr, nil
}

func (f *fakeStore) GetLines(_ context.Context, transferID int64) ([]Line, error) {
	var lines []Line
	for _, l := range f.lines {
		if l.TransferID == transferID {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, status Status, decidedBy *int64, decidedAt *time.Time) error {
	tr := f.transfers[id]
	tr.Status = status
	tr.DecidedBy = decidedBy
	tr.DecidedAt = decidedAt
	f.transfers[id] = tr
	return nil
}

func (f *fakeStore) StockLineForUpdate(_ context.Context, locationID, itemID int64) (ledger.StockLine, error) {
	line, ok := f.stock[stockKey{locationID, itemID}]
	if !ok {
		return ledger.StockLine{LocationID: locationID, ItemID: itemID, OnHand: decimal.Zero, WAC: decimal.Zero}, ledger.ErrLineNotFound
	}
	return line, nil
}

func (f *fakeStore) SaveStockLine(_ context.Context, line ledger.StockLine) error {
	f.stock[stockKey{line.LocationID, line.ItemID}] = line
	return nil
}

type fakeGuard struct{}

func (fakeGuard) EnsureOpenForPosting(_ context.Context, periodID, _ int64) (period.Period, error) {
	return period.Period{
		ID:        periodID,
		Status:    period.StatusOpen,
		StartDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakeIdem struct{ keys map[string]bool }

func (i *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if i.keys == nil {
		i.keys = make(map[string]bool)
	}
	if i.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[key] = true
	return nil
}

func (i *fakeIdem) Delete(_ context.Context, key string) error {
	delete(i.keys, key)
	return nil
}

type fakeAudit struct{ logs []shared.AuditLog }

func (a *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(store *fakeStore) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, store, fakeGuard{}, &fakeIdem{}, &fakeAudit{}, observability.New(), logger)
}

func basicRequest(lines ...LineInput) RequestInput {
	return RequestInput{
		FromLocationID: 1,
		ToLocationID:   2,
		PeriodID:       3,
		Reference:      "TRF-3001",
		TransferDate:   time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		Lines:          lines,
	}
}

func seedStock(store *fakeStore, locationID, itemID int64, onHand, wac string) {
	store.stock[stockKey{locationID, itemID}] = ledger.StockLine{
		LocationID: locationID, ItemID: itemID,
		OnHand: money.Must(onHand), WAC: money.Must(wac),
	}
}

func ledgerValue(store *fakeStore) decimal.Decimal {
	total := money.Zero
	for _, line := range store.stock {
		total = total.Add(line.OnHand.Mul(line.WAC))
	}
	return total
}

func TestRequestFreezesCostAndMovesNothing(t *testing.T) {
	store := newFakeStore()
	seedStock(store, 1, 10, "100", "10.00")
	svc := newTestService(store)

	tr, lines, err := svc.Request(context.Background(), basicRequest(LineInput{ItemID: 10, Quantity: money.Must("40")}))
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, tr.Status)
	require.True(t, lines[0].WACAtTransfer.Equal(money.Must("10.00")))
	require.True(t, lines[0].LineValue.Equal(money.Must("400.00")))

	src := store.stock[stockKey{1, 10}]
	require.True(t, src.OnHand.Equal(money.Must("100")), "request must not move stock")
	_, destExists := store.stock[stockKey{2, 10}]
	require.False(t, destExists)
}

func TestRequestInsufficientStock(t *testing.T) {
	store := newFakeStore()
	seedStock(store, 1, 10, "5", "10.00")
	svc := newTestService(store)

	_, _, err := svc.Request(context.Background(), basicRequest(LineInput{ItemID: 10, Quantity: money.Must("6")}))
	require.Error(t, err)
	require.Equal(t, shared.CodeInsufficientStock, shared.CodeOf(err))
	require.Empty(t, store.transfers)
}

func TestRequestRejectsSameLocation(t *testing.T) {
	svc := newTestService(newFakeStore())
	in := basicRequest(LineInput{ItemID: 10, Quantity: money.Must("1")})
	in.ToLocationID = in.FromLocationID
	_, _, err := svc.Request(context.Background(), in)
	require.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}

func TestApproveMovesStockAndConservesValue(t *testing.T) {
	store := newFakeStore()
	seedStock(store, 1, 10, "100", "10.00")
	svc := newTestService(store)
	before := ledgerValue(store)

	tr, _, err := svc.Request(context.Background(), basicRequest(LineInput{ItemID: 10, Quantity: money.Must("10")}))
	require.NoError(t, err)

	ctx := shared.ContextWithActor(context.Background(), &shared.Actor{ID: 9, Role: "camp-boss"})
	done, err := svc.Approve(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.DecidedBy)
	require.EqualValues(t, 9, *done.DecidedBy)
	require.NotNil(t, done.DecidedAt)

	src := store.stock[stockKey{1, 10}]
	dst := store.stock[stockKey{2, 10}]
	require.True(t, src.OnHand.Equal(money.Must("90")))
	require.True(t, dst.OnHand.Equal(money.Must("10")))
	require.True(t, dst.WAC.Equal(money.Must("10.00")), "destination takes source cost")

	drift := ledgerValue(store).Sub(before).Abs()
	require.True(t, drift.LessThanOrEqual(money.Must("0.01")), "value drift %s", drift)
}

func TestApproveAveragesIntoExistingDestinationStock(t *testing.T) {
	store := newFakeStore()
	seedStock(store, 1, 10, "50", "10.00")
	seedStock(store, 2, 10, "10", "20.00")
	svc := newTestService(store)

	tr, _, err := svc.Request(context.Background(), basicRequest(LineInput{ItemID: 10, Quantity: money.Must("10")}))
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), tr.ID)
	require.NoError(t, err)

	dst := store.stock[stockKey{2, 10}]
	require.True(t, dst.OnHand.Equal(money.Must("20")))
	// (10×20 + 10×10) / 20 = 15
	require.True(t, dst.WAC.Equal(money.Must("15")), "wac %s", dst.WAC)
}

func TestApproveRevalidatesAndLeavesTransferPending(t *testing.T) {
	store := newFakeStore()
	seedStock(store, 1, 10, "50", "10.00")
	svc := newTestService(store)

	tr, _, err := svc.Request(context.Background(), basicRequest(LineInput{ItemID: 10, Quantity: money.Must("40")}))
	require.NoError(t, err)

	// Concurrent consumption drains the source before approval.
	seedStock(store, 1, 10, "20", "10.00")

	_, err = svc.Approve(context.Background(), tr.ID)
	require.Error(t, err)
	require.Equal(t, shared.CodeInsufficientStock, shared.CodeOf(err))

	got, _, err := svc.Get(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingApproval, got.Status, "failed approval must not change status")

	src := store.stock[stockKey{1, 10}]
	require.True(t, src.OnHand.Equal(money.Must("20")), "failed approval must not move stock")
	_, destExists := store.stock[stockKey{2, 10}]
	require.False(t, destExists)
}

func TestRejectIsTerminalWithNoLedgerEffect(t *testing.T) {
	store := newFakeStore()
	seedStock(store, 1, 10, "50", "10.00")
	svc := newTestService(store)

	tr, _, err := svc.Request(context.Background(), basicRequest(LineInput{ItemID: 10, Quantity: money.Must("10")}))
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	src := store.stock[stockKey{1, 10}]
	require.True(t, src.OnHand.Equal(money.Must("50")))

	_, err = svc.Approve(context.Background(), tr.ID)
	require.Error(t, err)
	require.Equal(t, shared.CodeInvalidState, shared.CodeOf(err))

	_, err = svc.Reject(context.Background(), tr.ID)
	require.Error(t, err)
	require.Equal(t, shared.CodeInvalidState, shared.CodeOf(err))
}

func TestValidateTransition(t *testing.T) {
	require.True(t, ValidateTransition(StatusDraft, StatusPendingApproval))
	require.True(t, ValidateTransition(StatusPendingApproval, StatusCompleted))
	require.True(t, ValidateTransition(StatusPendingApproval, StatusRejected))
	require.False(t, ValidateTransition(StatusCompleted, StatusRejected))
	require.False(t, ValidateTransition(StatusRejected, StatusPendingApproval))
	require.False(t, ValidateTransition(StatusDraft, StatusCompleted))
}
