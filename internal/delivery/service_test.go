package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/galley-erp/galley/internal/ledger"
	"github.com/galley-erp/galley/internal/money"
	"github.com/galley-erp/galley/internal/ncr"
	"github.com/galley-erp/galley/internal/observability"
	"github.com/galley-erp/galley/internal/period"
	"github.com/galley-erp/galley/internal/shared"
)

type stockKey struct{ locationID, itemID int64 }

type fakeStore struct {
	stock      map[stockKey]ledger.StockLine
	deliveries []Delivery
	lines      []Line
	ncrs       []ncr.NCR
	nextID     int64
	failNCR    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{stock: make(map[stockKey]ledger.StockLine)}
}

func (f *fakeStore) clone() *fakeStore {
	c := &fakeStore{
		stock:      make(map[stockKey]ledger.StockLine, len(f.stock)),
		deliveries: append([]Delivery(nil), f.deliveries...),
		lines:      append([]Line(nil), f.lines...),
		ncrs:       append([]ncr.NCR(nil), f.ncrs...),
		nextID:     f.nextID,
		failNCR:    f.failNCR,
	}
	for k, v := range f.stock {
		c.stock[k] = v
	}
	return c
}

// WithTx mimics transactional semantics: fn runs against a copy that only
// replaces the live state on success.
func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	c := f.clone()
	if err := fn(ctx, c); err != nil {
		return err
	}
	*f = *c
	return nil
}

func (f *fakeStore) GetDelivery(_ context.Context, id int64) (Delivery, []Line, error) {
	for _, d := range f.deliveries {
		if d.ID == id {
			var lines []Line
			for _, l := range f.lines {
				if l.DeliveryID == id {
					lines = append(lines, l)
				}
			}
			return d, lines, nil
		}
	}
	return Delivery{}, nil, shared.NewNotFound("delivery", id)
}

func (f *fakeStore) InsertDelivery(_ context.Context, d *Delivery) error {
	f.nextID++
	d.ID = f.nextID
	d.PostedAt = time.Now()
	f.deliveries = append(f.deliveries, *d)
	return nil
}

func (f *fakeStore) InsertLine(_ context.Context, l *Line) error {
	f.nextID++
	l.ID = f.nextID
	f.lines = append(f.lines, *l)
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

func (f *fakeStore) InsertNCR(_ context.Context, n *ncr.NCR) error {
	if f.failNCR {
		return errors.New("ncr insert failed")
	}
	f.nextID++
	n.ID = f.nextID
	f.ncrs = append(f.ncrs, *n)
	return nil
}

type fakeGuard struct {
	closed bool
}

func (g *fakeGuard) EnsureOpenForPosting(_ context.Context, periodID, locationID int64) (period.Period, error) {
	if g.closed {
		return period.Period{}, shared.NewPeriodNotOpen(periodID, locationID, string(period.StatusClosed))
	}
	return period.Period{
		ID:        periodID,
		Status:    period.StatusOpen,
		StartDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	}, nil
}

type fakePrices struct {
	prices map[int64]decimal.Decimal
}

func (p *fakePrices) GetPrices(_ context.Context, _ int64, itemIDs []int64) (map[int64]decimal.Decimal, []int64, error) {
	out := make(map[int64]decimal.Decimal)
	var missing []int64
	for _, id := range itemIDs {
		price, ok := p.prices[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out[id] = price
	}
	return out, missing, nil
}

type fakeIdem struct {
	keys map[string]bool
}

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

type fakeAudit struct {
	logs []shared.AuditLog
}

func (a *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type fakeEvents struct {
	ncrs []ncr.NCR
}

func (e *fakeEvents) NCRCreated(_ context.Context, n *ncr.NCR) {
	e.ncrs = append(e.ncrs, *n)
}

type testEnv struct {
	svc    *Service
	store  *fakeStore
	guard  *fakeGuard
	prices *fakePrices
	idem   *fakeIdem
	audit  *fakeAudit
	events *fakeEvents
}

func newTestEnv() *testEnv {
	env := &testEnv{
		store:  newFakeStore(),
		guard:  &fakeGuard{},
		prices: &fakePrices{prices: map[int64]decimal.Decimal{}},
		idem:   &fakeIdem{},
		audit:  &fakeAudit{},
		events: &fakeEvents{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.svc = NewService(env.store, env.guard, env.prices, env.idem, env.audit, observability.New(), logger)
	env.svc.SetEvents(env.events)
	return env
}

func basicInput(lines ...LineInput) PostInput {
	return PostInput{
		LocationID:   1,
		PeriodID:     3,
		Reference:    "DN-1001",
		DeliveryDate: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		Lines:        lines,
	}
}

func TestPostFirstDeliverySetsWAC(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")

	d, lines, err := env.svc.Post(context.Background(), basicInput(LineInput{
		ItemID: 10, ItemName: "Rice", Quantity: money.Must("100"), UnitPrice: money.Must("10.00"),
	}))
	require.NoError(t, err)
	require.True(t, d.TotalValue.Equal(money.Must("1000.00")), "total %s", d.TotalValue)
	require.False(t, d.HasVariance)
	require.Len(t, lines, 1)
	require.Empty(t, env.store.ncrs)

	stock := env.store.stock[stockKey{1, 10}]
	require.True(t, stock.OnHand.Equal(money.Must("100")))
	require.True(t, stock.WAC.Equal(money.Must("10.00")))
}

func TestPostSecondDeliveryAveragesAndRaisesNCR(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")
	env.store.stock[stockKey{1, 10}] = ledger.StockLine{
		LocationID: 1, ItemID: 10, OnHand: money.Must("100"), WAC: money.Must("10.00"),
	}

	d, lines, err := env.svc.Post(context.Background(), basicInput(LineInput{
		ItemID: 10, ItemName: "Rice", Quantity: money.Must("50"), UnitPrice: money.Must("12.00"),
	}))
	require.NoError(t, err)
	require.True(t, d.HasVariance)
	require.True(t, lines[0].VarianceValue.Equal(money.Must("100.00")), "variance %s", lines[0].VarianceValue)

	stock := env.store.stock[stockKey{1, 10}]
	require.True(t, stock.OnHand.Equal(money.Must("150")))
	require.True(t, stock.WAC.Equal(money.Must("10.6667")), "wac %s", stock.WAC)

	require.Len(t, env.store.ncrs, 1)
	report := env.store.ncrs[0]
	require.Equal(t, ncr.TypePriceVariance, report.Type)
	require.True(t, report.AutoGenerated)
	require.True(t, report.Value.Equal(money.Must("100.00")), "ncr value %s", report.Value)
	require.Contains(t, report.Reason, "Rice")
}

func TestPostMissingPeriodPriceFailsClosed(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")

	_, _, err := env.svc.Post(context.Background(), basicInput(
		LineInput{ItemID: 10, ItemName: "Rice", Quantity: money.Must("5"), UnitPrice: money.Must("10.00")},
		LineInput{ItemID: 11, ItemName: "Flour", Quantity: money.Must("5"), UnitPrice: money.Must("4.00")},
	))
	require.Error(t, err)
	require.Equal(t, shared.CodeMissingPeriodPrice, shared.CodeOf(err))
	appErr, _ := shared.AsAppError(err)
	require.Equal(t, []int64{11}, appErr.Details["item_ids"])

	require.Empty(t, env.store.deliveries)
	require.Empty(t, env.store.stock)
}

func TestPostRejectedWhenPeriodNotOpen(t *testing.T) {
	env := newTestEnv()
	env.guard.closed = true
	env.prices.prices[10] = money.Must("10.00")

	_, _, err := env.svc.Post(context.Background(), basicInput(LineInput{
		ItemID: 10, ItemName: "Rice", Quantity: money.Must("5"), UnitPrice: money.Must("10.00"),
	}))
	require.Error(t, err)
	require.Equal(t, shared.CodePeriodNotOpen, shared.CodeOf(err))
	require.Empty(t, env.store.deliveries)
}

func TestPostRejectsDateOutsidePeriod(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")

	in := basicInput(LineInput{ItemID: 10, ItemName: "Rice", Quantity: money.Must("5"), UnitPrice: money.Must("10.00")})
	in.DeliveryDate = time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	_, _, err := env.svc.Post(context.Background(), in)
	require.Error(t, err)
	require.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}

func TestPostRollsBackEverythingOnMidTxFailure(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")
	env.store.failNCR = true

	in := basicInput(LineInput{
		ItemID: 10, ItemName: "Rice", Quantity: money.Must("50"), UnitPrice: money.Must("12.00"),
	})
	in.IdempotencyKey = "dup-1"
	_, _, err := env.svc.Post(context.Background(), in)
	require.Error(t, err)

	require.Empty(t, env.store.deliveries)
	require.Empty(t, env.store.lines)
	require.Empty(t, env.store.stock)
	require.False(t, env.idem.keys["dup-1"], "failed posting must release its key")
	require.Empty(t, env.events.ncrs, "rolled-back NCRs must not be announced")
}

func TestPostAnnouncesNCRsOnlyAfterCommit(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")

	_, _, err := env.svc.Post(context.Background(), basicInput(LineInput{
		ItemID: 10, ItemName: "Rice", Quantity: money.Must("50"), UnitPrice: money.Must("12.00"),
	}))
	require.NoError(t, err)
	require.Len(t, env.events.ncrs, 1)
	require.Equal(t, ncr.TypePriceVariance, env.events.ncrs[0].Type)
	require.NotZero(t, env.events.ncrs[0].ID)
}

func TestPostAcceptsTimestampOnLastDayOfPeriod(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")

	in := basicInput(LineInput{ItemID: 10, ItemName: "Rice", Quantity: money.Must("5"), UnitPrice: money.Must("10.00")})
	in.DeliveryDate = time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	_, _, err := env.svc.Post(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, env.store.deliveries, 1)
}

func TestPostDuplicateIdempotencyKey(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")

	in := basicInput(LineInput{ItemID: 10, ItemName: "Rice", Quantity: money.Must("5"), UnitPrice: money.Must("10.00")})
	in.IdempotencyKey = "key-1"
	_, _, err := env.svc.Post(context.Background(), in)
	require.NoError(t, err)

	in.Reference = "DN-1002"
	_, _, err = env.svc.Post(context.Background(), in)
	require.Error(t, err)
	require.Equal(t, shared.CodeIdempotency, shared.CodeOf(err))
	require.Len(t, env.store.deliveries, 1)
}

func TestPostRejectsBadLines(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")

	_, _, err := env.svc.Post(context.Background(), basicInput(LineInput{
		ItemID: 10, ItemName: "Rice", Quantity: money.Must("0"), UnitPrice: money.Must("10.00"),
	}))
	require.Equal(t, shared.CodeValidation, shared.CodeOf(err))

	_, _, err = env.svc.Post(context.Background(), basicInput(
		LineInput{ItemID: 10, ItemName: "Rice", Quantity: money.Must("1"), UnitPrice: money.Must("10.00")},
		LineInput{ItemID: 10, ItemName: "Rice", Quantity: money.Must("2"), UnitPrice: money.Must("10.00")},
	))
	require.Equal(t, shared.CodeValidation, shared.CodeOf(err))
}

func TestPostRecordsAudit(t *testing.T) {
	env := newTestEnv()
	env.prices.prices[10] = money.Must("10.00")
	ctx := shared.ContextWithActor(context.Background(), &shared.Actor{ID: 42, Role: "storekeeper"})

	d, _, err := env.svc.Post(ctx, basicInput(LineInput{
		ItemID: 10, ItemName: "Rice", Quantity: money.Must("5"), UnitPrice: money.Must("10.00"),
	}))
	require.NoError(t, err)
	require.NotNil(t, d.PostedBy)
	require.EqualValues(t, 42, *d.PostedBy)
	require.Len(t, env.audit.logs, 1)
	require.Equal(t, "delivery.posted", env.audit.logs[0].Action)
}
