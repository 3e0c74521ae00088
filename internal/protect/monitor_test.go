package protect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/tracker"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

type nullStore struct{}

func (nullStore) Ensure(ctx context.Context) error                  { return nil }
func (nullStore) Load(ctx context.Context) (tracker.Snapshot, error) { return tracker.Snapshot{}, nil }
func (nullStore) Save(ctx context.Context, s tracker.Snapshot) error { return nil }

type stopCall struct {
	ref  string
	stop float64
}

type partCall struct {
	ref  string
	size float64
}

type fakeForex struct {
	info           models.SymbolInfo
	tick           models.Tick
	positions      []models.VenuePosition
	rejectPartials bool

	mods  []stopCall
	parts []partCall
}

func (f *fakeForex) SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	return f.info, nil
}
func (f *fakeForex) Tick(ctx context.Context, symbol string) (models.Tick, error) {
	return f.tick, nil
}
func (f *fakeForex) AccountBalance(ctx context.Context) (float64, error) { return 10000, nil }
func (f *fakeForex) PlaceMarketOrder(ctx context.Context, req venue.MarketOrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{Success: true}, nil
}
func (f *fakeForex) ModifyStop(ctx context.Context, ticket string, newStop float64) (venue.StopResult, error) {
	f.mods = append(f.mods, stopCall{ticket, newStop})
	return venue.StopResult{Success: true}, nil
}
func (f *fakeForex) ClosePartial(ctx context.Context, ticket string, size float64) (venue.StopResult, error) {
	f.parts = append(f.parts, partCall{ticket, size})
	if f.rejectPartials {
		return venue.StopResult{RejectReason: "off quotes"}, nil
	}
	return venue.StopResult{Success: true}, nil
}
func (f *fakeForex) OpenPositions(ctx context.Context, filterTag string) ([]models.VenuePosition, error) {
	return f.positions, nil
}
func (f *fakeForex) ClosedDeals(ctx context.Context, since time.Time) ([]models.ClosedDeal, error) {
	return nil, nil
}
func (f *fakeForex) Ping(ctx context.Context) (time.Duration, error) { return 0, nil }

type fakeCrypto struct {
	positions []models.VenuePosition
	stops     []stopCall
}

func (f *fakeCrypto) InstrumentRules(ctx context.Context, symbol string) (models.InstrumentRules, error) {
	return models.InstrumentRules{}, nil
}
func (f *fakeCrypto) WalletBalance(ctx context.Context) (float64, error) { return 1000, nil }
func (f *fakeCrypto) PlaceMarketOrder(ctx context.Context, req venue.CryptoOrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{Success: true}, nil
}
func (f *fakeCrypto) SetTradingStop(ctx context.Context, req venue.TradingStopRequest) (venue.StopResult, error) {
	f.stops = append(f.stops, stopCall{req.Symbol, req.StopLoss})
	return venue.StopResult{Success: true}, nil
}
func (f *fakeCrypto) OpenPositions(ctx context.Context) ([]models.VenuePosition, error) {
	return f.positions, nil
}
func (f *fakeCrypto) ClosedPnl(ctx context.Context, limit int) ([]models.ClosedDeal, error) {
	return nil, nil
}
func (f *fakeCrypto) Ping(ctx context.Context) (time.Duration, error) { return 0, nil }

type fakePrices map[string]float64

func (f fakePrices) LastPrice(symbol string) (float64, bool) {
	px, ok := f[symbol]
	return px, ok
}

type fakeNotify struct{ msgs []string }

func (f *fakeNotify) Send(msg string)                  { f.msgs = append(f.msgs, msg) }
func (f *fakeNotify) Sendf(format string, args ...any) { f.Send(fmt.Sprintf(format, args...)) }

func goldInfo() models.SymbolInfo {
	return models.SymbolInfo{
		Symbol:   "XAUUSD",
		TickSize: 0.01, TickValue: 1,
		SizeStep: 0.01, SizeMin: 0.01, SizeMax: 50,
		Point: 0.01, Digits: 2,
	}
}

func goldTracked(t *testing.T, tr *tracker.Tracker, mode models.Mode) models.TrackedPosition {
	t.Helper()
	pos := models.TrackedPosition{
		ID:           "p1",
		Symbol:       "XAUUSD",
		Side:         models.SideBuy,
		Entry:        2020,
		StopLoss:     2015,
		TakeProfits:  []float64{2025, 2030, 2040},
		Venue:        models.VenueForex,
		VenueRef:     "555",
		Mode:         mode,
		OriginalSize: 1.00,
		OpenedAt:     time.Now(),
	}
	if err := tr.Add(context.Background(), pos); err != nil {
		t.Fatalf("add: %v", err)
	}
	return pos
}

func goldVenuePos(size float64) models.VenuePosition {
	return models.VenuePosition{
		Ref: "555", Symbol: "XAUUSD", Side: models.SideBuy,
		Size: size, Entry: 2020, SL: 2015,
	}
}

func TestProgressivePartialAtTP1(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	goldTracked(t, tr, models.ModeProgressive)

	fx := &fakeForex{
		info:      goldInfo(),
		tick:      models.Tick{Bid: 2025, Ask: 2025.3},
		positions: []models.VenuePosition{goldVenuePos(1.00)},
	}
	n := &fakeNotify{}
	m := New(Config{}, tr, fx, nil, nil, n)

	m.RunPass(context.Background())

	if len(fx.parts) != 1 {
		t.Fatalf("partials = %d, want 1", len(fx.parts))
	}
	if fx.parts[0].ref != "555" || !approx(fx.parts[0].size, 0.33) {
		t.Fatalf("partial = %+v", fx.parts[0])
	}
	got, _ := tr.Get("p1")
	if !got.TP1Done || got.TP2Done {
		t.Fatalf("flags: %+v", got)
	}
	if len(n.msgs) == 0 {
		t.Fatal("no partial notification")
	}

	// Повторный проход с тем же состоянием ничего не закрывает.
	m.RunPass(context.Background())
	if len(fx.parts) != 1 {
		t.Fatalf("repeat pass closed again: %d", len(fx.parts))
	}
}

func TestBothPartialsSamePass(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	goldTracked(t, tr, models.ModeProgressive)

	fx := &fakeForex{
		info:      goldInfo(),
		tick:      models.Tick{Bid: 2030, Ask: 2030.3},
		positions: []models.VenuePosition{goldVenuePos(1.00)},
	}
	m := New(Config{}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())

	if len(fx.parts) != 2 {
		t.Fatalf("partials = %d, want 2", len(fx.parts))
	}
	sum := fx.parts[0].size + fx.parts[1].size
	if sum > 1.00+1e-9 {
		t.Fatalf("partials %.4f exceed original", sum)
	}
	got, _ := tr.Get("p1")
	if !got.TP1Done || !got.TP2Done {
		t.Fatalf("flags: %+v", got)
	}
}

func TestPartialRetryAfterReject(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	goldTracked(t, tr, models.ModeProgressive)

	fx := &fakeForex{
		info:           goldInfo(),
		tick:           models.Tick{Bid: 2025, Ask: 2025.3},
		positions:      []models.VenuePosition{goldVenuePos(1.00)},
		rejectPartials: true,
	}
	m := New(Config{}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())
	if got, _ := tr.Get("p1"); got.TP1Done {
		t.Fatal("flag set despite venue reject")
	}

	fx.rejectPartials = false
	m.RunPass(context.Background())

	if len(fx.parts) != 2 {
		t.Fatalf("partial attempts = %d, want 2", len(fx.parts))
	}
	if got, _ := tr.Get("p1"); !got.TP1Done {
		t.Fatal("flag not set after successful retry")
	}
}

func TestBreakevenAfterTP1(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	goldTracked(t, tr, models.ModeHybrid)

	fx := &fakeForex{
		info:      goldInfo(),
		tick:      models.Tick{Bid: 2025, Ask: 2025.3},
		positions: []models.VenuePosition{goldVenuePos(1.00)},
	}
	m := New(Config{BEEnabled: true, BEBuffer: 5}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())

	if len(fx.parts) != 0 {
		t.Fatalf("hybrid mode must not partial-close: %d", len(fx.parts))
	}
	if len(fx.mods) != 1 {
		t.Fatalf("stop moves = %d, want 1", len(fx.mods))
	}
	if !approx(fx.mods[0].stop, 2020.05) {
		t.Fatalf("breakeven stop = %v", fx.mods[0].stop)
	}
}

func TestNoStopActionBeforeTP1(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	goldTracked(t, tr, models.ModeProgressive)

	fx := &fakeForex{
		info:      goldInfo(),
		tick:      models.Tick{Bid: 2024, Ask: 2024.3},
		positions: []models.VenuePosition{goldVenuePos(1.00)},
	}
	m := New(Config{BEEnabled: true, BEBuffer: 5}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())

	if len(fx.parts) != 0 || len(fx.mods) != 0 {
		t.Fatalf("acted before TP1: parts=%d mods=%d", len(fx.parts), len(fx.mods))
	}
}

// Трейлинг не ждёт первой цели, только гистерезис.
func TestTrailingRunsBeforeTP1(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	goldTracked(t, tr, models.ModeHybrid)

	fx := &fakeForex{
		info:      goldInfo(),
		tick:      models.Tick{Bid: 2024, Ask: 2024.3},
		positions: []models.VenuePosition{goldVenuePos(1.00)},
	}
	m := New(Config{TrailEnabled: true, TrailDistance: 15}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())

	if len(fx.mods) != 1 {
		t.Fatalf("stop moves = %d, want 1", len(fx.mods))
	}
	if !approx(fx.mods[0].stop, 2023.85) {
		t.Fatalf("trail stop = %v", fx.mods[0].stop)
	}
}

func TestTrailingInsideHysteresisHolds(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	goldTracked(t, tr, models.ModeHybrid)

	// Стоп 2015, дистанция 0.15: порог 2015.225, цена чуть ниже.
	fx := &fakeForex{
		info:      goldInfo(),
		tick:      models.Tick{Bid: 2015.2, Ask: 2015.5},
		positions: []models.VenuePosition{goldVenuePos(1.00)},
	}
	m := New(Config{TrailEnabled: true, TrailDistance: 15}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())

	if len(fx.mods) != 0 {
		t.Fatalf("moved inside hysteresis: %+v", fx.mods)
	}
}

func TestStopClampedToVenueMinDistance(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	pos := models.TrackedPosition{
		ID: "p1", Symbol: "XAUUSD", Side: models.SideBuy,
		Entry: 2020, StopLoss: 2015, TakeProfits: []float64{2020.2},
		Venue: models.VenueForex, VenueRef: "555",
		Mode: models.ModeHybrid, OriginalSize: 1.00, OpenedAt: time.Now(),
	}
	if err := tr.Add(context.Background(), pos); err != nil {
		t.Fatalf("add: %v", err)
	}

	info := goldInfo()
	info.StopLevelPoints = 50 // 0.5 ценовых единицы
	fx := &fakeForex{
		info:      info,
		tick:      models.Tick{Bid: 2020.3, Ask: 2020.6},
		positions: []models.VenuePosition{goldVenuePos(1.00)},
	}
	m := New(Config{BEEnabled: true, BEBuffer: 5}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())

	if len(fx.mods) != 1 {
		t.Fatalf("stop moves = %d, want 1", len(fx.mods))
	}
	if !approx(fx.mods[0].stop, 2019.8) {
		t.Fatalf("clamped stop = %v, want 2019.8", fx.mods[0].stop)
	}
}

func TestUntrackedPositionIgnored(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)

	fx := &fakeForex{
		info:      goldInfo(),
		tick:      models.Tick{Bid: 2030, Ask: 2030.3},
		positions: []models.VenuePosition{{Ref: "999", Symbol: "XAUUSD", Side: models.SideBuy, Size: 1, Entry: 2020, SL: 2015}},
	}
	m := New(Config{BEEnabled: true, TrailEnabled: true, TrailDistance: 15, BEBuffer: 5}, tr, fx, nil, nil, &fakeNotify{})

	m.RunPass(context.Background())

	if len(fx.parts) != 0 || len(fx.mods) != 0 {
		t.Fatalf("touched untracked position: parts=%d mods=%d", len(fx.parts), len(fx.mods))
	}
}

func TestCryptoBreakevenAndTrail(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	pos := models.TrackedPosition{
		ID: "c1", Symbol: "BTCUSDT", Side: models.SideBuy,
		Entry: 60000, StopLoss: 59000, TakeProfits: []float64{61000},
		Venue: models.VenueCrypto, VenueRef: "BTCUSDT",
		Mode: models.ModeScalper, OriginalSize: 0.5, OpenedAt: time.Now(),
	}
	if err := tr.Add(context.Background(), pos); err != nil {
		t.Fatalf("add: %v", err)
	}

	cx := &fakeCrypto{positions: []models.VenuePosition{{
		Ref: "BTCUSDT", Symbol: "BTCUSDT", Side: models.SideBuy,
		Size: 0.5, Entry: 60000, SL: 59000,
	}}}
	prices := fakePrices{"BTCUSDT": 61500}
	m := New(Config{BEEnabled: true, BEBuffer: 5, TrailEnabled: true, TrailDistance: 15}, tr, nil, cx, prices, &fakeNotify{})

	m.RunPass(context.Background())

	if len(cx.stops) != 2 {
		t.Fatalf("trading stops = %d, want 2", len(cx.stops))
	}
	if !approx(cx.stops[0].stop, 60030) {
		t.Fatalf("breakeven = %v, want 60030", cx.stops[0].stop)
	}
	if !approx(cx.stops[1].stop, 61407.75) {
		t.Fatalf("trail = %v, want 61407.75", cx.stops[1].stop)
	}
}

func TestCryptoSkippedWithoutPrice(t *testing.T) {
	tr := tracker.New(nullStore{}, 50)
	pos := models.TrackedPosition{
		ID: "c1", Symbol: "BTCUSDT", Side: models.SideBuy,
		Entry: 60000, StopLoss: 59000, TakeProfits: []float64{61000},
		Venue: models.VenueCrypto, VenueRef: "BTCUSDT",
		Mode: models.ModeScalper, OriginalSize: 0.5, OpenedAt: time.Now(),
	}
	if err := tr.Add(context.Background(), pos); err != nil {
		t.Fatalf("add: %v", err)
	}

	cx := &fakeCrypto{positions: []models.VenuePosition{{
		Ref: "BTCUSDT", Symbol: "BTCUSDT", Side: models.SideBuy,
		Size: 0.5, Entry: 60000, SL: 59000,
	}}}
	m := New(Config{BEEnabled: true, TrailEnabled: true, TrailDistance: 15, BEBuffer: 5}, tr, nil, cx, fakePrices{}, &fakeNotify{})

	m.RunPass(context.Background())

	if len(cx.stops) != 0 {
		t.Fatalf("acted without a price: %+v", cx.stops)
	}
}
