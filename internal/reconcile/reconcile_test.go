package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/tracker"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

type nullStore struct{}

func (nullStore) Ensure(ctx context.Context) error                   { return nil }
func (nullStore) Load(ctx context.Context) (tracker.Snapshot, error) { return tracker.Snapshot{}, nil }
func (nullStore) Save(ctx context.Context, s tracker.Snapshot) error { return nil }

type fakeForex struct {
	positions []models.VenuePosition
	err       error
}

func (f *fakeForex) SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error) {
	return models.SymbolInfo{}, nil
}
func (f *fakeForex) Tick(ctx context.Context, symbol string) (models.Tick, error) {
	return models.Tick{}, nil
}
func (f *fakeForex) AccountBalance(ctx context.Context) (float64, error) { return 0, nil }
func (f *fakeForex) PlaceMarketOrder(ctx context.Context, req venue.MarketOrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}
func (f *fakeForex) ModifyStop(ctx context.Context, ticket string, newStop float64) (venue.StopResult, error) {
	return venue.StopResult{}, nil
}
func (f *fakeForex) ClosePartial(ctx context.Context, ticket string, size float64) (venue.StopResult, error) {
	return venue.StopResult{}, nil
}
func (f *fakeForex) OpenPositions(ctx context.Context, filterTag string) ([]models.VenuePosition, error) {
	return f.positions, f.err
}
func (f *fakeForex) ClosedDeals(ctx context.Context, since time.Time) ([]models.ClosedDeal, error) {
	return nil, nil
}
func (f *fakeForex) Ping(ctx context.Context) (time.Duration, error) { return 0, nil }

type fakeCrypto struct {
	positions []models.VenuePosition
	err       error
}

func (f *fakeCrypto) InstrumentRules(ctx context.Context, symbol string) (models.InstrumentRules, error) {
	return models.InstrumentRules{}, nil
}
func (f *fakeCrypto) WalletBalance(ctx context.Context) (float64, error) { return 0, nil }
func (f *fakeCrypto) PlaceMarketOrder(ctx context.Context, req venue.CryptoOrderRequest) (venue.OrderResult, error) {
	return venue.OrderResult{}, nil
}
func (f *fakeCrypto) SetTradingStop(ctx context.Context, req venue.TradingStopRequest) (venue.StopResult, error) {
	return venue.StopResult{}, nil
}
func (f *fakeCrypto) OpenPositions(ctx context.Context) ([]models.VenuePosition, error) {
	return f.positions, f.err
}
func (f *fakeCrypto) ClosedPnl(ctx context.Context, limit int) ([]models.ClosedDeal, error) {
	return nil, nil
}
func (f *fakeCrypto) Ping(ctx context.Context) (time.Duration, error) { return 0, nil }

func TestAdoptOrphanOnce(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(nullStore{}, 50)
	fx := &fakeForex{positions: []models.VenuePosition{{
		Ref: "777", Symbol: "XAUUSD+", Side: models.SideBuy,
		Size: 0.5, Entry: 2020, SL: 2010, TP: 2040,
	}}}
	e := New(tr, fx, nil, nil, "777001")

	e.Run(ctx)

	all := tr.All()
	if len(all) != 1 {
		t.Fatalf("tracked = %d, want 1", len(all))
	}
	got := all[0]
	if !got.Restored || got.VenueRef != "777" || got.Venue != models.VenueForex {
		t.Fatalf("adopted wrong: %+v", got)
	}
	if len(got.TakeProfits) != 1 || got.TakeProfits[0] != 2040 {
		t.Fatalf("venue target not carried: %v", got.TakeProfits)
	}
	if got.Mode == models.ModeProgressive {
		t.Fatal("adopted position must not partial-close")
	}

	// Повторный прогон не плодит дублей и записей.
	e.Run(ctx)
	if len(tr.All()) != 1 {
		t.Fatalf("second run duplicated: %d", len(tr.All()))
	}
	if len(tr.History()) != 1 {
		t.Fatalf("history records = %d, want 1", len(tr.History()))
	}
}

func TestDropVanishedOnce(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(nullStore{}, 50)
	_ = tr.Add(ctx, models.TrackedPosition{
		ID: "a", Symbol: "XAUUSD", Side: models.SideBuy,
		Venue: models.VenueForex, VenueRef: "888",
		Mode: models.ModeHybrid, OpenedAt: time.Now(),
	})
	e := New(tr, &fakeForex{}, nil, nil, "777001")

	e.Run(ctx)

	if len(tr.All()) != 0 {
		t.Fatalf("vanished position kept: %+v", tr.All())
	}
	if len(tr.History()) != 1 {
		t.Fatalf("history records = %d, want 1", len(tr.History()))
	}

	e.Run(ctx)
	if len(tr.History()) != 1 {
		t.Fatal("second run logged the drop again")
	}
}

func TestPendingSurvives(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(nullStore{}, 50)
	_ = tr.Add(ctx, models.TrackedPosition{
		ID: "a", Symbol: "XAUUSD", Side: models.SideBuy,
		Venue: models.VenueForex, VenueRef: "",
		Mode: models.ModeHybrid, OpenedAt: time.Now(),
	})
	e := New(tr, &fakeForex{}, nil, nil, "777001")

	e.Run(ctx)

	if len(tr.All()) != 1 {
		t.Fatal("pending position dropped before fill confirmation")
	}
	if len(tr.History()) != 0 {
		t.Fatalf("unexpected records: %+v", tr.History())
	}
}

func TestVenueFailureIsolated(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(nullStore{}, 50)
	_ = tr.Add(ctx, models.TrackedPosition{
		ID: "fx1", Symbol: "XAUUSD", Side: models.SideBuy,
		Venue: models.VenueForex, VenueRef: "888",
		Mode: models.ModeHybrid, OpenedAt: time.Now(),
	})

	fx := &fakeForex{err: errors.New("bridge down")}
	cx := &fakeCrypto{positions: []models.VenuePosition{{
		Ref: "BTCUSDT", Symbol: "BTCUSDT", Side: models.SideSell,
		Size: 0.25, Entry: 60000, SL: 61000, TP: 58000,
	}}}
	e := New(tr, fx, cx, nil, "777001")

	e.Run(ctx)

	// Форекс-запись не тронута: листинг упал, выводов не делаем.
	if _, ok := tr.ByVenueRef(models.VenueForex, "888"); !ok {
		t.Fatal("forex position dropped on listing failure")
	}
	// Крипта отработала.
	if _, ok := tr.ByVenueRef(models.VenueCrypto, "BTCUSDT"); !ok {
		t.Fatal("crypto orphan not adopted")
	}
}

func TestZeroSizeIgnored(t *testing.T) {
	ctx := context.Background()
	tr := tracker.New(nullStore{}, 50)
	fx := &fakeForex{positions: []models.VenuePosition{{
		Ref: "9", Symbol: "XAUUSD", Side: models.SideBuy, Size: 0,
	}}}
	e := New(tr, fx, nil, nil, "777001")

	e.Run(ctx)

	if len(tr.All()) != 0 {
		t.Fatalf("zero-size position adopted: %+v", tr.All())
	}
}
