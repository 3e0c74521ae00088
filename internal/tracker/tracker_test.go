package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

// memStore — стор в памяти с теми же replace-all семантиками.
type memStore struct {
	saves int
	last  Snapshot
}

func (m *memStore) Ensure(ctx context.Context) error { return nil }

func (m *memStore) Load(ctx context.Context) (Snapshot, error) { return m.last, nil }

func (m *memStore) Save(ctx context.Context, snap Snapshot) error {
	m.saves++
	m.last = snap
	return nil
}

func pos(id, symbol, ref string) models.TrackedPosition {
	return models.TrackedPosition{
		ID:          id,
		Symbol:      symbol,
		Side:        models.SideBuy,
		Entry:       2020,
		StopLoss:    2015,
		TakeProfits: []float64{2025, 2030},
		Venue:       models.VenueForex,
		VenueRef:    ref,
		Mode:        models.ModeHybrid,
		OpenedAt:    time.Now(),
	}
}

func TestAddPersistsFullSnapshot(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	tr := New(st, 50)

	if err := tr.Add(ctx, pos("a", "XAUUSD", "101")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := tr.Add(ctx, pos("b", "EURUSD", "102")); err != nil {
		t.Fatalf("add: %v", err)
	}

	if st.saves != 2 {
		t.Fatalf("saves = %d, want 2", st.saves)
	}
	if len(st.last.Positions) != 2 {
		t.Fatalf("snapshot positions = %d", len(st.last.Positions))
	}
}

func TestMutateThroughAPI(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	tr := New(st, 50)
	_ = tr.Add(ctx, pos("a", "XAUUSD", "101"))

	if err := tr.Mutate(ctx, "a", func(p *models.TrackedPosition) {
		p.TP1Done = true
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	got, ok := tr.Get("a")
	if !ok || !got.TP1Done {
		t.Fatalf("mutation lost: %+v", got)
	}

	if err := tr.Mutate(ctx, "missing", func(p *models.TrackedPosition) {}); err == nil {
		t.Fatal("mutate of unknown id must fail")
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	tr := New(&memStore{}, 50)
	_ = tr.Add(ctx, pos("a", "XAUUSD", "101"))

	all := tr.All()
	all[0].StopLoss = 1
	all[0].TakeProfits[0] = 1

	got, _ := tr.Get("a")
	if got.StopLoss == 1 || got.TakeProfits[0] == 1 {
		t.Fatal("external mutation leaked into tracker")
	}
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	tr := New(st, 50)
	_ = tr.Add(ctx, pos("a", "XAUUSD", "101"))

	if err := tr.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	saves := st.saves
	if err := tr.Remove(ctx, "a"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if st.saves != saves {
		t.Fatal("no-op remove must not persist")
	}
	if _, ok := tr.Get("a"); ok {
		t.Fatal("position still present")
	}
}

func TestByVenueRef(t *testing.T) {
	ctx := context.Background()
	tr := New(&memStore{}, 50)
	_ = tr.Add(ctx, pos("a", "XAUUSD", "101"))

	p := pos("b", "BTCUSDT", "BTCUSDT")
	p.Venue = models.VenueCrypto
	_ = tr.Add(ctx, p)

	if got, ok := tr.ByVenueRef(models.VenueForex, "101"); !ok || got.ID != "a" {
		t.Fatalf("forex ref lookup: %+v %v", got, ok)
	}
	if _, ok := tr.ByVenueRef(models.VenueCrypto, "101"); ok {
		t.Fatal("ref must be venue-scoped")
	}
	if _, ok := tr.ByVenueRef(models.VenueForex, ""); ok {
		t.Fatal("empty ref must not match")
	}
}

func TestHistoryTailBounded(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	tr := New(st, 3)

	for i := 0; i < 5; i++ {
		rec := models.TradeRecord{
			Time:   time.Now(),
			Symbol: "XAUUSD",
			Status: string(rune('a' + i)),
		}
		if err := tr.Record(ctx, rec); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	h := tr.History()
	if len(h) != 3 {
		t.Fatalf("history len = %d, want 3", len(h))
	}
	if h[0].Status != "c" || h[2].Status != "e" {
		t.Fatalf("wrong tail: %+v", h)
	}
	if len(st.last.History) != 3 {
		t.Fatalf("persisted history len = %d", len(st.last.History))
	}
}

func TestLoadRestoresState(t *testing.T) {
	ctx := context.Background()
	st := &memStore{}
	tr := New(st, 50)
	_ = tr.Add(ctx, pos("a", "XAUUSD", "101"))
	_ = tr.SetDailyProfit(ctx, 12.5)

	tr2 := New(st, 50)
	if err := tr2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := tr2.Get("a"); !ok {
		t.Fatal("position lost on reload")
	}
	if tr2.DailyProfit() != 12.5 {
		t.Fatalf("daily profit = %v", tr2.DailyProfit())
	}
}
