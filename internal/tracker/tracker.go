package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

// Tracker — единственный владелец отслеживаемых позиций и журнала.
// Монитор защиты и обработчик апдейтов меняют позиции только через него.
// Каждая мутация персистит полный снапшот: наблюдатели снаружи не видят
// состояния, которое не было закоммичено.
type Tracker struct {
	mu    sync.Mutex
	store Store
	tail  int

	byID        map[string]*models.TrackedPosition
	history     []models.TradeRecord
	dailyProfit float64
}

func New(store Store, historyTail int) *Tracker {
	if historyTail <= 0 {
		historyTail = 50
	}
	return &Tracker{
		store: store,
		tail:  historyTail,
		byID:  make(map[string]*models.TrackedPosition),
	}
}

// Load поднимает снапшот на старте. Вызывается до обработки сообщений.
func (t *Tracker) Load(ctx context.Context) error {
	if err := t.store.Ensure(ctx); err != nil {
		return err
	}
	snap, err := t.store.Load(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.byID = make(map[string]*models.TrackedPosition, len(snap.Positions))
	for i := range snap.Positions {
		pos := snap.Positions[i]
		t.byID[pos.ID] = &pos
	}
	t.history = snap.History
	t.dailyProfit = snap.DailyProfit

	logger.Info("tracker loaded: %d positions, %d history records", len(t.byID), len(t.history))
	return nil
}

func (t *Tracker) Add(ctx context.Context, pos models.TrackedPosition) error {
	if pos.ID == "" {
		return fmt.Errorf("tracker: position without id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cp := clonePos(&pos)
	t.byID[pos.ID] = &cp
	return t.persistLocked(ctx)
}

// Remove молчит про отсутствующий id: повторное удаление — no-op.
func (t *Tracker) Remove(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[id]; !ok {
		return nil
	}
	delete(t.byID, id)
	return t.persistLocked(ctx)
}

func (t *Tracker) Mutate(ctx context.Context, id string, fn func(*models.TrackedPosition)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("tracker: position %s not found", id)
	}
	fn(pos)
	return t.persistLocked(ctx)
}

func (t *Tracker) Get(id string) (models.TrackedPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.byID[id]
	if !ok {
		return models.TrackedPosition{}, false
	}
	return clonePos(pos), true
}

// All — снапшот-копия, менять её безопасно.
func (t *Tracker) All() []models.TrackedPosition {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.TrackedPosition, 0, len(t.byID))
	for _, pos := range t.byID {
		out = append(out, clonePos(pos))
	}
	return out
}

func (t *Tracker) Find(pred func(models.TrackedPosition) bool) []models.TrackedPosition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []models.TrackedPosition
	for _, pos := range t.byID {
		cp := clonePos(pos)
		if pred(cp) {
			out = append(out, cp)
		}
	}
	return out
}

func (t *Tracker) ByVenueRef(venue models.Venue, ref string) (models.TrackedPosition, bool) {
	if ref == "" {
		return models.TrackedPosition{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pos := range t.byID {
		if pos.Venue == venue && pos.VenueRef == ref {
			return clonePos(pos), true
		}
	}
	return models.TrackedPosition{}, false
}

// Record дописывает строку журнала, храня только хвост.
func (t *Tracker) Record(ctx context.Context, rec models.TradeRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history = append(t.history, rec)
	if len(t.history) > t.tail {
		t.history = t.history[len(t.history)-t.tail:]
	}
	return t.persistLocked(ctx)
}

func (t *Tracker) History() []models.TradeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.TradeRecord, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Tracker) DailyProfit() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dailyProfit
}

func (t *Tracker) SetDailyProfit(ctx context.Context, v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dailyProfit = v
	return t.persistLocked(ctx)
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	snap := Snapshot{
		Positions:   make([]models.TrackedPosition, 0, len(t.byID)),
		History:     make([]models.TradeRecord, len(t.history)),
		DailyProfit: t.dailyProfit,
	}
	for _, pos := range t.byID {
		snap.Positions = append(snap.Positions, clonePos(pos))
	}
	copy(snap.History, t.history)

	if err := t.store.Save(ctx, snap); err != nil {
		// Память уже обновлена; следующая мутация перезапишет стор целиком.
		logger.Error("tracker persist failed: %v", err)
		return err
	}
	return nil
}

func clonePos(p *models.TrackedPosition) models.TrackedPosition {
	cp := *p
	if p.TakeProfits != nil {
		cp.TakeProfits = append([]float64(nil), p.TakeProfits...)
	}
	return cp
}
