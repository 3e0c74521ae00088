// Package reconcile держит трекер честным относительно площадок:
// живые позиции без записи принимаются, записи без живой позиции
// выбрасываются. Запускается на старте и далее по таймеру.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/notify"
	"github.com/jonkers71/unified-trading-system/internal/tracker"
	"github.com/jonkers71/unified-trading-system/internal/venue"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
	"github.com/jonkers71/unified-trading-system/pkg/tracing"
)

type Engine struct {
	tracker  *tracker.Tracker
	forex    venue.ForexTerminal
	crypto   venue.CryptoExchange
	notifier notify.Notifier
	orderTag string

	newID func() string
}

func New(
	tr *tracker.Tracker,
	forex venue.ForexTerminal,
	crypto venue.CryptoExchange,
	n notify.Notifier,
	orderTag string,
) *Engine {
	if n == nil {
		n = notify.NewStdout()
	}
	return &Engine{
		tracker:  tr,
		forex:    forex,
		crypto:   crypto,
		notifier: n,
		orderTag: orderTag,
		newID:    uuid.NewString,
	}
}

// Run сверяет обе площадки. Ошибка одной не мешает другой:
// расхождения самолечатся на следующем запуске.
func (e *Engine) Run(ctx context.Context) {
	span, ctx := tracing.StartSpan(ctx, "reconcile.pass")
	defer span.Finish()

	if e.forex != nil {
		if err := e.reconcileVenue(ctx, models.VenueForex, func(ctx context.Context) ([]models.VenuePosition, error) {
			return e.forex.OpenPositions(ctx, e.orderTag)
		}); err != nil {
			logger.Error("reconcile forex: %v", err)
		}
	}
	if e.crypto != nil {
		if err := e.reconcileVenue(ctx, models.VenueCrypto, func(ctx context.Context) ([]models.VenuePosition, error) {
			return e.crypto.OpenPositions(ctx)
		}); err != nil {
			logger.Error("reconcile crypto: %v", err)
		}
	}
}

func (e *Engine) reconcileVenue(
	ctx context.Context,
	v models.Venue,
	list func(ctx context.Context) ([]models.VenuePosition, error),
) error {
	live, err := list(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]models.VenuePosition, len(live))
	for _, p := range live {
		if p.Ref != "" && p.Size > 0 {
			seen[p.Ref] = p
		}
	}

	for _, vp := range live {
		if vp.Ref == "" || vp.Size <= 0 {
			continue
		}
		if _, ok := e.tracker.ByVenueRef(v, vp.Ref); ok {
			continue
		}
		e.adopt(ctx, v, vp)
	}

	for _, pos := range e.tracker.All() {
		if pos.Venue != v || pos.Pending() {
			continue
		}
		if _, ok := seen[pos.VenueRef]; ok {
			continue
		}
		e.drop(ctx, pos)
	}
	return nil
}

// adopt заводит восстановленную запись по живой позиции площадки.
// Цель одна — та, что отдала площадка; прогрессивных частичек нет.
func (e *Engine) adopt(ctx context.Context, v models.Venue, vp models.VenuePosition) {
	pos := models.TrackedPosition{
		ID:           e.newID(),
		Symbol:       vp.Symbol,
		Side:         vp.Side,
		Entry:        vp.Entry,
		StopLoss:     vp.SL,
		Venue:        v,
		VenueRef:     vp.Ref,
		Mode:         models.ModeSniper,
		OriginalSize: vp.Size,
		Restored:     true,
		OpenedAt:     time.Now(),
	}
	if vp.TP > 0 {
		pos.TakeProfits = []float64{vp.TP}
	}

	if err := e.tracker.Add(ctx, pos); err != nil {
		logger.Error("reconcile: adopt %s %s: %v", vp.Symbol, vp.Ref, err)
		return
	}
	_ = e.tracker.Record(ctx, models.TradeRecord{
		Time:    time.Now(),
		Symbol:  vp.Symbol,
		Side:    vp.Side,
		Target:  "Restored",
		Status:  "Adopted from venue | ref " + vp.Ref,
		Success: true,
	})

	logger.Info("reconcile: adopted %s %s ref=%s size=%.4f", vp.Symbol, vp.Side, vp.Ref, vp.Size)
	e.notifier.Sendf("📥 [%s] Позиция подхвачена с площадки (ref %s)", vp.Symbol, vp.Ref)
}

func (e *Engine) drop(ctx context.Context, pos models.TrackedPosition) {
	if err := e.tracker.Remove(ctx, pos.ID); err != nil {
		logger.Error("reconcile: drop %s: %v", pos.ID, err)
		return
	}
	_ = e.tracker.Record(ctx, models.TradeRecord{
		Time:    time.Now(),
		Symbol:  pos.Symbol,
		Side:    pos.Side,
		Target:  "Closed",
		Status:  "Position gone from venue | ref " + pos.VenueRef,
		Success: true,
	})

	logger.Info("reconcile: dropped %s ref=%s (gone from venue)", pos.Symbol, pos.VenueRef)
	e.notifier.Sendf("📤 [%s] Позиция закрыта на площадке (ref %s)", pos.Symbol, pos.VenueRef)
}
