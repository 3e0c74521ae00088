package tracker

import (
	"sync"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/helper"
	"github.com/jonkers71/unified-trading-system/internal/models"
)

// DedupCache гасит повторную доставку одного сигнала из нескольких
// каналов-ретрансляторов. Ключ — символ и сторона.
type DedupCache struct {
	mu     sync.Mutex
	window time.Duration // повтор внутри окна — дубликат
	purge  time.Duration // старше этого — выбрасываем при каждой проверке
	seen   map[string]time.Time
	now    func() time.Time
}

func NewDedupCache(window, purge time.Duration) *DedupCache {
	if window <= 0 {
		window = 10 * time.Minute
	}
	if purge <= 0 {
		purge = 60 * time.Minute
	}
	return &DedupCache{
		window: window,
		purge:  purge,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Duplicate чистит устаревшие ключи, затем проверяет окно.
// Свежий сигнал запоминается сразу.
func (d *DedupCache) Duplicate(symbol string, side models.Side) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, t := range d.seen {
		if now.Sub(t) > d.purge {
			delete(d.seen, k)
		}
	}

	key := helper.DedupKey(helper.NormSymbol(symbol), string(side))
	if t, ok := d.seen[key]; ok && now.Sub(t) <= d.window {
		return true
	}

	d.seen[key] = now
	return false
}
