package tracker

import (
	"context"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

// Snapshot — полное персистентное состояние движка.
// Пишется и читается только целиком: никаких частично видимых записей.
type Snapshot struct {
	Positions   []models.TrackedPosition
	History     []models.TradeRecord
	DailyProfit float64
}

// Store — долговременное хранилище снапшота.
type Store interface {
	Ensure(ctx context.Context) error
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}
