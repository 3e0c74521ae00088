package models

import "time"

// Mode — режим исполнения: сколько ордеров ставим и на какие цели.
type Mode string

const (
	ModeHybrid      Mode = "hybrid"
	ModeSniper      Mode = "sniper"
	ModeSplit       Mode = "split"
	ModeScalper     Mode = "scalper"
	ModeProgressive Mode = "progressive"
)

// OrderIntent — один конкретный ордер к выставлению.
type OrderIntent struct {
	Symbol string
	Side   Side
	Size   float64
	TP     float64 // 0 — без цели
	Label  string  // "Hybrid: GoldSignals", "Split TP2: ..." и т.п.
}

// TrackedPosition — позиция под управлением движка.
// Персистится целиком как JSON-blob, ключ — локальный id.
type TrackedPosition struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Entry       float64   `json:"entry"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfits []float64 `json:"take_profits"`

	Venue    Venue  `json:"venue"`
	VenueRef string `json:"venue_ref"` // тикет MT5 / символ Bybit; "" — ждём филл

	Mode         Mode    `json:"mode"`
	OriginalSize float64 `json:"original_size"`

	// Флаги прогресса прогрессивного закрытия. Ставятся один раз.
	TP1Done bool `json:"tp1_done"`
	TP2Done bool `json:"tp2_done"`

	Restored bool      `json:"restored"` // подхвачена реконсиляцией, не открыта нами
	Channel  string    `json:"channel"`
	OpenedAt time.Time `json:"opened_at"`
}

// Pending — ордер отправлен, подтверждения тикета ещё нет.
func (p *TrackedPosition) Pending() bool { return p.VenueRef == "" }

// VenuePosition — живая позиция, как её отдаёт площадка.
type VenuePosition struct {
	Ref    string
	Symbol string
	Side   Side
	Size   float64
	Entry  float64
	SL     float64
	TP     float64
}

// ClosedDeal — закрытая сделка для агрегатора доходности.
type ClosedDeal struct {
	Time   time.Time
	Profit float64
}
