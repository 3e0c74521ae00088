package models

import "time"

// TradeRecord — строка журнала действий движка. Только наблюдаемость,
// не участвует в принятии решений.
type TradeRecord struct {
	Time    time.Time `json:"time"`
	Symbol  string    `json:"symbol"`
	Side    Side      `json:"side"`
	Target  string    `json:"target"`
	Status  string    `json:"status"`
	Success bool      `json:"success"`
}

// DailyPnL — прибыль за календарный день (UTC).
type DailyPnL struct {
	Day string  `json:"day"` // YYYY-MM-DD
	PnL float64 `json:"pnl"`
}

// EquityPoint — точка кумулятивной кривой.
type EquityPoint struct {
	Time time.Time `json:"time"`
	Cum  float64   `json:"cum"`
}

// PerformanceStats пересобирается целиком на каждом цикле
// из закрытых сделок обеих площадок. Отдельно не персистится.
type PerformanceStats struct {
	Daily     []DailyPnL    `json:"daily"`
	Equity    []EquityPoint `json:"equity"`
	RefreshAt time.Time     `json:"refreshed_at"`
}
