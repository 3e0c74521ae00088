package models

// SymbolTradeMode — режим торговли символом у терминала (коды MT5).
type SymbolTradeMode int

const (
	TradeModeDisabled  SymbolTradeMode = 0
	TradeModeLongOnly  SymbolTradeMode = 1
	TradeModeShortOnly SymbolTradeMode = 2
	TradeModeCloseOnly SymbolTradeMode = 3
	TradeModeFull      SymbolTradeMode = 4
)

// SymbolInfo — метаданные символа форекс-терминала.
type SymbolInfo struct {
	Symbol          string
	TickSize        float64
	TickValue       float64
	SizeStep        float64
	SizeMin         float64
	SizeMax         float64
	Point           float64
	Digits          int
	SpreadPoints    int
	StopLevelPoints int
	TradeMode       SymbolTradeMode
}

// InstrumentRules — лимиты инструмента криптобиржи (lotSizeFilter).
type InstrumentRules struct {
	Symbol      string
	QtyStep     float64
	MinQty      float64
	MinNotional float64
}

// Tick — текущая котировка.
type Tick struct {
	Bid float64
	Ask float64
}
