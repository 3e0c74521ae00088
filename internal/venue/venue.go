// Package venue объявляет, что именно движку нужно от торговых площадок.
// Реализации живут в internal/modules/mt5 и internal/modules/bybit.
package venue

import (
	"context"
	"errors"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

// ErrSymbolNotFound возвращают обе площадки, когда инструмента нет.
// Движок по нему пробует суффикс-вариант символа.
var ErrSymbolNotFound = errors.New("symbol not found")

// ErrAuth — площадка не приняла учётные данные: ключ, подпись, права
// или разъехавшиеся часы. Движок по нему останавливает новые ордера
// на этой площадке до успешной повторной проверки.
var ErrAuth = errors.New("venue auth failed")

// OrderResult — ответ площадки на ордер. err у вызова — транспорт/авторизация,
// здесь — решение самой площадки.
type OrderResult struct {
	Success      bool
	Ticket       string // тикет позиции MT5, orderId Bybit
	RejectCode   string
	RejectReason string
}

// StopResult — ответ на модификацию стопа или частичное закрытие.
type StopResult struct {
	Success      bool
	RejectReason string
}

// MarketOrderRequest — рыночный ордер форекс-терминалу.
type MarketOrderRequest struct {
	Symbol     string
	Side       models.Side
	Size       float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// CryptoOrderRequest — рыночный ордер криптобирже.
// ReduceOnly ставится при закрытии встречным ордером, чтобы при
// расхождении объёма не перевернуть позицию.
type CryptoOrderRequest struct {
	Symbol     string
	Side       models.Side
	Qty        float64
	StopLoss   float64
	TakeProfit float64
	ReduceOnly bool
}

// TradingStopRequest — правка защитных уровней позиции на криптобирже.
// Нулевые поля не трогаем.
type TradingStopRequest struct {
	Symbol     string
	StopLoss   float64
	TakeProfit float64
	Size       float64
}

// ForexTerminal — операции форекс/металлического терминала.
type ForexTerminal interface {
	SymbolInfo(ctx context.Context, symbol string) (models.SymbolInfo, error)
	Tick(ctx context.Context, symbol string) (models.Tick, error)
	AccountBalance(ctx context.Context) (float64, error)
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (OrderResult, error)
	ModifyStop(ctx context.Context, ticket string, newStop float64) (StopResult, error)
	ClosePartial(ctx context.Context, ticket string, size float64) (StopResult, error)
	OpenPositions(ctx context.Context, filterTag string) ([]models.VenuePosition, error)
	ClosedDeals(ctx context.Context, since time.Time) ([]models.ClosedDeal, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// CryptoExchange — операции криптобиржи (линейные USDT-контракты).
type CryptoExchange interface {
	InstrumentRules(ctx context.Context, symbol string) (models.InstrumentRules, error)
	WalletBalance(ctx context.Context) (float64, error)
	PlaceMarketOrder(ctx context.Context, req CryptoOrderRequest) (OrderResult, error)
	SetTradingStop(ctx context.Context, req TradingStopRequest) (StopResult, error)
	OpenPositions(ctx context.Context) ([]models.VenuePosition, error)
	ClosedPnl(ctx context.Context, limit int) ([]models.ClosedDeal, error)
	Ping(ctx context.Context) (time.Duration, error)
}
