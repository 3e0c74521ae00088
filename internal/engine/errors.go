package engine

import "github.com/pkg/errors"

// Классы отказов конвейера. Каждый алерт заканчивается либо позицией,
// либо ровно одной записью журнала с одним из этих классов.
var (
	ErrParseRejected    = errors.New("signal incomplete")
	ErrDuplicate        = errors.New("duplicate signal")
	ErrVenueDisabled    = errors.New("venue disabled")
	ErrAuthDegraded     = errors.New("venue auth degraded")
	ErrSymbolUnresolved = errors.New("symbol unresolved")
	ErrSpreadTooWide    = errors.New("spread too wide")
	ErrPositionLimit    = errors.New("position limit reached")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrSizingInvalid    = errors.New("sizing invalid")
	ErrOrderRejected    = errors.New("order rejected")
)
