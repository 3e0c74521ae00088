package models

import "time"

// Venue — куда маршрутизируется сигнал.
type Venue string

const (
	VenueForex  Venue = "forex"
	VenueCrypto Venue = "crypto"
)

// Side как в движке: "BUY"/"SELL" или пустая строка.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return SideNone
}

// UpdateAction — управляющее действие поверх уже открытой позиции.
type UpdateAction string

const (
	ActionNone   UpdateAction = "NONE"
	ActionMoveSL UpdateAction = "MOVE_SL"
	ActionClose  UpdateAction = "CLOSE"
)

// ChannelMeta — откуда пришло сообщение и куда маршрутизировать.
type ChannelMeta struct {
	ID    int64
	Name  string
	Venue Venue
}

// Signal — одно распарсенное сообщение канала.
// Нулевые float-поля означают "не указано".
type Signal struct {
	Symbol      string
	Side        Side
	Entry       float64
	StopLoss    float64
	TakeProfits []float64

	Action      UpdateAction
	ActionPrice float64 // MOVE_SL с числом
	ToBreakeven bool    // MOVE_SL без числа ("BE")

	Venue     Venue
	ChannelID int64
	Channel   string
	CreatedAt time.Time
}

func (s *Signal) IsUpdate() bool { return s.Action != ActionNone }

// Tradeable: для нового входа нужны сторона, стоп и хотя бы одна цель.
// Entry сама по себе информационная — рынок берём по текущей цене.
func (s *Signal) Tradeable() bool {
	return s.Side != SideNone && s.StopLoss > 0 && len(s.TakeProfits) > 0
}

// Empty — ни одного осмысленного поля не извлечено.
func (s *Signal) Empty() bool {
	return s.Side == SideNone && s.Entry <= 0 && s.StopLoss <= 0 &&
		len(s.TakeProfits) == 0 && s.Action == ActionNone
}
