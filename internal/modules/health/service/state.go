package service

import (
	"sync/atomic"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/models"
)

// State — агрегированное состояние движка для HTTP-проб и /status.
// Пишут фоновые циклы движка, читают хендлеры. Только атомики, без локов.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	mt5   venueState
	bybit venueState

	perf atomic.Pointer[models.PerformanceStats]
}

// venueState — флаги одной площадки. authFail хранится инверсно:
// нулевое значение означает «авторизация в порядке».
type venueState struct {
	up        atomic.Bool
	latencyMS atomic.Int64
	authFail  atomic.Bool
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) venue(v models.Venue) *venueState {
	if v == models.VenueCrypto {
		return &s.bybit
	}
	return &s.mt5
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetVenueUp(v models.Venue, up bool) { s.venue(v).up.Store(up) }
func (s *State) VenueUp(v models.Venue) bool        { return s.venue(v).up.Load() }

func (s *State) SetLatency(v models.Venue, d time.Duration) {
	s.venue(v).latencyMS.Store(d.Milliseconds())
}

func (s *State) LatencyMS(v models.Venue) int64 { return s.venue(v).latencyMS.Load() }

func (s *State) SetAuthOK(v models.Venue, ok bool) { s.venue(v).authFail.Store(!ok) }
func (s *State) AuthOK(v models.Venue) bool        { return !s.venue(v).authFail.Load() }

func (s *State) SetPerf(p *models.PerformanceStats) { s.perf.Store(p) }
func (s *State) Perf() *models.PerformanceStats     { return s.perf.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
