package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/jonkers71/unified-trading-system/internal/engine"
	"github.com/jonkers71/unified-trading-system/internal/models"
	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/internal/modules/health/service"
	"github.com/jonkers71/unified-trading-system/internal/tracker"
	"github.com/jonkers71/unified-trading-system/pkg/logger"
)

type Config struct {
	Addr string // например ":8080"
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: fmt.Sprintf(":%d", cfg.Service.AdminPort)}
}

func NewMux(cfg *config.Config, state *service.State, tr *tracker.Tracker) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// readiness: стартовая сверка с площадками прошла, движок принимает сигналы
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		// полезный JSON для отладки
		resp := map[string]any{
			"ready":       state.Ready(),
			"uptimeSec":   int64(state.Uptime().Seconds()),
			"mt5Up":       state.VenueUp(models.VenueForex),
			"mt5AuthOk":   state.AuthOK(models.VenueForex),
			"bybitUp":     state.VenueUp(models.VenueCrypto),
			"bybitAuthOk": state.AuthOK(models.VenueCrypto),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	channels := make([]string, 0, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels = append(channels, ch.Name)
	}

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		// Сводка для панели управления.
		resp := struct {
			EngineActive      bool                 `json:"engine_active"`
			MT5Connected      bool                 `json:"mt5_connected"`
			MT5Latency        int64                `json:"mt5_latency"`
			MT5AuthOK         bool                 `json:"mt5_auth_ok"`
			BybitConnected    bool                 `json:"bybit_connected"`
			BybitLatency      int64                `json:"bybit_latency"`
			BybitAuthOK       bool                 `json:"bybit_auth_ok"`
			DailyProfit       float64              `json:"daily_profit"`
			TradeHistory      []models.TradeRecord `json:"trade_history"`
			MonitoredChannels []string             `json:"monitored_channels"`
		}{
			EngineActive:      state.Ready(),
			MT5Connected:      state.VenueUp(models.VenueForex),
			MT5Latency:        state.LatencyMS(models.VenueForex),
			MT5AuthOK:         state.AuthOK(models.VenueForex),
			BybitConnected:    state.VenueUp(models.VenueCrypto),
			BybitLatency:      state.LatencyMS(models.VenueCrypto),
			BybitAuthOK:       state.AuthOK(models.VenueCrypto),
			DailyProfit:       tr.DailyProfit(),
			TradeHistory:      tr.History(),
			MonitoredChannels: channels,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	mux.HandleFunc("/performance", func(w http.ResponseWriter, r *http.Request) {
		p := state.Perf()
		if p == nil {
			http.Error(w, "not computed yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p)
	})

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			logger.Info("health http on %s", cfg.Addr)
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			func(s *service.State) engine.Health { return s },
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}
