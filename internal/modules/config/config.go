package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	bybitKeyENV       = "BYBIT_API_KEY"
	bybitSecretENV    = "BYBIT_API_SECRET"
	mt5BridgeENV      = "MT5_BRIDGE_URL"
	mt5TokenENV       = "MT5_API_TOKEN"
)

// Channel — отслеживаемый источник сигналов.
type Channel struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"` // forex | crypto
}

// Config ...
type Config struct {
	Telegram struct {
		Token       string `yaml:"token"`
		AdminChatID int64  `yaml:"admin_chat_id"`
	} `yaml:"telegram"`

	DB string `yaml:"db_dsn"`

	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`

	MT5 struct {
		Enabled      bool   `yaml:"enabled"`
		BridgeURL    string `yaml:"bridge_url"`
		APIToken     string `yaml:"api_token"`
		MagicNumber  int64  `yaml:"magic_number"`
		SymbolSuffix string `yaml:"symbol_suffix"` // "+" для брокеров с EURUSD+
	} `yaml:"mt5"`

	Bybit struct {
		Enabled    bool   `yaml:"enabled"`
		Testnet    bool   `yaml:"testnet"`
		APIKey     string `yaml:"api_key"`
		APISecret  string `yaml:"api_secret"`
		RecvWindow int    `yaml:"recv_window"` // мс
	} `yaml:"bybit"`

	Trading struct {
		DefaultRiskPercent float64   `yaml:"default_risk_percent"` // 1.0 => 1% депозита на стоп
		TPMode             string    `yaml:"tp_mode"`              // hybrid|sniper|split|scalper|progressive
		FinalTarget        string    `yaml:"final_target"`         // tp2|tp3
		TPSplit            []float64 `yaml:"tp_split"`

		BEEnabled        bool    `yaml:"be_enabled"`
		BEBuffer         float64 `yaml:"be_buffer"` // пункты
		TrailingEnabled  bool    `yaml:"trailing_enabled"`
		TrailingDistance float64 `yaml:"trailing_distance"` // пункты

		// Спред-фильтр: металлы ходят шире, лимит отдельный.
		MaxSpreadGold  int `yaml:"max_spread_gold"`
		MaxSpreadForex int `yaml:"max_spread_forex"`

		MaxPositionsPerSymbol int `yaml:"max_positions_per_symbol"`
	} `yaml:"trading"`

	Channels []Channel `yaml:"channels"`

	Tracing struct {
		Enabled       bool   `yaml:"enabled"`
		AgentHostPort string `yaml:"agent_host_port"`
	} `yaml:"tracing"`

	// Интервалы фоновых циклов
	ProtectionInterval time.Duration
	LatencyInterval    time.Duration
	PerfInterval       time.Duration
	ReconcileInterval  time.Duration

	// Дедуп сигналов
	DedupWindow     time.Duration
	DedupPurgeAfter time.Duration

	HistoryTail int
}

// RiskFraction переводит проценты конфига в долю.
func (c *Config) RiskFraction() float64 {
	return c.Trading.DefaultRiskPercent / 100.0
}

func NewConfig() (*Config, error) {
	// Секреты локальной разработки: .env рядом с бинарём, без ошибки если нет.
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		ProtectionInterval: durationFromEnv("PROTECTION_INTERVAL", "1s"),
		LatencyInterval:    durationFromEnv("LATENCY_INTERVAL", "10s"),
		PerfInterval:       durationFromEnv("PERF_INTERVAL", "60s"),
		ReconcileInterval:  durationFromEnv("RECONCILE_INTERVAL", "5m"),

		DedupWindow:     durationFromEnv("DEDUP_WINDOW", "10m"),
		DedupPurgeAfter: durationFromEnv("DEDUP_PURGE_AFTER", "60m"),

		HistoryTail: intFromEnv("HISTORY_TAIL", 50),
	}

	config.Service.AdminPort = intFromEnv("ADMIN_PORT", 8080)

	config.MT5.MagicNumber = 777001
	config.MT5.SymbolSuffix = ""

	config.Bybit.RecvWindow = 15000

	config.Trading.DefaultRiskPercent = 1.0
	config.Trading.TPMode = "hybrid"
	config.Trading.FinalTarget = "tp3"
	config.Trading.TPSplit = []float64{33, 33, 34}
	config.Trading.BEEnabled = true
	config.Trading.BEBuffer = 5.0
	config.Trading.TrailingEnabled = true
	config.Trading.TrailingDistance = 15.0
	config.Trading.MaxSpreadGold = 800
	config.Trading.MaxSpreadForex = 5
	config.Trading.MaxPositionsPerSymbol = 3

	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if k := os.Getenv(bybitKeyENV); k != "" {
		config.Bybit.APIKey = k
	}
	if s := os.Getenv(bybitSecretENV); s != "" {
		config.Bybit.APISecret = s
	}
	if u := os.Getenv(mt5BridgeENV); u != "" {
		config.MT5.BridgeURL = u
	}
	if t := os.Getenv(mt5TokenENV); t != "" {
		config.MT5.APIToken = t
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Trading.TPMode {
	case "hybrid", "sniper", "split", "scalper", "progressive":
	default:
		return fmt.Errorf("unknown tp_mode %q", c.Trading.TPMode)
	}
	switch c.Trading.FinalTarget {
	case "tp2", "tp3":
	default:
		return fmt.Errorf("unknown final_target %q", c.Trading.FinalTarget)
	}
	if len(c.Trading.TPSplit) < 3 {
		return fmt.Errorf("tp_split wants 3 percentages, got %d", len(c.Trading.TPSplit))
	}
	for _, ch := range c.Channels {
		if ch.Type != "forex" && ch.Type != "crypto" {
			return fmt.Errorf("channel %q: unknown type %q", ch.Name, ch.Type)
		}
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
