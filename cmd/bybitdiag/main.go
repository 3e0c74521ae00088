package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonkers71/unified-trading-system/internal/modules/bybit/service"
	"github.com/jonkers71/unified-trading-system/internal/modules/config"
	"github.com/jonkers71/unified-trading-system/internal/venue"
)

// bybitdiag прогоняет ключи Bybit по шагам, на которых обычно ломается
// авторизация: часы, баланс в настроенной среде, баланс в противоположной.
// Только читает, биржей не торгует.

func envName(testnet bool) string {
	if testnet {
		return "Testnet"
	}
	return "Mainnet"
}

func maskKey(k string) string {
	if len(k) < 9 {
		return "(not set)"
	}
	return k[:5] + "..." + k[len(k)-3:]
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println("--- Bybit Diagnostic ---")
	fmt.Printf("Environment: %s\n", envName(cfg.Bybit.Testnet))
	fmt.Printf("API Key: %s\n", maskKey(cfg.Bybit.APIKey))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cli := service.NewClient(cfg)

	// Часы: дрейф больше recv_window валит подпись раньше любой проверки ключей.
	if server, err := cli.ServerTime(ctx); err != nil {
		fmt.Printf("Server time: unavailable (%v)\n", err)
	} else {
		drift := time.Now().UnixMilli() - server.UnixMilli()
		fmt.Printf("Clock drift: %dms (recv_window %dms)\n", drift, cfg.Bybit.RecvWindow)
		if abs(drift) > int64(cfg.Bybit.RecvWindow) {
			fmt.Println("!!! drift exceeds recv_window: sync the system clock first")
		}
	}

	equity, err := cli.WalletBalance(ctx)
	if err == nil {
		fmt.Printf("Wallet: OK, totalEquity %.2f USDT\n", equity)
		return
	}
	fmt.Printf("Wallet: %v\n", err)
	if !errors.Is(err, venue.ErrAuth) {
		return // сеть или формат ответа, ключи ни при чём
	}

	// Частая ошибка — боевые ключи при testnet: true (и наоборот),
	// поэтому пробуем противоположную среду.
	alt := *cfg
	alt.Bybit.Testnet = !cfg.Bybit.Testnet
	if _, altErr := service.NewClient(&alt).WalletBalance(ctx); altErr == nil {
		fmt.Printf("!!! KEY MISMATCH: keys belong to %s, config says %s\n",
			envName(alt.Bybit.Testnet), envName(cfg.Bybit.Testnet))
		return
	}

	fmt.Println("Keys failed in both environments. Likely causes:")
	fmt.Println("  1. key permissions (wallet read required)")
	fmt.Println("  2. IP allowlist on the key")
	fmt.Println("  3. expired or revoked key")
	fmt.Println("  4. typo in key or secret")
}
