package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"qtcache/internal/config"
	"qtcache/pkg/market/exchanges/questrade"
)

func main() {
	// Loads .env as well, so QUESTRADE_* variables resolve.
	cfg := config.MustLoadGateway()

	gw, err := cfg.DefaultProvider()
	if err != nil {
		fmt.Printf("build default provider error: %v\n", err)
		os.Exit(1)
	}
	provider, ok := gw.(*questrade.Provider)
	if !ok {
		fmt.Printf("default provider %q is %T, not questrade\n", cfg.Default, gw)
		os.Exit(1)
	}
	name := cfg.DefaultName()
	pc := cfg.Providers[name]

	fmt.Println("───────────────────────────────────────────────")
	fmt.Printf("Provider:   %s (practice=%t)\n", name, pc.Practice)
	if pc.TokenFile != "" {
		fmt.Printf("Token file: %s\n", pc.TokenFile)
	} else {
		fmt.Println("Token file: (not set - refreshed tokens are not persisted)")
	}
	fmt.Println("───────────────────────────────────────────────")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tok, err := provider.Client().Tokens().Token(ctx)
	if err != nil {
		fmt.Printf("obtain access token error: %v\n", err)
		if pc.RefreshToken == "" {
			fmt.Println("Set QUESTRADE_REFRESH_TOKEN to a fresh refresh token from the Questrade app hub.")
		}
		os.Exit(1)
	}
	expires := time.Unix(int64(tok.ExpiresAt), 0)
	fmt.Printf("API server: %s\n", tok.APIServer)
	fmt.Printf("Expires:    %s (in %s)\n", expires.Format(time.RFC3339), time.Until(expires).Round(time.Second))

	ts, err := provider.Client().ServerTime(ctx)
	if err != nil {
		fmt.Printf("server time error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server time: %s\n", ts.Format(time.RFC3339Nano))
}
