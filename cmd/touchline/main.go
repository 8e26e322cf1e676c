// Command touchline scrapes football statistics sites into typed tables.
//
// Usage:
//
//	touchline serve
//	touchline migrate up
//	touchline backfill --league "Premier League" --season 2023-2024 --store
//	touchline fbref match https://fbref.com/en/matches/...
//	touchline fbref stats "Premier League" 2023-2024 shooting
//	touchline understat table EPL 2023/2024
//	touchline clubelo ranking --date 2024-01-01
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}
