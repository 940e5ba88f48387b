// Package main provides the operator CLI over the Rollout Controller:
// query, update, stop, resume and history sub-commands, each a thin
// wrapper over internal/rollout.Controller against the live store.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/fairyhunter13/hybrid-capture/internal/adapter/observability"
	"github.com/fairyhunter13/hybrid-capture/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/hybrid-capture/internal/config"
	"github.com/fairyhunter13/hybrid-capture/internal/domain"
	"github.com/fairyhunter13/hybrid-capture/internal/rollout"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := observability.SetupLogger(cfg)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	controller := rollout.New(postgres.NewRolloutRepo(pool), logger)
	feature := domain.DefaultFeature

	switch os.Args[1] {
	case "query":
		runQuery(ctx, controller, feature)
	case "update":
		runUpdate(ctx, controller, feature, os.Args[2:])
	case "stop":
		runStop(ctx, controller, feature, os.Args[2:])
	case "resume":
		runResume(ctx, controller, feature, os.Args[2:])
	case "history":
		runHistory(ctx, controller, feature, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rolloutctl <query|update|stop|resume|history> [args]")
	fmt.Fprintln(os.Stderr, "  update <percentage> <reason> <triggered-by>")
	fmt.Fprintln(os.Stderr, "  stop <reason> <triggered-by>")
	fmt.Fprintln(os.Stderr, "  resume <reason> <triggered-by>")
	fmt.Fprintln(os.Stderr, "  history [limit]")
}

func runQuery(ctx context.Context, c *rollout.Controller, feature string) {
	cfg, err := c.Query(ctx, feature)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("feature=%s percentage=%d effective=%d strategy=%s emergency_stop=%t is_active=%t\n",
		cfg.Feature, cfg.Percentage, cfg.EffectivePercentage(), cfg.Strategy, cfg.EmergencyStop, cfg.IsActive)
}

func runUpdate(ctx context.Context, c *rollout.Controller, feature string, args []string) {
	if len(args) < 3 {
		usage()
		os.Exit(1)
	}
	pct, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatalf("invalid percentage %q: %v", args[0], err)
	}
	cfg, err := c.Update(ctx, feature, pct, args[1], args[2])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("updated feature=%s percentage=%d\n", cfg.Feature, cfg.Percentage)
}

func runStop(ctx context.Context, c *rollout.Controller, feature string, args []string) {
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	cfg, err := c.Stop(ctx, feature, args[0], args[1])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("stopped feature=%s emergency_stop=%t\n", cfg.Feature, cfg.EmergencyStop)
}

func runResume(ctx context.Context, c *rollout.Controller, feature string, args []string) {
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	cfg, err := c.Resume(ctx, feature, args[0], args[1])
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("resumed feature=%s is_active=%t\n", cfg.Feature, cfg.IsActive)
}

func runHistory(ctx context.Context, c *rollout.Controller, feature string, args []string) {
	limit := 20
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}
	entries, err := c.History(ctx, feature, limit)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range entries {
		fmt.Printf("%s action=%s %d->%d reason=%q triggered_by=%s\n",
			e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), e.Action, e.PreviousPercentage, e.NewPercentage, e.Reason, e.TriggeredBy)
	}
}
