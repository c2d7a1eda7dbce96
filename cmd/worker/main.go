// The worker binary runs the background loops: scheduled topic replay,
// the weekly-report cron, and activity fan-out (webhooks included).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/app"
	"github.com/jrfdy6/aiclone-sub001/internal/config"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to wire services: %v", err)
	}
	defer a.Close()

	go a.Bus.Run()

	interval := time.Duration(cfg.Scheduler.TickIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log.Printf("worker started, tick interval %s", interval)

	a.Scheduler.Run(ctx, interval)
	log.Println("worker stopped")
}
