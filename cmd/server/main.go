package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrfdy6/aiclone-sub001/internal/api"
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

	srv := api.NewServer(cfg.Server, api.Services{
		Research:     a.Research,
		Intelligence: a.Intelligence,
		Discovery:    a.Discovery,
		Outreach:     a.Outreach,
		Learning:     a.Learning,
		Content:      a.Content,
		Scheduler:    a.Scheduler,
		Gateway:      a.Gateway,
		Hub:          a.Hub,
	}, nil)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), port)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", addr)
		errCh <- srv.ListenAndServe(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}
