package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/RavenWorks247/AgroPredict/internal/config"
	"github.com/RavenWorks247/AgroPredict/internal/handler"
	"github.com/RavenWorks247/AgroPredict/internal/handler/relay"
	"github.com/RavenWorks247/AgroPredict/internal/observability"
	"github.com/RavenWorks247/AgroPredict/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	log.Printf("relaying to %s (timeout %s)", cfg.Relay.BackendURL, cfg.Relay.Timeout)
	router := handler.NewRelayRouter(
		relay.New(cfg.Relay.BackendURL, cfg.Relay.Timeout),
		observability.NewMetrics(cfg.Metrics.Namespace+"_relay"),
	)

	if err := server.Run(ctx, "AgroPredict relay", server.New(cfg.Server.Addr, router)); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
