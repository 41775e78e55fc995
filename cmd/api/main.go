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
	"github.com/RavenWorks247/AgroPredict/internal/observability"
	"github.com/RavenWorks247/AgroPredict/internal/server"
	"github.com/RavenWorks247/AgroPredict/internal/service/ai"
	"github.com/RavenWorks247/AgroPredict/internal/service/analysis"
	"github.com/RavenWorks247/AgroPredict/internal/service/chat"
	"github.com/RavenWorks247/AgroPredict/internal/service/extract"
	"github.com/RavenWorks247/AgroPredict/internal/service/session"
	"github.com/RavenWorks247/AgroPredict/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := storage.NewStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize %s storage: %v", cfg.Storage.Backend, err)
	}
	defer store.Close()
	log.Printf("storage backend: %s", cfg.Storage.Backend)

	if !cfg.AI.Enabled() {
		log.Fatalf("AI provider %q is missing credentials or model; 请检查模型相关环境变量", cfg.AI.Provider)
	}
	chatModel, err := ai.NewChatModel(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to create chat model: %v", err)
	}
	backend := ai.NewBackend(chatModel, cfg.AI.ResumeHistory)
	log.Printf("AI provider %s initialized (resume history: %t)", cfg.AI.Provider, cfg.AI.ResumeHistory)

	if cfg.Extractor.Token == "" {
		log.Println("HF_TOKEN not set, question answering requests will be anonymous")
	}
	extractor := extract.New(extract.NewHuggingFaceQA(cfg.Extractor.BaseURL, cfg.Extractor.Model, cfg.Extractor.Token))

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)
	contexts := chat.NewService(store, chat.Options{
		MaxTurns: cfg.Context.MaxTurns,
		Expiry:   cfg.Context.Expiry,
	})
	log.Printf("context window: %d turns, expiry %s", contexts.MaxTurns(), contexts.Expiry())

	router := handler.NewRouter(handler.Services{
		Advisor:  analysis.NewService(extractor, backend, contexts, metrics),
		Contexts: contexts,
		Records:  session.NewService(store),
		Metrics:  metrics,
	})

	if err := server.Run(ctx, "AgroPredict backend", server.New(cfg.Server.Addr, router)); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
