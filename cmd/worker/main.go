package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/corpora-ai/corpora/internal/config"
	"github.com/corpora-ai/corpora/internal/core"
	db "github.com/corpora-ai/corpora/internal/core/database"
	"github.com/corpora-ai/corpora/internal/core/ingestion"
	"github.com/corpora-ai/corpora/internal/core/llm"
	"github.com/corpora-ai/corpora/internal/core/objectstore"
	"github.com/corpora-ai/corpora/internal/queue"
	"github.com/corpora-ai/corpora/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()

	dbClient, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer dbClient.Close()

	objClient, err := objectstore.NewS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("object client init failed: %v", err)
	}

	taskQueue, err := queue.NewRedisQueue(cfg.RedisURL)
	if err != nil {
		log.Fatalf("queue init failed: %v", err)
	}
	defer taskQueue.Close()

	var embedder core.EmbeddingProvider
	if cfg.UseSimulatedEmbed || cfg.AIAPIKey == "" {
		log.Println("Using simulated embeddings")
		embedder = llm.NewSimulatedEmbedder(cfg.EmbedDim)
	} else {
		embedder, err = llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			log.Fatalf("embedder init failed: %v", err)
		}
	}

	extractor := ingestion.NewDocconvExtractor(false)

	w := worker.New(dbClient, taskQueue, taskQueue, objClient, embedder, extractor, worker.Config{
		ChunkSize:         cfg.ChunkSize,
		ChunkOverlap:      cfg.ChunkOverlap,
		EmbedDim:          cfg.EmbedDim,
		PollTimeout:       cfg.PollTimeout,
		ReconnectAttempts: cfg.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay,
	})

	// A fatal error here means the queue stayed unreachable; exit so the
	// supervisor restarts the process.
	if err := w.Run(ctx); err != nil {
		log.Fatalf("worker exited: %v", err)
	}
	log.Println("worker stopped")
}
