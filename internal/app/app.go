package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/corpora-ai/corpora/internal/config"
	"github.com/corpora-ai/corpora/internal/core"
	db "github.com/corpora-ai/corpora/internal/core/database"
	"github.com/corpora-ai/corpora/internal/core/llm"
	"github.com/corpora-ai/corpora/internal/core/objectstore"
	"github.com/corpora-ai/corpora/internal/queue"
)

// App holds the API process dependencies: database, object storage, the
// Redis-backed task queue and the model providers.
type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient *objectstore.S3Client
	Queue        *queue.RedisQueue
	Server       *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectstore.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	taskQueue, err := queue.NewRedisQueue(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the task queue: %w", err)
	}
	if err := taskQueue.Ping(appCtx); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	log.Println("Task queue initialized and ready.")

	embedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}

	server := NewServer(cfg, dbClient, objClient, taskQueue, embedder, llmProvider)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Queue:        taskQueue,
		Server:       server,
	}, nil
}

// newEmbedder picks the simulated embedder when configured or when no API key
// is present, so the pipeline works end to end without external credentials.
func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	if cfg.UseSimulatedEmbed || cfg.AIAPIKey == "" {
		log.Println("Using simulated embeddings")
		return llm.NewSimulatedEmbedder(cfg.EmbedDim), nil
	}
	return llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
}

func (a *App) Close() {
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
