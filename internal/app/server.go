package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/corpora-ai/corpora/internal/api/handlers"
	appMiddleware "github.com/corpora-ai/corpora/internal/api/middlewares"
	"github.com/corpora-ai/corpora/internal/config"
	"github.com/corpora-ai/corpora/internal/core"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient,
	q interface {
		core.TaskQueue
		core.TaskStatusStore
	}, emb core.EmbeddingProvider, llm core.LLMProvider) *Server {

	authHandler := handlers.NewAuthHandler(db)
	collectionHandler := handlers.NewCollectionHandler(db, obj)
	embeddingHandler := handlers.NewEmbeddingHandler(db, q, q)
	chatHandler := handlers.NewChatHandler(db, emb, llm, cfg.EmbedDim)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/collections", collectionHandler.CreateCollection)
			protected.Get("/collections", collectionHandler.ListCollections)
			protected.Get("/collections/{collectionID}", collectionHandler.GetCollection)
			protected.Post("/collections/{collectionID}/documents", collectionHandler.UploadDocument)
			protected.Get("/collections/{collectionID}/documents", collectionHandler.ListDocuments)

			protected.Post("/embeddings/generate", embeddingHandler.Generate)
			protected.Get("/embeddings/status/{taskID}", embeddingHandler.GetStatus)
			protected.Get("/embeddings/document/{documentID}/status", embeddingHandler.GetDocumentStatus)
			protected.Get("/embeddings/collection/{collectionID}/status", embeddingHandler.GetCollectionStatus)

			protected.Post("/chat/query", chatHandler.Query)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until it fails or is shut down.
func (s *Server) Start() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
