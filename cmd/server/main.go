package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vivavoce/defense-backend/internal/data/db"
	"github.com/vivavoce/defense-backend/internal/data/repos"
	"github.com/vivavoce/defense-backend/internal/handlers"
	"github.com/vivavoce/defense-backend/internal/pkg/envutil"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/platform/openai"
	"github.com/vivavoce/defense-backend/internal/platform/qdrant"
	"github.com/vivavoce/defense-backend/internal/platform/rediscache"
	"github.com/vivavoce/defense-backend/internal/server"
	"github.com/vivavoce/defense-backend/internal/services"
)

func main() {
	_ = godotenv.Load()

	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos from main...")
	documentRepo := repos.NewDocumentRepo(thePG, log)
	sessionRepo := repos.NewDefenseSessionRepo(thePG, log)
	chunkRepo := repos.NewDocumentChunkRepo(thePG, log)

	// Platform clients
	log.Info("Setting up platform clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	qdrantCfg, err := qdrant.ResolveConfigFromEnv()
	if err != nil {
		log.Error("Could not resolve Qdrant config", "error", err)
		os.Exit(1)
	}
	vectorStore, err := qdrant.NewVectorStore(log, qdrantCfg)
	if err != nil {
		log.Error("Could not init Qdrant vector store", "error", err)
		os.Exit(1)
	}
	statusCache, err := rediscache.NewStatusCache(log)
	if err != nil {
		log.Warn("Redis status cache unavailable, running without it", "error", err)
		statusCache = rediscache.NoopStatusCache{}
	}

	// Services
	log.Info("Setting up services from main...")
	extractService, err := services.NewTextExtractService(log)
	if err != nil {
		log.Error("Could not init TextExtractService", "error", err)
		os.Exit(1)
	}
	embeddingService, err := services.NewEmbeddingService(log, openaiClient)
	if err != nil {
		log.Error("Could not init EmbeddingService", "error", err)
		os.Exit(1)
	}
	vectorService, err := services.NewVectorService(log, chunkRepo, vectorStore, embeddingService)
	if err != nil {
		log.Error("Could not init VectorService", "error", err)
		os.Exit(1)
	}
	ragService, err := services.NewRAGService(log, sessionRepo, vectorService, openaiClient, statusCache)
	if err != nil {
		log.Error("Could not init RAGService", "error", err)
		os.Exit(1)
	}
	defenseService, err := services.NewDefenseService(
		log,
		documentRepo,
		sessionRepo,
		ragService,
		extractService,
		embeddingService,
		vectorService,
		statusCache,
	)
	if err != nil {
		log.Error("Could not init DefenseService", "error", err)
		os.Exit(1)
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	defenseHandler := handlers.NewDefenseHandler(log, defenseService, ragService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		DefenseHandler: defenseHandler,
	})

	port := envutil.String("PORT", "8080")
	log.Info("Server listening", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
