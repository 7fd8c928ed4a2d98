package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/refbatch/refbatch/internal/config"
	"github.com/refbatch/refbatch/internal/database"
	"github.com/refbatch/refbatch/internal/handlers"
	"github.com/refbatch/refbatch/internal/infrastructure/objectstore"
	redisinfra "github.com/refbatch/refbatch/internal/infrastructure/redis"
	"github.com/refbatch/refbatch/internal/middleware"
	"github.com/refbatch/refbatch/internal/services"
)

func main() {
	cfg := config.Load()

	// Initialize database connection
	db, err := database.NewPostgresDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL database")

	// Initialize Redis connection
	rdb, err := redisinfra.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()
	log.Println("✅ Connected to Redis")

	// Optional artifact store
	var store *objectstore.Store
	if cfg.ArtifactEnabled() {
		store, err = objectstore.New(cfg.Artifact)
		if err != nil {
			log.Fatalf("Failed to init artifact store: %v", err)
		}
		log.Printf("✅ Artifact store ready (bucket %s)", cfg.Artifact.Bucket)
	} else {
		log.Println("⚠️  No artifact store configured, logs served from Redis only")
	}

	// Initialize services
	jobService := services.NewJobService(db)
	queueService := services.NewQueueService(rdb)

	persister := services.NewEventPersister(rdb, jobService)
	persister.Start()

	hub := services.NewWSHub(rdb)
	go hub.Run()

	// Initialize handlers
	jobHandler := handlers.NewJobHandler(jobService, queueService, store)
	wsHandler := handlers.NewWSHandler(hub, jobService, queueService)

	// Setup router
	router := gin.Default()

	// Apply CORS middleware
	router.Use(middleware.SetupCORS())

	// API routes
	api := router.Group("/api")
	{
		api.POST("/jobs", jobHandler.SubmitJob)
		api.GET("/jobs", jobHandler.ListJobs)
		api.GET("/jobs/:id", jobHandler.GetJob)
		api.POST("/jobs/:id/cancel", jobHandler.CancelJob)
		api.GET("/jobs/:id/log", jobHandler.GetJobLog)
		api.GET("/queues", jobHandler.GetQueueDepths)
	}

	// Live job events
	router.GET("/ws/jobs/:id", wsHandler.HandleWS)

	// Health check
	router.GET("/health", jobHandler.HealthCheck)

	// Start server
	log.Printf("🚀 Starting API server on http://localhost:%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
