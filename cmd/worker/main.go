package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/refbatch/refbatch/internal/config"
	"github.com/refbatch/refbatch/internal/infrastructure/objectstore"
	redisinfra "github.com/refbatch/refbatch/internal/infrastructure/redis"
	"github.com/refbatch/refbatch/internal/services"
	"github.com/refbatch/refbatch/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to worker config YAML (optional)")
	flag.Parse()

	cfg := config.Load()
	workerCfg, err := config.LoadWorker(*configPath)
	if err != nil {
		log.Fatalf("Failed to load worker config: %v", err)
	}

	rdb, err := redisinfra.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()
	log.Println("✅ Connected to Redis")

	var store *objectstore.Store
	if cfg.ArtifactEnabled() {
		store, err = objectstore.New(cfg.Artifact)
		if err != nil {
			log.Fatalf("Failed to init artifact store: %v", err)
		}
		log.Printf("✅ Artifact store ready (bucket %s)", cfg.Artifact.Bucket)
	} else {
		log.Println("⚠️  No artifact store configured, logs kept in Redis only")
	}

	queueService := services.NewQueueService(rdb)
	agent := worker.NewAgent(workerCfg, queueService, store)

	log.Printf("🚀 Starting worker %s (region %s)", workerCfg.WorkerID, workerCfg.Region)
	agent.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down, letting running jobs finish...")
	agent.Stop()
	log.Println("Worker stopped")
}
