package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"GoCDN/config"
	"GoCDN/internal/mq"
	"GoCDN/internal/repo"
	"GoCDN/internal/service"
	"GoCDN/internal/storage"
	"GoCDN/internal/task"
	"GoCDN/internal/worker"
)

func main() {
	config.InitConfig()
	cfg := &config.AppConfig

	db, err := repo.OpenMysql(cfg)
	if err != nil {
		log.Fatalf("init mysql failed: %v", err)
	}

	var locker repo.Locker = repo.NewLocalLocker()
	rdb, err := repo.DialRedis(cfg)
	if err != nil {
		log.Printf("init redis failed, running without it: %v", err)
	} else {
		locker = repo.NewRedisLocker(rdb)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var blobs storage.Store
	switch strings.ToLower(cfg.StorageBackend) {
	case "minio":
		minioStore, err := storage.DialMinio(ctx, cfg, cfg.BucketName)
		if err != nil {
			log.Fatalf("init minio failed: %v", err)
		}
		blobs = minioStore
	default:
		diskStore, err := storage.NewDiskStore(cfg.BlobRoot)
		if err != nil {
			log.Fatalf("init blob root failed: %v", err)
		}
		blobs = diskStore
	}

	files := repo.NewFiles(db, nil)
	tasks := repo.NewTasks(db)
	resolver := service.NewResolver(files, blobs, locker, cfg.ScratchDir)
	ingester := service.NewIngester(resolver, service.IngestOptions{
		HTTPTimeout:  cfg.IngestHTTPTimeout,
		AllowPrivate: cfg.IngestAllowPrivate,
		AllowedHosts: cfg.IngestAllowedHosts,
		MaxBytes:     cfg.IngestMaxBytes,
	})
	manager := task.NewManager(tasks, mq.NewPublisher(cfg.RabbitMQURL), ingester)

	log.Println("ingest worker started")
	if err := worker.NewIngestWorker(cfg, tasks, manager).Run(ctx); err != nil {
		log.Fatalf("ingest worker stopped: %v", err)
	}
}
