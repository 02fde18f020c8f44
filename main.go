package main

import (
	"context"
	"log"
	"strings"

	"GoCDN/config"
	"GoCDN/internal/handler"
	"GoCDN/internal/mq"
	"GoCDN/internal/repo"
	"GoCDN/internal/service"
	"GoCDN/internal/storage"
	"GoCDN/internal/task"
	"GoCDN/router"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	cfg := &config.AppConfig
	ctx := context.Background()

	db, err := repo.OpenMysql(cfg)
	if err != nil {
		log.Fatalf("init mysql failed: %v", err)
	}

	var (
		cache  repo.Cache
		locker repo.Locker = repo.NewLocalLocker()
	)
	rdb, err := repo.DialRedis(cfg)
	if err != nil {
		log.Printf("init redis failed, running without it: %v", err)
		rdb = nil
	} else {
		cache = repo.NewRedisCache(rdb)
		locker = repo.NewRedisLocker(rdb)
	}

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

	files := repo.NewFiles(db, cache)
	sessions := repo.NewSessions(db)
	tasks := repo.NewTasks(db)

	resolver := service.NewResolver(files, blobs, locker, cfg.ScratchDir)
	chunks := service.NewChunkManager(sessions, blobs, resolver, rdb, cfg.ChunkSessionTTL)
	streamer := service.NewStreamer(files, blobs, cfg.StreamBufferSize, cfg.CacheMaxAge)
	ingester := service.NewIngester(resolver, service.IngestOptions{
		HTTPTimeout:  cfg.IngestHTTPTimeout,
		AllowPrivate: cfg.IngestAllowPrivate,
		AllowedHosts: cfg.IngestAllowedHosts,
		MaxBytes:     cfg.IngestMaxBytes,
	})
	publisher := mq.NewPublisher(cfg.RabbitMQURL)
	taskManager := task.NewManager(tasks, publisher, ingester)

	sweeper := service.NewSweeper(sessions, chunks, cfg.ChunkSessionTTL, cfg.SessionSweepInterval)
	go sweeper.Run(ctx)

	if rdb != nil {
		if err := repo.EnableKeyspaceNotifications(ctx, rdb); err != nil {
			log.Printf("enable redis keyspace notifications failed: %v", err)
		} else {
			ready := make(chan struct{})
			go repo.ListenSessionExpiry(ctx, rdb, ready, sweeper.Reap)
			<-ready
		}
	}

	r := router.InitRouter(router.Handlers{
		Files:     handler.NewFileHandler(resolver, streamer, files, cfg.MaxUploadBytes),
		Chunks:    handler.NewChunkHandler(chunks, cfg.MaxUploadBytes),
		Ingest:    handler.NewIngestHandler(taskManager),
		JWTSecret: cfg.JWTSecret,
	})

	if err := r.Run(":8000"); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
