package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"static-ad-server/modules/common/cancel"
	"static-ad-server/modules/common/config"
	"static-ad-server/modules/common/credit"
	"static-ad-server/modules/common/database"
	"static-ad-server/modules/common/gemini"
	"static-ad-server/modules/common/queue"
	commonredis "static-ad-server/modules/common/redis"
	"static-ad-server/modules/common/storage"
	"static-ad-server/modules/copywriter"
	"static-ad-server/modules/generation"
	"static-ad-server/modules/imagegen"
	"static-ad-server/modules/realtime"
)

// app - 조립된 컴포넌트와 종료 순서
type app struct {
	cfg     *config.Config
	hub     *realtime.Hub
	handler *generation.Handler
	closers []func()
	log     *zap.Logger
}

// newApp - 의존성 순서대로 생성 (저장소/외부 클라이언트 → 도메인 → 큐/워커)
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	rdb, err := commonredis.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.onClose(func() { _ = rdb.Close() })

	var supa *supabase.Client
	if cfg.DatabaseDriver == "supabase" || cfg.StorageDriver == "supabase" {
		if supa, err = database.NewSupabaseClient(cfg.SupabaseURL, cfg.SupabaseServiceKey); err != nil {
			a.Close()
			return nil, err
		}
	}

	store := newStore(cfg, supa, log)
	credits := credit.NewClient(store, log)
	flags := cancel.NewFlags(rdb, log)

	gem, err := gemini.NewClient(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	writer := copywriter.NewClient(gem, cfg.GeminiTextModel, log)
	images := imagegen.NewClient(gem, cfg.GeminiImageModel, cfg.ImageMaxAttempts, log)

	backend, err := newAssetBackend(cfg, supa)
	if err != nil {
		a.Close()
		return nil, err
	}
	assets := storage.NewClient(backend, cfg.WebPQuality, log)

	redisOpt := queue.RedisOpt(cfg)
	queueClient, err := queue.NewClient(redisOpt, cfg.QueueName, queue.DefaultOptions(cfg), log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.onClose(func() { _ = queueClient.Close() })

	a.hub = realtime.NewHub(log)
	if err := a.hub.StartForwarder(ctx, rdb, cfg.RealtimeChannel); err != nil {
		a.Close()
		return nil, err
	}
	notifier := realtime.NewRedisNotifier(rdb, cfg.RealtimeChannel, log)

	repo := generation.NewRepository(store, log)
	service := generation.NewService(repo, credits, writer, queueClient, flags, generation.SettingsFromConfig(cfg), log)
	a.handler = generation.NewHandler(service, log)

	if cfg.RunWorker {
		if err := a.startWorker(redisOpt, repo, writer, images, assets, notifier, flags); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) startWorker(redisOpt asynq.RedisClientOpt, repo *generation.Repository, writer *copywriter.Client, images *imagegen.Client, assets *storage.Client, notifier *realtime.RedisNotifier, flags *cancel.Flags) error {
	server := queue.NewServer(redisOpt, a.cfg.QueueName, a.cfg.WorkerConcurrency, a.log)
	generation.NewWorker(repo, writer, images, assets, notifier, flags, a.log).Register(server)
	if err := server.Start(); err != nil {
		return err
	}
	// 워커는 큐 클라이언트/Redis보다 먼저 멈춘다
	a.onClose(server.Shutdown)

	a.log.Info("👷 Generation worker running",
		zap.String("queue", a.cfg.QueueName),
		zap.Int("concurrency", a.cfg.WorkerConcurrency))
	return nil
}

func newStore(cfg *config.Config, supa *supabase.Client, log *zap.Logger) database.Store {
	if cfg.DatabaseDriver == "memory" {
		log.Warn("⚠️ Using in-memory database, data is lost on restart")
		store := database.NewMemoryStore()
		generation.RegisterMemoryRPCs(store)
		return store
	}
	return database.NewSupabaseStore(supa, log)
}

func newAssetBackend(cfg *config.Config, supa *supabase.Client) (storage.Backend, error) {
	switch cfg.StorageDriver {
	case "minio":
		return storage.NewMinioBackend(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL,
			cfg.StorageBucket, cfg.StoragePublicBaseURL)
	case "supabase":
		return storage.NewSupabaseBackend(supa.Storage, cfg.StorageBucket, cfg.StoragePublicBaseURL), nil
	}
	return nil, fmt.Errorf("unknown STORAGE_DRIVER: %s", cfg.StorageDriver)
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close - 등록의 역순으로 정리
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
