package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"static-ad-server/modules/common/config"
)

// Options - Redis 연결 옵션 (asynq도 같은 값을 사용)
func Options(cfg *config.Config) *redis.Options {
	// TLS 설정 (InsecureSkipVerify 추가)
	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // Render.com Redis용
		}
	}

	return &redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Connect - Redis 연결 생성 + ping 테스트
func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	log.Info("🔌 [Redis] Connecting", zap.String("addr", cfg.GetRedisAddr()), zap.Bool("tls", cfg.RedisUseTLS))

	rdb := redis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("✅ [Redis] Connected")
	return rdb, nil
}
