package cancel

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix  = "cancel:batch:"
	defaultTTL = 24 * time.Hour
)

// flagStore - 취소 플래그에 필요한 Redis 명령
type flagStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// Flags - 배치 취소 플래그 (Redis)
// DB 상태가 진짜 기준이고, 플래그는 워커가 DB 조회 없이 빠르게 멈추기 위한 신호다.
type Flags struct {
	rdb flagStore
	ttl time.Duration
	log *zap.Logger
}

// NewFlags - 취소 플래그 클라이언트 생성
func NewFlags(rdb flagStore, log *zap.Logger) *Flags {
	return &Flags{
		rdb: rdb,
		ttl: defaultTTL,
		log: log.Named("cancel"),
	}
}

// SetBatchCancelled - 배치 취소 플래그 설정
func (f *Flags) SetBatchCancelled(ctx context.Context, batchID string) error {
	if err := f.rdb.Set(ctx, keyPrefix+batchID, "1", f.ttl).Err(); err != nil {
		return err
	}
	f.log.Info("🛑 [Cancel] Batch flagged as cancelled", zap.String("batch_id", batchID))
	return nil
}

// IsBatchCancelled - 플래그 조회 (Redis 장애 시 false, DB 상태 확인으로 넘어간다)
func (f *Flags) IsBatchCancelled(ctx context.Context, batchID string) bool {
	if batchID == "" {
		return false
	}

	n, err := f.rdb.Exists(ctx, keyPrefix+batchID).Result()
	if err != nil {
		f.log.Warn("⚠️ [Cancel] Failed to read cancel flag", zap.String("batch_id", batchID), zap.Error(err))
		return false
	}
	return n > 0
}
