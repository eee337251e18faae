package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier - 워커 → 사용자 이벤트 발행 (fire-and-forget)
// 웹소켓을 가진 API 프로세스의 Hub가 같은 채널을 구독해서 전달한다.
type RedisNotifier struct {
	rdb     publisher
	channel string
	log     *zap.Logger
}

func NewRedisNotifier(rdb publisher, channel string, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		rdb:     rdb,
		channel: channel,
		log:     log.Named("realtime"),
	}
}

func (n *RedisNotifier) EmitProgress(ctx context.Context, userID string, p Progress) {
	n.publish(ctx, Message{UserID: userID, Event: EventProgress, Data: p})
}

func (n *RedisNotifier) EmitCompleted(ctx context.Context, userID string, c Completed) {
	n.publish(ctx, Message{UserID: userID, Event: EventCompleted, Data: c})
}

func (n *RedisNotifier) EmitFailed(ctx context.Context, userID string, f Failed) {
	n.publish(ctx, Message{UserID: userID, Event: EventFailed, Data: f})
}

func (n *RedisNotifier) publish(ctx context.Context, msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		n.log.Warn("⚠️ [Realtime] Failed to encode message", zap.String("event", msg.Event), zap.Error(err))
		return
	}

	// 작업 컨텍스트가 취소돼도 마지막 이벤트는 보낸다
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := n.rdb.Publish(pubCtx, n.channel, raw).Err(); err != nil {
		n.log.Warn("⚠️ [Realtime] Failed to publish event",
			zap.String("event", msg.Event),
			zap.String("user_id", msg.UserID),
			zap.Error(err))
	}
}
