package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"static-ad-server/modules/common/config"
	commonredis "static-ad-server/modules/common/redis"
)

// successRetention - RemoveOnSuccess=false일 때 완료 작업 보관 기간
const successRetention = 24 * time.Hour

// Options - 작업별 보관/재시도 정책
type Options struct {
	RemoveOnSuccess bool
	RetainOnFailure bool
	MaxRetry        int
	Timeout         time.Duration
}

// Job - 큐에 넣을 작업 하나
// ID가 있으면 asynq TaskID로 쓰여 같은 ID의 중복 등록이 거부된다.
type Job struct {
	ID      string
	Type    string
	Payload interface{}
	Options *Options
}

// envelope - 큐에 저장되는 실제 페이로드
type envelope struct {
	RetainOnFailure bool            `json:"retain_on_failure"`
	Data            json.RawMessage `json:"data"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client - 작업 등록 클라이언트
type Client struct {
	enq      enqueuer
	closer   func() error
	queue    string
	defaults Options
	log      *zap.Logger
}

// RedisOpt - asynq Redis 연결 옵션 (go-redis 연결과 같은 설정)
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	opts := commonredis.Options(cfg)
	return asynq.RedisClientOpt{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		TLSConfig:    opts.TLSConfig,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
}

// DefaultOptions - 성공 시 제거, 실패 시 보관
func DefaultOptions(cfg *config.Config) Options {
	return Options{
		RemoveOnSuccess: true,
		RetainOnFailure: true,
		MaxRetry:        cfg.TaskMaxRetry,
		Timeout:         cfg.TaskTimeout,
	}
}

// NewClient - asynq 클라이언트 생성 + ping
func NewClient(redisOpt asynq.RedisClientOpt, queueName string, defaults Options, log *zap.Logger) (*Client, error) {
	client := asynq.NewClient(redisOpt)
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to asynq: %w", err)
	}

	log.Info("✅ [Queue] Connected to Asynq", zap.String("queue", queueName))

	c := NewClientWithEnqueuer(client, queueName, defaults, log)
	c.closer = client.Close
	return c, nil
}

// NewClientWithEnqueuer - 임의의 enqueuer로 클라이언트 구성
func NewClientWithEnqueuer(enq enqueuer, queueName string, defaults Options, log *zap.Logger) *Client {
	return &Client{
		enq:      enq,
		closer:   func() error { return nil },
		queue:    queueName,
		defaults: defaults,
		log:      log.Named("queue"),
	}
}

// Enqueue - 작업 등록, 등록된 task id 반환
func (c *Client) Enqueue(ctx context.Context, job Job) (string, error) {
	opts := c.defaults
	if job.Options != nil {
		opts = *job.Options
	}

	data, err := json.Marshal(job.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", job.Type, err)
	}
	raw, err := json.Marshal(envelope{RetainOnFailure: opts.RetainOnFailure, Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s envelope: %w", job.Type, err)
	}

	info, err := c.enq.EnqueueContext(ctx, asynq.NewTask(job.Type, raw), c.taskOptions(job.ID, opts)...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	taskID := job.ID
	if info != nil {
		taskID = info.ID
	}
	c.log.Debug("📥 [Queue] Task enqueued", zap.String("task_type", job.Type), zap.String("task_id", taskID))
	return taskID, nil
}

// AddBulk - 여러 작업 등록, 작업별 에러를 같은 순서로 반환 (성공은 nil)
func (c *Client) AddBulk(ctx context.Context, jobs []Job) []error {
	errs := make([]error, len(jobs))
	for i, job := range jobs {
		_, errs[i] = c.Enqueue(ctx, job)
	}
	return errs
}

// Close - 연결 종료
func (c *Client) Close() error {
	return c.closer()
}

func (c *Client) taskOptions(id string, opts Options) []asynq.Option {
	taskOpts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.MaxRetry(opts.MaxRetry),
	}
	if opts.Timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(opts.Timeout))
	}
	if id != "" {
		taskOpts = append(taskOpts, asynq.TaskID(id))
	}
	if !opts.RemoveOnSuccess {
		taskOpts = append(taskOpts, asynq.Retention(successRetention))
	}
	return taskOpts
}
