package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ErrSkipRetry - 핸들러가 이 에러를 감싸서 반환하면 재시도 없이 보관된다
var ErrSkipRetry = asynq.SkipRetry

// Delivery - 핸들러에 전달되는 작업 하나
type Delivery struct {
	ID       string
	Type     string
	Payload  json.RawMessage
	Attempt  int // 0부터 시작
	MaxRetry int
}

// Decode - 페이로드 파싱
func (d Delivery) Decode(v interface{}) error {
	return json.Unmarshal(d.Payload, v)
}

// FinalAttempt - 이번 시도가 실패하면 더 이상 재시도가 없는지
func (d Delivery) FinalAttempt() bool {
	return d.Attempt >= d.MaxRetry
}

// HandlerFunc - 작업 처리 함수
type HandlerFunc func(ctx context.Context, d Delivery) error

// Server - 동시 실행 수가 제한된 워커 서버
type Server struct {
	srv      *asynq.Server
	mux      *asynq.ServeMux
	metadata func(ctx context.Context) (id string, attempt, maxRetry int)
	log      *zap.Logger
}

// NewServer - asynq 워커 서버 생성
func NewServer(redisOpt asynq.RedisClientOpt, queueName string, concurrency int, log *zap.Logger) *Server {
	log = log.Named("queue")

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    concurrency,
		RetryDelayFunc: asynq.DefaultRetryDelayFunc,
		Queues: map[string]int{
			queueName: 1,
		},
		Logger:   log.Sugar(),
		LogLevel: asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Error("❌ [Queue] Task attempt failed",
				zap.String("task_type", task.Type()),
				zap.Int("attempt", retried+1),
				zap.Int("max_retry", maxRetry),
				zap.Error(err))
		}),
	})

	return newServer(srv, log)
}

func newServer(srv *asynq.Server, log *zap.Logger) *Server {
	return &Server{
		srv:      srv,
		mux:      asynq.NewServeMux(),
		metadata: taskMetadata,
		log:      log,
	}
}

// Handle - 작업 타입별 핸들러 등록
func (s *Server) Handle(taskType string, h HandlerFunc) {
	s.mux.HandleFunc(taskType, s.wrap(h))
}

// Start - 워커 시작 (비동기)
func (s *Server) Start() error {
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	s.log.Info("🚀 [Queue] Worker server started")
	return nil
}

// Shutdown - 진행 중인 작업을 기다린 뒤 종료
func (s *Server) Shutdown() {
	s.srv.Shutdown()
	s.log.Info("🛑 [Queue] Worker server stopped")
}

func (s *Server) wrap(h HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var env envelope
		if err := json.Unmarshal(task.Payload(), &env); err != nil {
			return fmt.Errorf("invalid task envelope: %v: %w", err, ErrSkipRetry)
		}

		id, attempt, maxRetry := s.metadata(ctx)
		d := Delivery{
			ID:       id,
			Type:     task.Type(),
			Payload:  env.Data,
			Attempt:  attempt,
			MaxRetry: maxRetry,
		}

		err := h(ctx, d)
		if err == nil || errors.Is(err, ErrSkipRetry) {
			return err
		}

		// 보관하지 않는 작업은 마지막 시도 실패를 삼켜서 큐에서 지운다
		if !env.RetainOnFailure && d.FinalAttempt() {
			s.log.Warn("⚠️ [Queue] Dropping failed task",
				zap.String("task_type", d.Type),
				zap.String("task_id", d.ID),
				zap.Error(err))
			return nil
		}
		return err
	}
}

func taskMetadata(ctx context.Context) (string, int, int) {
	id, _ := asynq.GetTaskID(ctx)
	attempt, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return id, attempt, maxRetry
}
