package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"static-ad-server/modules/common/config"
	"static-ad-server/modules/common/logger"
)

const shutdownTimeout = 15 * time.Second

// CORS 미들웨어
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": service,
		})
	}
}

func newRouter(a *app) *mux.Router {
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck(a.cfg.AppName)).Methods(http.MethodGet)
	r.HandleFunc("/health", healthCheck(a.cfg.AppName)).Methods(http.MethodGet)
	r.HandleFunc("/ws", a.hub.ServeWS)
	r.HandleFunc("/metrics", a.hub.ServeMetrics).Methods(http.MethodGet)
	a.handler.RegisterRoutes(r)

	// preflight 요청은 라우트 메서드와 무관하게 CORS 미들웨어가 응답
	r.MethodNotAllowedHandler = enableCORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	return r
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to create logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if !cfg.EnvFileLoaded {
		zlog.Info("ℹ️ No .env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("❌ Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("🚀 Static ad server starting",
			zap.String("port", cfg.Port),
			zap.Bool("worker", cfg.RunWorker),
			zap.String("database", cfg.DatabaseDriver),
			zap.String("storage", cfg.StorageDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("❌ Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("⚠️ HTTP shutdown did not complete", zap.Error(err))
	}
}
