package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	EnvFileLoaded bool

	// App
	AppEnv  string
	AppName string
	Port    string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Database
	DatabaseDriver     string // supabase | memory
	SupabaseURL        string
	SupabaseServiceKey string

	// Gemini / Vertex AI
	GeminiBackend           string // gemini | vertex
	GeminiAPIKeys           []string
	GeminiTextModel         string
	GeminiImageModel        string
	VertexAIProject         string
	VertexAILocation        string
	VertexAICredentialsJSON string

	// Storage
	StorageDriver        string // supabase | minio
	StorageBucket        string
	StoragePublicBaseURL string
	MinioEndpoint        string
	MinioAccessKey       string
	MinioSecretKey       string
	MinioUseSSL          bool
	WebPQuality          float32

	// Queue / Worker
	QueueName         string
	WorkerConcurrency int
	TaskMaxRetry      int
	TaskTimeout       time.Duration
	ImageMaxAttempts  int
	RunWorker         bool
	RealtimeChannel   string

	// Generation / Credit
	BatchSize            int
	BatchCreditCost      int
	FixCreditCost        int
	RegenerateCreditCost int
}

// LoadConfig - 환경변수 로드
// .env 파일이 있으면 먼저 읽고, 없으면 프로세스 환경변수만 사용한다.
func LoadConfig() (*Config, error) {
	envFileLoaded := godotenv.Load() == nil

	cfg := &Config{
		EnvFileLoaded: envFileLoaded,

		AppEnv:  getEnv("APP_ENV", "development"),
		AppName: getEnv("APP_NAME", "static-ad-server"),
		Port:    getEnv("PORT", "8080"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getEnvBool("REDIS_USE_TLS", false),

		DatabaseDriver:     getEnv("DATABASE_DRIVER", "supabase"),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),

		GeminiBackend:           getEnv("GEMINI_BACKEND", "gemini"),
		GeminiAPIKeys:           parseAPIKeys(getEnv("GEMINI_API_KEYS", ""), getEnv("GEMINI_API_KEY", "")),
		GeminiTextModel:         getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:        getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		VertexAIProject:         getEnv("VERTEXAI_PROJECT", ""),
		VertexAILocation:        getEnv("VERTEXAI_LOCATION", "us-central1"),
		VertexAICredentialsJSON: loadCredentialsJSON(),

		StorageDriver:        getEnv("STORAGE_DRIVER", "supabase"),
		StorageBucket:        getEnv("STORAGE_BUCKET", "generated-ads"),
		StoragePublicBaseURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_BASE_URL", ""), "/"),
		MinioEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:          getEnvBool("MINIO_USE_SSL", true),
		WebPQuality:          float32(getEnvInt("WEBP_QUALITY", 90)),

		QueueName:         getEnv("QUEUE_NAME", "generation"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		TaskMaxRetry:      getEnvInt("TASK_MAX_RETRY", 3),
		TaskTimeout:       getEnvDuration("TASK_TIMEOUT", 10*time.Minute),
		ImageMaxAttempts:  getEnvInt("IMAGE_MAX_ATTEMPTS", 3),
		RunWorker:         getEnvBool("RUN_WORKER", true),
		RealtimeChannel:   getEnv("REALTIME_CHANNEL", "realtime:generation"),

		BatchSize:            getEnvInt("BATCH_SIZE", 6),
		BatchCreditCost:      getEnvInt("BATCH_CREDIT_COST", 5),
		FixCreditCost:        getEnvInt("FIX_CREDIT_COST", 2),
		RegenerateCreditCost: getEnvInt("REGENERATE_CREDIT_COST", 2),
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}

	switch c.DatabaseDriver {
	case "supabase":
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required")
		}
		if c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER: %s", c.DatabaseDriver)
	}

	switch c.GeminiBackend {
	case "gemini":
		if len(c.GeminiAPIKeys) == 0 {
			return fmt.Errorf("GEMINI_API_KEY or GEMINI_API_KEYS is required")
		}
	case "vertex":
		if c.VertexAIProject == "" {
			return fmt.Errorf("VERTEXAI_PROJECT is required for the vertex backend")
		}
	default:
		return fmt.Errorf("unknown GEMINI_BACKEND: %s", c.GeminiBackend)
	}

	switch c.StorageDriver {
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for supabase storage")
		}
	case "minio":
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for minio storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER: %s", c.StorageDriver)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}
	return nil
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// IsProduction - 운영 환경 여부
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// parseAPIKeys - GEMINI_API_KEYS(콤마 구분)를 우선 사용, 없으면 단일 키
func parseAPIKeys(list, single string) []string {
	keys := []string{}
	seen := map[string]bool{}
	for _, raw := range append(strings.Split(list, ","), single) {
		key := strings.TrimSpace(raw)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}

// loadCredentialsJSON - VERTEXAI_CREDENTIALS_JSON (Render 배포용) 또는 VERTEXAI_CREDENTIALS_PATH (로컬)
func loadCredentialsJSON() string {
	if credsJSON := os.Getenv("VERTEXAI_CREDENTIALS_JSON"); credsJSON != "" {
		return credsJSON
	}
	if credsPath := os.Getenv("VERTEXAI_CREDENTIALS_PATH"); credsPath != "" {
		data, err := os.ReadFile(credsPath)
		if err == nil {
			return string(data)
		}
	}
	return ""
}
