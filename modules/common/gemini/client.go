package gemini

import (
	"context"
	"fmt"

	"cloud.google.com/go/auth/credentials"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"static-ad-server/modules/common/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Generator - genai Models.GenerateContent 시그니처
// *genai.Models와 Client 모두 만족하므로 copywriter/imagegen 테스트에서 가짜로 교체할 수 있다.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client - Gemini 클라이언트 풀
// API 키 백엔드는 키마다 클라이언트를 하나씩 만들어 429 시 다음 키로 넘어가고,
// Vertex 백엔드는 서비스 계정 자격증명으로 만든 클라이언트 하나를 쓴다.
type Client struct {
	backend    string
	generators []Generator
	retry      RetryPolicy
	log        *zap.Logger
}

// NewClient - 설정에 맞는 백엔드로 Gemini 클라이언트 풀 생성
func NewClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Client, error) {
	log = log.Named("gemini")

	switch cfg.GeminiBackend {
	case "vertex":
		clientConfig := &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.VertexAIProject,
			Location: cfg.VertexAILocation,
		}

		if cfg.VertexAICredentialsJSON != "" {
			creds, err := credentials.DetectDefault(&credentials.DetectOptions{
				Scopes:          []string{cloudPlatformScope},
				CredentialsJSON: []byte(cfg.VertexAICredentialsJSON),
			})
			if err != nil {
				return nil, fmt.Errorf("invalid vertex credentials: %w", err)
			}
			clientConfig.Credentials = creds
			log.Info("✅ [Gemini] Using explicit Vertex AI credentials")
		} else {
			log.Warn("⚠️ [Gemini] No explicit credentials found, using Application Default Credentials")
		}

		client, err := genai.NewClient(ctx, clientConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
		}

		log.Info("✅ [Gemini] Vertex AI client initialized",
			zap.String("project", cfg.VertexAIProject),
			zap.String("location", cfg.VertexAILocation))
		return NewClientWithGenerators("vertex", []Generator{client.Models}, DefaultRetryPolicy(), log), nil

	default:
		generators := make([]Generator, 0, len(cfg.GeminiAPIKeys))
		for i, apiKey := range cfg.GeminiAPIKeys {
			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create Gemini client for key #%d: %w", i+1, err)
			}
			generators = append(generators, client.Models)
		}
		if len(generators) == 0 {
			return nil, fmt.Errorf("no API keys provided")
		}

		log.Info("✅ [Gemini] API key clients initialized", zap.Int("keys", len(generators)))
		return NewClientWithGenerators("gemini", generators, DefaultRetryPolicy(), log), nil
	}
}

// NewClientWithGenerators - 이미 만들어진 Generator 목록으로 풀 구성
func NewClientWithGenerators(backend string, generators []Generator, retry RetryPolicy, log *zap.Logger) *Client {
	return &Client{
		backend:    backend,
		generators: generators,
		retry:      retry,
		log:        log,
	}
}

// GenerateContent - 풀 전체에 걸쳐 429 재시도하며 호출
func (c *Client) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return generateContentWithRetry(ctx, c.log, c.retry, c.generators, model, contents, config)
}

// Backend - "gemini" | "vertex"
func (c *Client) Backend() string {
	return c.backend
}
