package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// RetryPolicy - 429 재시도 정책
type RetryPolicy struct {
	AttemptsPerKey int
	Wait           time.Duration
}

// DefaultRetryPolicy - 키당 3번, 2초 대기
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{AttemptsPerKey: 3, Wait: 2 * time.Second}
}

// generateContentWithRetry - 429 에러 시 같은 키로 재시도하고, 소진되면 다음 키로 넘어간다
// 429가 아닌 에러는 바로 반환 (재시도 안 함)
func generateContentWithRetry(
	ctx context.Context,
	log *zap.Logger,
	policy RetryPolicy,
	generators []Generator,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	if len(generators) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}
	if policy.AttemptsPerKey < 1 {
		policy.AttemptsPerKey = 1
	}

	var lastErr error
	for keyIndex, generator := range generators {
		for attempt := 1; attempt <= policy.AttemptsPerKey; attempt++ {
			result, err := generator.GenerateContent(ctx, model, contents, config)
			if err == nil {
				if keyIndex > 0 || attempt > 1 {
					log.Info("✅ [Gemini Retry] Succeeded after retry",
						zap.Int("key", keyIndex+1),
						zap.Int("attempt", attempt))
				}
				return result, nil
			}

			lastErr = err
			if !IsRateLimitError(err) {
				return nil, err
			}

			log.Warn("⚠️ [Gemini Retry] Rate limited",
				zap.Int("key", keyIndex+1),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", policy.AttemptsPerKey))

			if attempt < policy.AttemptsPerKey {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(policy.Wait):
				}
			}
		}

		if keyIndex < len(generators)-1 {
			log.Warn("⚠️ [Gemini Retry] Key exhausted, trying next key", zap.Int("key", keyIndex+1))
		}
	}

	return nil, fmt.Errorf("all %d API keys exhausted (%d attempts each), last error: %w",
		len(generators), policy.AttemptsPerKey, lastErr)
}

// IsRateLimitError - 429 Rate Limit 에러인지 확인
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == 429 {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "resource_exhausted")
}
