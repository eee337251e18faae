package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	calls int
	errs  []error
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return &genai.GenerateContentResponse{}, nil
}

var fastRetry = RetryPolicy{AttemptsPerKey: 3, Wait: time.Millisecond}

func TestRetryMovesToNextKeyAfterRateLimits(t *testing.T) {
	rateLimited := genai.APIError{Code: 429, Message: "quota exceeded"}
	first := &fakeGenerator{errs: []error{rateLimited, rateLimited, rateLimited}}
	second := &fakeGenerator{}

	client := NewClientWithGenerators("gemini", []Generator{first, second}, fastRetry, zap.NewNop())
	_, err := client.GenerateContent(context.Background(), "m", nil, nil)

	require.NoError(t, err)
	require.Equal(t, 3, first.calls)
	require.Equal(t, 1, second.calls)
}

func TestRetryReturnsNonRateLimitErrorImmediately(t *testing.T) {
	boom := errors.New("invalid argument")
	first := &fakeGenerator{errs: []error{boom}}
	second := &fakeGenerator{}

	client := NewClientWithGenerators("gemini", []Generator{first, second}, fastRetry, zap.NewNop())
	_, err := client.GenerateContent(context.Background(), "m", nil, nil)

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, first.calls)
	require.Zero(t, second.calls)
}

func TestRetryExhaustsAllKeys(t *testing.T) {
	rateLimited := errors.New("Error 429: RESOURCE_EXHAUSTED")
	only := &fakeGenerator{errs: []error{rateLimited, rateLimited, rateLimited}}

	client := NewClientWithGenerators("gemini", []Generator{only}, fastRetry, zap.NewNop())
	_, err := client.GenerateContent(context.Background(), "m", nil, nil)

	require.ErrorIs(t, err, rateLimited)
	require.Equal(t, 3, only.calls)
}

func TestIsRateLimitError(t *testing.T) {
	require.True(t, IsRateLimitError(genai.APIError{Code: 429}))
	require.True(t, IsRateLimitError(errors.New("rate limit reached")))
	require.False(t, IsRateLimitError(errors.New("bad request")))
	require.False(t, IsRateLimitError(nil))
}
