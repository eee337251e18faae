package imagegen

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"static-ad-server/modules/common/gemini"
	"static-ad-server/modules/common/model"
	"static-ad-server/modules/common/utils"
)

// Reference - 다운로드된 참조 이미지
type Reference struct {
	URL      string
	Data     []byte
	MIMEType string
}

// Client - Image Generator (비율 하나당 호출 하나, 재시도 횟수 제한)
type Client struct {
	gen         gemini.Generator
	model       string
	maxAttempts int
	retryWait   time.Duration
	download    func(ctx context.Context, url string) ([]byte, error)
	log         *zap.Logger
}

// NewClient - Image Generator 생성
func NewClient(gen gemini.Generator, imageModel string, maxAttempts int, log *zap.Logger) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		gen:         gen,
		model:       imageModel,
		maxAttempts: maxAttempts,
		retryWait:   2 * time.Second,
		download:    utils.DownloadImage,
		log:         log.Named("imagegen"),
	}
}

// LoadReferences - 참조 이미지 다운로드 (실패한 것은 건너뜀)
func (c *Client) LoadReferences(ctx context.Context, urls []string) []Reference {
	refs := make([]Reference, 0, len(urls))
	for _, url := range urls {
		data, err := c.download(ctx, url)
		if err != nil {
			c.log.Warn("⚠️ [ImageGen] Failed to download reference image", zap.String("url", url), zap.Error(err))
			continue
		}
		refs = append(refs, Reference{URL: url, Data: data, MIMEType: utils.DetectMIMEType(data)})
	}
	return refs
}

// Generate - 비율 하나 생성, 실패 시 maxAttempts까지 재시도
func (c *Client) Generate(ctx context.Context, prompt string, refs []Reference, ratio model.Ratio) ([]byte, error) {
	parts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: string(ratio),
		},
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.retryWait * time.Duration(attempt-1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		data, err := c.generateOnce(ctx, contents, config)
		if err == nil {
			c.log.Info("✅ [ImageGen] Image generated",
				zap.String("ratio", string(ratio)),
				zap.Int("attempt", attempt),
				zap.Int("bytes", len(data)))
			return data, nil
		}

		lastErr = err
		c.log.Warn("⚠️ [ImageGen] Attempt failed",
			zap.String("ratio", string(ratio)),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Error(err))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("image generation for %s failed after %d attempts: %w", ratio, c.maxAttempts, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) ([]byte, error) {
	result, err := c.gen.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	// 응답 처리
	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			// 이미지는 InlineData로 반환됨
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}

	return nil, fmt.Errorf("no image data in response")
}
