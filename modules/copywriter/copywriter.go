package copywriter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"static-ad-server/modules/common/gemini"
	"static-ad-server/modules/common/model"
	"static-ad-server/modules/common/utils"
)

// Input - 카피 생성 입력
type Input struct {
	Brand   model.Brand
	Product model.Product
	Concept model.Concept
	Notes   string
}

// Usage - 토큰 사용량
type Usage struct {
	PromptTokens    int32 `json:"prompt_tokens"`
	CandidateTokens int32 `json:"candidate_tokens"`
	TotalTokens     int32 `json:"total_tokens"`
}

// Client - Copy Generator
type Client struct {
	gen      gemini.Generator
	model    string
	download func(ctx context.Context, url string) ([]byte, error)
	log      *zap.Logger
}

// NewClient - Copy Generator 생성
func NewClient(gen gemini.Generator, textModel string, log *zap.Logger) *Client {
	return &Client{
		gen:      gen,
		model:    textModel,
		download: utils.DownloadImage,
		log:      log.Named("copywriter"),
	}
}

// GenerateVariations - count개 변형을 한 번의 호출로 생성
func (c *Client) GenerateVariations(ctx context.Context, in Input, count int) ([]model.CopyResponse, Usage, error) {
	if count < 1 {
		return nil, Usage{}, fmt.Errorf("invalid variation count: %d", count)
	}

	c.log.Info("✍️ [Copywriter] Generating variations in bulk", zap.Int("count", count), zap.String("brand", in.Brand.Name))

	resp, err := c.gen.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(BuildBulkPrompt(in, count), genai.RoleUser)},
		c.config(bulkSchema(), 0.9))
	if err != nil {
		return nil, Usage{}, fmt.Errorf("copy generation failed: %w", err)
	}

	var out struct {
		Variations []model.CopyResponse `json:"variations"`
	}
	if err := parseJSON(resp.Text(), &out); err != nil {
		return nil, Usage{}, err
	}
	if len(out.Variations) < count {
		return nil, Usage{}, fmt.Errorf("expected %d variations, got %d", count, len(out.Variations))
	}

	variations := out.Variations[:count]
	for i := range variations {
		if err := validateCopy(variations[i]); err != nil {
			return nil, Usage{}, fmt.Errorf("variation %d: %w", i, err)
		}
	}

	usage := usageOf(resp)
	c.log.Info("✅ [Copywriter] Bulk variations generated", zap.Int("count", count), zap.Int32("total_tokens", usage.TotalTokens))
	return variations, usage, nil
}

// GenerateSingle - 변형 인덱스별로 다른 방향의 카피 하나 생성
func (c *Client) GenerateSingle(ctx context.Context, in Input, index int) (model.CopyResponse, Usage, error) {
	resp, err := c.gen.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(BuildSinglePrompt(in, index), genai.RoleUser)},
		c.config(copySchema(), 0.8))
	if err != nil {
		return model.CopyResponse{}, Usage{}, fmt.Errorf("copy generation failed: %w", err)
	}

	var out model.CopyResponse
	if err := parseJSON(resp.Text(), &out); err != nil {
		return model.CopyResponse{}, Usage{}, err
	}
	if err := validateCopy(out); err != nil {
		return model.CopyResponse{}, Usage{}, err
	}
	return out, usageOf(resp), nil
}

// Fix - 사용자가 지적한 문제를 고친 카피 생성
// referenceImageURL이 있으면 원본 정사각형 이미지를 함께 보낸다 (다운로드 실패 시 텍스트만).
func (c *Client) Fix(ctx context.Context, original model.CopyResponse, description, referenceImageURL string) (model.CopyResponse, error) {
	var imageData []byte
	if referenceImageURL != "" {
		data, err := c.download(ctx, referenceImageURL)
		if err != nil {
			c.log.Warn("⚠️ [Copywriter] Failed to download original image, fixing without it", zap.Error(err))
		} else {
			imageData = data
		}
	}

	parts := []*genai.Part{genai.NewPartFromText(BuildFixPrompt(original, description, imageData != nil))}
	if imageData != nil {
		parts = append(parts, genai.NewPartFromBytes(imageData, utils.DetectMIMEType(imageData)))
	}

	resp, err := c.gen.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		c.config(copySchema(), 0.4))
	if err != nil {
		return model.CopyResponse{}, fmt.Errorf("copy fix failed: %w", err)
	}

	var out model.CopyResponse
	if err := parseJSON(resp.Text(), &out); err != nil {
		return model.CopyResponse{}, err
	}
	if err := validateCopy(out); err != nil {
		return model.CopyResponse{}, err
	}
	return out, nil
}

func (c *Client) config(schema *genai.Schema, temperature float32) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
		Temperature:       genai.Ptr[float32](temperature),
	}
}

func copySchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"headline":    str("main headline"),
			"subheadline": str("supporting line under the headline"),
			"body_text":   str("one or two short sentences"),
			"callout_texts": {
				Type:        genai.TypeArray,
				Items:       str("short benefit callout"),
				Description: "2 to 4 distinct callouts",
			},
			"cta_text":     str("call to action button text"),
			"image_prompt": str("detailed prompt for the ad image, colors described in words"),
		},
		Required:         []string{"headline", "subheadline", "body_text", "callout_texts", "cta_text", "image_prompt"},
		PropertyOrdering: []string{"headline", "subheadline", "body_text", "callout_texts", "cta_text", "image_prompt"},
	}
}

func bulkSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"variations": {
				Type:  genai.TypeArray,
				Items: copySchema(),
			},
		},
		Required: []string{"variations"},
	}
}

// parseJSON - 코드펜스(```json ... ```)가 섞여 와도 파싱
func parseJSON(text string, out interface{}) error {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	if cleaned == "" {
		return fmt.Errorf("empty copy response")
	}

	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("failed to parse copy response: %w", err)
	}
	return nil
}

func validateCopy(c model.CopyResponse) error {
	if strings.TrimSpace(c.Headline) == "" {
		return fmt.Errorf("copy response missing headline")
	}
	if strings.TrimSpace(c.ImagePrompt) == "" {
		return fmt.Errorf("copy response missing image_prompt")
	}
	return nil
}

func usageOf(resp *genai.GenerateContentResponse) Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:    resp.UsageMetadata.PromptTokenCount,
		CandidateTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:     resp.UsageMetadata.TotalTokenCount,
	}
}
