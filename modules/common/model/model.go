package model

import "time"

// Brand - brands 테이블 구조
type Brand struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Voice       string            `json:"voice,omitempty"`
	Audience    string            `json:"target_audience,omitempty"`
	Colors      map[string]string `json:"colors,omitempty"` // {"primary": "#FF5733", ...}
	Fonts       map[string]string `json:"fonts,omitempty"`
	LogoURL     *string           `json:"logo_url"`
	Website     string            `json:"website,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Product - products 테이블 구조
type Product struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	BrandID     string    `json:"brand_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       *float64  `json:"price"`
	Features    []string  `json:"features,omitempty"`
	ImageURL    *string   `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Concept - concepts 테이블 구조 (광고 레이아웃/스타일 템플릿)
type Concept struct {
	ID          string    `json:"id"`
	UserID      *string   `json:"user_id"` // nil이면 공용 컨셉
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Style       string    `json:"style,omitempty"`
	ImageURL    *string   `json:"image_url"`
	UsageCount  int       `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CopyResponse - Copy Generator 결과 (광고 문구 + 이미지 프롬프트)
type CopyResponse struct {
	Headline     string   `json:"headline"`
	Subheadline  string   `json:"subheadline"`
	BodyText     string   `json:"body_text"`
	CalloutTexts []string `json:"callout_texts"`
	CTAText      string   `json:"cta_text"`
	ImagePrompt  string   `json:"image_prompt"`
}

// AdCopy - CopyResponse에서 이미지 프롬프트를 뺀 화면 표시용 문구
type AdCopy struct {
	Headline     string   `json:"headline"`
	Subheadline  string   `json:"subheadline"`
	BodyText     string   `json:"body_text"`
	CalloutTexts []string `json:"callout_texts"`
	CTAText      string   `json:"cta_text"`
}

// AdCopy - 문구 부분만 추출
func (c CopyResponse) AdCopy() AdCopy {
	callouts := make([]string, len(c.CalloutTexts))
	copy(callouts, c.CalloutTexts)
	return AdCopy{
		Headline:     c.Headline,
		Subheadline:  c.Subheadline,
		BodyText:     c.BodyText,
		CalloutTexts: callouts,
		CTAText:      c.CTAText,
	}
}

// BrandSnapshot - 생성 완료 시점의 브랜드 정보
type BrandSnapshot struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Voice    string            `json:"voice,omitempty"`
	Colors   map[string]string `json:"colors,omitempty"`
	Fonts    map[string]string `json:"fonts,omitempty"`
	LogoURL  *string           `json:"logo_url"`
	Audience string            `json:"target_audience,omitempty"`
}

// ProductSnapshot - 생성 완료 시점의 상품 정보
type ProductSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
	ImageURL    *string  `json:"image_url"`
}

func (b Brand) Snapshot() BrandSnapshot {
	return BrandSnapshot{
		ID:       b.ID,
		Name:     b.Name,
		Voice:    b.Voice,
		Colors:   b.Colors,
		Fonts:    b.Fonts,
		LogoURL:  b.LogoURL,
		Audience: b.Audience,
	}
}

func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Features:    p.Features,
		ImageURL:    p.ImageURL,
	}
}

// Ratio - 출력 비율
type Ratio string

const (
	RatioSquare     Ratio = "1:1"
	RatioVertical   Ratio = "9:16"
	RatioHorizontal Ratio = "16:9"
)

// Ratios - 변형 하나당 생성하는 비율 (대표 이미지 우선순위 순서)
var Ratios = []Ratio{RatioSquare, RatioVertical, RatioHorizontal}

// Name - 저장 경로/컬럼 이름에 쓰는 비율 이름
func (r Ratio) Name() string {
	switch r {
	case RatioSquare:
		return "square"
	case RatioVertical:
		return "vertical"
	case RatioHorizontal:
		return "horizontal"
	}
	return string(r)
}

// ReferenceImages - 존재하는 참조 이미지 URL만 모음 (상품 사진, 로고, 컨셉 이미지 순)
func ReferenceImages(urls ...*string) []string {
	out := []string{}
	for _, u := range urls {
		if u != nil && *u != "" {
			out = append(out, *u)
		}
	}
	return out
}
