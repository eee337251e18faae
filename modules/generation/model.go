package generation

import (
	"time"

	"static-ad-server/modules/common/model"
)

// 변형 상태
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// 큐 작업 타입
const (
	TaskCreate = "generation:create"
	TaskFix    = "generation:fix"
)

// Variation - generated_ads 테이블 구조
type Variation struct {
	ID                 string                 `json:"id"`
	BatchID            string                 `json:"batch_id"`
	VariationIndex     int                    `json:"variation_index"`
	UserID             string                 `json:"user_id"`
	BrandID            string                 `json:"brand_id"`
	ProductID          string                 `json:"product_id"`
	ConceptID          string                 `json:"concept_id"`
	Notes              *string                `json:"notes"`
	CopyResponse       *model.CopyResponse    `json:"copy_response"`
	ImagePrompt        *string                `json:"image_prompt"`
	ImageURLSquare     *string                `json:"image_url_square"`
	ImageURLVertical   *string                `json:"image_url_vertical"`
	ImageURLHorizontal *string                `json:"image_url_horizontal"`
	AdCopy             *model.AdCopy          `json:"ad_copy"`
	Status             string                 `json:"status"`
	Name               *string                `json:"name"`
	IsSaved            bool                   `json:"is_saved"`
	IsFavorite         bool                   `json:"is_favorite"`
	BrandSnapshot      *model.BrandSnapshot   `json:"brand_snapshot"`
	ProductSnapshot    *model.ProductSnapshot `json:"product_snapshot"`
	ErrorMessage       *string                `json:"error_message"`
	CreatedAt          time.Time              `json:"created_at"`
}

// ImageURL - 비율별 URL
func (v *Variation) ImageURL(ratio model.Ratio) *string {
	switch ratio {
	case model.RatioSquare:
		return v.ImageURLSquare
	case model.RatioVertical:
		return v.ImageURLVertical
	case model.RatioHorizontal:
		return v.ImageURLHorizontal
	}
	return nil
}

// RepresentativeImage - 정사각형 우선, 없으면 먼저 성공한 비율
func (v *Variation) RepresentativeImage() string {
	for _, ratio := range model.Ratios {
		if u := v.ImageURL(ratio); u != nil && *u != "" {
			return *u
		}
	}
	return ""
}

// Terminal - 더 이상 상태가 바뀌지 않는지
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// CreatePayload - generation:create 작업 페이로드
type CreatePayload struct {
	VariationID      string              `json:"variation_id"`
	UserID           string              `json:"user_id"`
	BatchID          string              `json:"batch_id"`
	VariationIndex   int                 `json:"variation_index"`
	PreGeneratedCopy *model.CopyResponse `json:"pre_generated_copy,omitempty"`
}

// FixPayload - generation:fix 작업 페이로드
type FixPayload struct {
	VariationID         string `json:"variation_id"`
	OriginalVariationID string `json:"original_variation_id"`
	UserID              string `json:"user_id"`
	Description         string `json:"description"`
}

// CreateRequest - 배치 생성 요청
type CreateRequest struct {
	BrandID   string `json:"brandId"`
	ProductID string `json:"productId"`
	ConceptID string `json:"conceptId"`
	Notes     string `json:"notes,omitempty"`
}

// Accepted - 생성/수정/재생성 접수 결과
type Accepted struct {
	BatchID      string   `json:"batchId"`
	VariationIDs []string `json:"variationIds"`
	Status       string   `json:"status"`
}

// UpdateRequest - 정리용 플래그 변경 (nil은 그대로)
type UpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	IsSaved    *bool   `json:"isSaved,omitempty"`
	IsFavorite *bool   `json:"isFavorite,omitempty"`
}

// ListFilter - 목록 조회 조건
type ListFilter struct {
	Saved    *bool
	Favorite *bool
	BatchID  string
	Page     int
	Limit    int
}

// StatusView - 상태 조회 결과
type StatusView struct {
	ID             string    `json:"id"`
	BatchID        string    `json:"batchId"`
	VariationIndex int       `json:"variationIndex"`
	Status         string    `json:"status"`
	Name           *string   `json:"name,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	ErrorMessage   *string   `json:"errorMessage,omitempty"`
	IsSaved        bool      `json:"isSaved"`
	IsFavorite     bool      `json:"isFavorite"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ImageURLs - 비율별 결과 이미지
type ImageURLs struct {
	Square     *string `json:"square"`
	Vertical   *string `json:"vertical"`
	Horizontal *string `json:"horizontal"`
}

// ResultView - 완료된 변형의 결과
type ResultView struct {
	ID              string                 `json:"id"`
	BatchID         string                 `json:"batchId"`
	Name            *string                `json:"name"`
	AdCopy          *model.AdCopy          `json:"adCopy"`
	ImagePrompt     *string                `json:"imagePrompt"`
	Images          ImageURLs              `json:"images"`
	BrandSnapshot   *model.BrandSnapshot   `json:"brandSnapshot"`
	ProductSnapshot *model.ProductSnapshot `json:"productSnapshot"`
	IsSaved         bool                   `json:"isSaved"`
	IsFavorite      bool                   `json:"isFavorite"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// BatchStatus - 배치 집계 상태
type BatchStatus struct {
	BatchID    string         `json:"batchId"`
	Status     string         `json:"status"`
	Total      int            `json:"total"`
	Counts     map[string]int `json:"counts"`
	Variations []StatusView   `json:"variations"`
}

// ListResult - 목록 조회 결과
type ListResult struct {
	Items []StatusView `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

func (v *Variation) statusView() StatusView {
	return StatusView{
		ID:             v.ID,
		BatchID:        v.BatchID,
		VariationIndex: v.VariationIndex,
		Status:         v.Status,
		Name:           v.Name,
		ImageURL:       v.RepresentativeImage(),
		ErrorMessage:   v.ErrorMessage,
		IsSaved:        v.IsSaved,
		IsFavorite:     v.IsFavorite,
		CreatedAt:      v.CreatedAt,
	}
}

func (v *Variation) resultView() ResultView {
	return ResultView{
		ID:          v.ID,
		BatchID:     v.BatchID,
		Name:        v.Name,
		AdCopy:      v.AdCopy,
		ImagePrompt: v.ImagePrompt,
		Images: ImageURLs{
			Square:     v.ImageURLSquare,
			Vertical:   v.ImageURLVertical,
			Horizontal: v.ImageURLHorizontal,
		},
		BrandSnapshot:   v.BrandSnapshot,
		ProductSnapshot: v.ProductSnapshot,
		IsSaved:         v.IsSaved,
		IsFavorite:      v.IsFavorite,
		CreatedAt:       v.CreatedAt,
	}
}
