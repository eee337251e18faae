package generation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"static-ad-server/modules/common/database"
	"static-ad-server/modules/common/model"
)

const (
	brandsTable     = "brands"
	productsTable   = "products"
	conceptsTable   = "concepts"
	variationsTable = "generated_ads"

	incrementConceptUsageRPC = "increment_concept_usage"
)

// Repository - 생성 파이프라인이 쓰는 테이블 접근
type Repository struct {
	store database.Store
	log   *zap.Logger
}

func NewRepository(store database.Store, log *zap.Logger) *Repository {
	return &Repository{
		store: store,
		log:   log.Named("repository"),
	}
}

// FindBrand - 사용자 소유 브랜드
func (r *Repository) FindBrand(ctx context.Context, id, userID string) (*model.Brand, error) {
	var rows []model.Brand
	if err := r.store.Find(ctx, brandsTable, database.Where().Eq("id", id).Eq("user_id", userID), &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch brand: %w", err)
	}
	if len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	return &rows[0], nil
}

// FindProduct - 사용자 소유 상품
func (r *Repository) FindProduct(ctx context.Context, id, userID string) (*model.Product, error) {
	var rows []model.Product
	if err := r.store.Find(ctx, productsTable, database.Where().Eq("id", id).Eq("user_id", userID), &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	if len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	return &rows[0], nil
}

// FindConcept - 사용자 컨셉 또는 공용 컨셉 (user_id가 비어 있음)
func (r *Repository) FindConcept(ctx context.Context, id, userID string) (*model.Concept, error) {
	var rows []model.Concept
	if err := r.store.Find(ctx, conceptsTable, database.Where().Eq("id", id), &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch concept: %w", err)
	}
	if len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	concept := rows[0]
	if concept.UserID != nil && *concept.UserID != userID {
		return nil, database.ErrNotFound
	}
	return &concept, nil
}

func (r *Repository) InsertVariations(ctx context.Context, variations []Variation) error {
	if err := r.store.Insert(ctx, variationsTable, variations, nil); err != nil {
		return fmt.Errorf("failed to insert variations: %w", err)
	}
	return nil
}

// DeleteVariations - 크레딧 차감 실패 시 롤백
func (r *Repository) DeleteVariations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.store.Delete(ctx, variationsTable, database.Where().In("id", ids...)); err != nil {
		return fmt.Errorf("failed to delete variations: %w", err)
	}
	return nil
}

// FindVariation - id로 조회 (소유자 검증은 호출자가 한다)
func (r *Repository) FindVariation(ctx context.Context, id string) (*Variation, error) {
	return r.findOne(ctx, database.Where().Eq("id", id))
}

// FindOwnedVariation - 다른 사용자의 변형은 없는 것과 같다
func (r *Repository) FindOwnedVariation(ctx context.Context, id, userID string) (*Variation, error) {
	return r.findOne(ctx, database.Where().Eq("id", id).Eq("user_id", userID))
}

func (r *Repository) findOne(ctx context.Context, q database.Query) (*Variation, error) {
	var rows []Variation
	if err := r.store.Find(ctx, variationsTable, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch variation: %w", err)
	}
	if len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	return &rows[0], nil
}

// CurrentStatus - 취소 재확인용 상태 조회
func (r *Repository) CurrentStatus(ctx context.Context, id string) (string, error) {
	var rows []struct {
		Status string `json:"status"`
	}
	if err := r.store.Find(ctx, variationsTable, database.Where().Select("status").Eq("id", id), &rows); err != nil {
		return "", fmt.Errorf("failed to fetch status: %w", err)
	}
	if len(rows) == 0 {
		return "", database.ErrNotFound
	}
	return rows[0].Status, nil
}

// ListBatch - 배치 구성원 (variation_index 순)
func (r *Repository) ListBatch(ctx context.Context, batchID, userID string) ([]Variation, error) {
	var rows []Variation
	q := database.Where().Eq("batch_id", batchID).Eq("user_id", userID).Order("variation_index", false)
	if err := r.store.Find(ctx, variationsTable, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch batch: %w", err)
	}
	return rows, nil
}

// List - 최신순 목록 + 전체 개수
func (r *Repository) List(ctx context.Context, userID string, f ListFilter) ([]Variation, int64, error) {
	q := database.Where().Eq("user_id", userID)
	if f.Saved != nil {
		q = q.Eq("is_saved", *f.Saved)
	}
	if f.Favorite != nil {
		q = q.Eq("is_favorite", *f.Favorite)
	}
	if f.BatchID != "" {
		q = q.Eq("batch_id", f.BatchID)
	}

	total, err := r.store.Count(ctx, variationsTable, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count variations: %w", err)
	}

	var rows []Variation
	if err := r.store.Find(ctx, variationsTable, q.Order("created_at", true).Page(f.Limit, (f.Page-1)*f.Limit), &rows); err != nil {
		return nil, 0, fmt.Errorf("failed to list variations: %w", err)
	}
	return rows, total, nil
}

// CancelBatch - pending/processing 변형만 cancelled로 전환, 바뀐 개수 반환
func (r *Repository) CancelBatch(ctx context.Context, batchID, userID string) (int, error) {
	n, err := r.store.Update(ctx, variationsTable, map[string]interface{}{"status": StatusCancelled},
		database.Where().
			Eq("batch_id", batchID).
			Eq("user_id", userID).
			In("status", StatusPending, StatusProcessing), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel batch: %w", err)
	}
	return n, nil
}

// transition - from 상태일 때만 values 적용, 적용됐는지 반환
func (r *Repository) transition(ctx context.Context, id, from string, values map[string]interface{}) (bool, error) {
	n, err := r.store.Update(ctx, variationsTable, values, database.Where().Eq("id", id).Eq("status", from), nil)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessing - pending → processing
func (r *Repository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	ok, err := r.transition(ctx, id, StatusPending, map[string]interface{}{"status": StatusProcessing})
	if err != nil {
		return false, fmt.Errorf("failed to mark processing: %w", err)
	}
	return ok, nil
}

// Complete - processing → completed (취소된 변형은 덮어쓰지 않는다)
func (r *Repository) Complete(ctx context.Context, id string, values map[string]interface{}) (bool, error) {
	values["status"] = StatusCompleted
	ok, err := r.transition(ctx, id, StatusProcessing, values)
	if err != nil {
		return false, fmt.Errorf("failed to save result: %w", err)
	}
	return ok, nil
}

// MarkFailed - from → failed + error_message
func (r *Repository) MarkFailed(ctx context.Context, id, from, message string) (bool, error) {
	ok, err := r.transition(ctx, id, from, map[string]interface{}{
		"status":        StatusFailed,
		"error_message": message,
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark failed: %w", err)
	}
	return ok, nil
}

// UpdateFlags - 이름/저장/즐겨찾기 변경
func (r *Repository) UpdateFlags(ctx context.Context, id, userID string, values map[string]interface{}) (*Variation, error) {
	var rows []Variation
	n, err := r.store.Update(ctx, variationsTable, values, database.Where().Eq("id", id).Eq("user_id", userID), &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to update variation: %w", err)
	}
	if n == 0 || len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	return &rows[0], nil
}

// IncrementConceptUsage - RPC 우선, 실패하면 읽고 쓰기 (경합은 허용)
func (r *Repository) IncrementConceptUsage(ctx context.Context, conceptID string) {
	err := r.store.RPC(ctx, incrementConceptUsageRPC, map[string]interface{}{"concept_id": conceptID}, nil)
	if err == nil {
		return
	}
	r.log.Debug("[Repository] Usage RPC failed, falling back", zap.String("concept_id", conceptID), zap.Error(err))

	var rows []model.Concept
	if err := r.store.Find(ctx, conceptsTable, database.Where().Select("id,usage_count").Eq("id", conceptID), &rows); err != nil || len(rows) == 0 {
		if err == nil {
			err = database.ErrNotFound
		}
		r.log.Warn("⚠️ [Repository] Failed to read concept usage", zap.String("concept_id", conceptID), zap.Error(err))
		return
	}

	_, err = r.store.Update(ctx, conceptsTable, map[string]interface{}{"usage_count": rows[0].UsageCount + 1},
		database.Where().Eq("id", conceptID), nil)
	if err != nil {
		r.log.Warn("⚠️ [Repository] Failed to increment concept usage", zap.String("concept_id", conceptID), zap.Error(err))
	}
}

// RegisterMemoryRPCs - DATABASE_DRIVER=memory에서 쓰는 서버 함수 등록
func RegisterMemoryRPCs(store *database.MemoryStore) {
	store.RegisterRPC(incrementConceptUsageRPC, func(ctx context.Context, s *database.MemoryStore, params map[string]interface{}) (interface{}, error) {
		id, _ := params["concept_id"].(string)
		n, err := s.Increment(ctx, conceptsTable, database.Where().Eq("id", id), "usage_count", 1)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, database.ErrNotFound
		}
		return nil, nil
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
