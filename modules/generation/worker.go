package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"static-ad-server/modules/common/model"
	"static-ad-server/modules/common/queue"
	"static-ad-server/modules/copywriter"
	"static-ad-server/modules/imagegen"
	"static-ad-server/modules/realtime"
	"static-ad-server/modules/validator"
)

// errCancelled - 처리 중에 취소를 확인함 (실패로 기록하지 않는다)
var errCancelled = errors.New("variation cancelled")

// ImageGenerator - 비율별 이미지 생성
type ImageGenerator interface {
	LoadReferences(ctx context.Context, urls []string) []imagegen.Reference
	Generate(ctx context.Context, prompt string, refs []imagegen.Reference, ratio model.Ratio) ([]byte, error)
}

// AssetStore - 이미지 업로드
type AssetStore interface {
	Upload(ctx context.Context, ownerID, variationID string, ratio model.Ratio, data []byte) (string, error)
}

// Notifier - 사용자에게 진행 상황 전달 (fire-and-forget)
type Notifier interface {
	EmitProgress(ctx context.Context, userID string, p realtime.Progress)
	EmitCompleted(ctx context.Context, userID string, c realtime.Completed)
	EmitFailed(ctx context.Context, userID string, f realtime.Failed)
}

// Registrar - 작업 타입별 핸들러 등록
type Registrar interface {
	Handle(taskType string, h queue.HandlerFunc)
}

// Worker - 변형 하나를 pending → processing → completed/failed로 진행
type Worker struct {
	repo   *Repository
	copy   CopyWriter
	images ImageGenerator
	assets AssetStore
	notify Notifier
	cancel CancelFlags
	log    *zap.Logger
}

func NewWorker(repo *Repository, writer CopyWriter, images ImageGenerator, assets AssetStore, notify Notifier, cancel CancelFlags, log *zap.Logger) *Worker {
	return &Worker{
		repo:   repo,
		copy:   writer,
		images: images,
		assets: assets,
		notify: notify,
		cancel: cancel,
		log:    log.Named("worker"),
	}
}

// Register - generation:create, generation:fix 핸들러 등록
func (w *Worker) Register(r Registrar) {
	r.Handle(TaskCreate, w.HandleCreate)
	r.Handle(TaskFix, w.HandleFix)
}

// artifacts - 렌더링에 필요한 입력
type artifacts struct {
	copy            model.CopyResponse
	brandColors     map[string]string
	references      []string
	productName     string
	brandSnapshot   *model.BrandSnapshot
	productSnapshot *model.ProductSnapshot
}

// HandleCreate - 새 변형 생성 작업
func (w *Worker) HandleCreate(ctx context.Context, d queue.Delivery) error {
	var p CreatePayload
	if err := d.Decode(&p); err != nil || p.VariationID == "" {
		w.log.Error("❌ [Worker] Malformed create payload", zap.String("task_id", d.ID), zap.Error(err))
		return fmt.Errorf("malformed create payload: %w", queue.ErrSkipRetry)
	}

	v, err := w.claim(ctx, p.VariationID, p.UserID)
	if err != nil || v == nil {
		return err
	}

	return w.finish(ctx, v, w.processCreate(ctx, v, p))
}

// HandleFix - 완료된 변형을 고친 새 변형 생성 작업
func (w *Worker) HandleFix(ctx context.Context, d queue.Delivery) error {
	var p FixPayload
	if err := d.Decode(&p); err != nil || p.VariationID == "" || p.OriginalVariationID == "" {
		w.log.Error("❌ [Worker] Malformed fix payload", zap.String("task_id", d.ID), zap.Error(err))
		return fmt.Errorf("malformed fix payload: %w", queue.ErrSkipRetry)
	}

	v, err := w.claim(ctx, p.VariationID, p.UserID)
	if err != nil || v == nil {
		return err
	}

	return w.finish(ctx, v, w.processFix(ctx, v, p))
}

// claim - 소유자 확인 + pending일 때만 processing으로 전환
// nil, nil이면 처리할 것이 없다 (이미 끝났거나 취소됨).
func (w *Worker) claim(ctx context.Context, variationID, userID string) (*Variation, error) {
	v, err := w.repo.FindVariation(ctx, variationID)
	if err != nil {
		if isNotFound(err) {
			w.log.Warn("⚠️ [Worker] Variation not found, skipping", zap.String("variation_id", variationID))
			return nil, nil
		}
		return nil, err
	}

	if v.UserID != userID {
		w.log.Error("🚫 [Worker] Task owner does not match variation owner",
			zap.String("variation_id", variationID),
			zap.String("task_user_id", userID))
		return nil, fmt.Errorf("owner mismatch for %s: %w", variationID, queue.ErrSkipRetry)
	}

	if v.Status != StatusPending {
		w.log.Info("⏭️ [Worker] Variation already handled, skipping",
			zap.String("variation_id", variationID),
			zap.String("status", v.Status))
		return nil, nil
	}

	claimed, err := w.repo.MarkProcessing(ctx, variationID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		w.log.Info("⏭️ [Worker] Variation changed before processing, skipping", zap.String("variation_id", variationID))
		return nil, nil
	}

	v.Status = StatusProcessing
	w.log.Info("🚀 [Worker] Processing variation",
		zap.String("variation_id", v.ID),
		zap.String("batch_id", v.BatchID),
		zap.Int("variation_index", v.VariationIndex))
	return v, nil
}

// finish - 결과 처리: 취소는 조용히 종료, 실패는 기록 후 큐로 반환
func (w *Worker) finish(ctx context.Context, v *Variation, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errCancelled):
		w.log.Info("🛑 [Worker] Variation cancelled, stopping", zap.String("variation_id", v.ID))
		return nil
	}

	w.log.Error("❌ [Worker] Variation failed",
		zap.String("variation_id", v.ID),
		zap.String("batch_id", v.BatchID),
		zap.Error(err))

	marked, markErr := w.repo.MarkFailed(context.WithoutCancel(ctx), v.ID, StatusProcessing, err.Error())
	if markErr != nil {
		w.log.Error("❌ [Worker] Failed to mark variation failed", zap.String("variation_id", v.ID), zap.Error(markErr))
	}
	if marked || markErr != nil {
		w.notify.EmitFailed(ctx, v.UserID, realtime.Failed{VariationID: v.ID, BatchID: v.BatchID, Error: err.Error()})
	}
	return err
}

func (w *Worker) processCreate(ctx context.Context, v *Variation, p CreatePayload) error {
	w.progress(ctx, v, realtime.StageFetchingData, 5)

	var (
		brand   *model.Brand
		product *model.Product
		concept *model.Concept
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if brand, err = w.repo.FindBrand(gctx, v.BrandID, v.UserID); err != nil {
			return fmt.Errorf("brand %s: %w", v.BrandID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if product, err = w.repo.FindProduct(gctx, v.ProductID, v.UserID); err != nil {
			return fmt.Errorf("product %s: %w", v.ProductID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if concept, err = w.repo.FindConcept(gctx, v.ConceptID, v.UserID); err != nil {
			return fmt.Errorf("concept %s: %w", v.ConceptID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load generation inputs: %w", err)
	}

	var adCopy model.CopyResponse
	if p.PreGeneratedCopy != nil {
		adCopy = *p.PreGeneratedCopy
	} else {
		w.progress(ctx, v, realtime.StageGeneratingCopy, 15)
		var notes string
		if v.Notes != nil {
			notes = *v.Notes
		}
		generated, _, err := w.copy.GenerateSingle(ctx, copywriter.Input{
			Brand:   *brand,
			Product: *product,
			Concept: *concept,
			Notes:   notes,
		}, v.VariationIndex)
		if err != nil {
			return fmt.Errorf("copy generation failed: %w", err)
		}
		adCopy = generated
	}

	brandSnapshot := brand.Snapshot()
	productSnapshot := product.Snapshot()
	if err := w.render(ctx, v, artifacts{
		copy:            adCopy,
		brandColors:     brand.Colors,
		references:      model.ReferenceImages(product.ImageURL, brand.LogoURL, concept.ImageURL),
		productName:     product.Name,
		brandSnapshot:   &brandSnapshot,
		productSnapshot: &productSnapshot,
	}); err != nil {
		return err
	}

	w.repo.IncrementConceptUsage(context.WithoutCancel(ctx), concept.ID)
	return nil
}

func (w *Worker) processFix(ctx context.Context, v *Variation, p FixPayload) error {
	w.progress(ctx, v, realtime.StageFetchingData, 5)

	original, err := w.repo.FindOwnedVariation(ctx, p.OriginalVariationID, v.UserID)
	if err != nil {
		return fmt.Errorf("failed to load original variation %s: %w", p.OriginalVariationID, err)
	}
	if original.CopyResponse == nil {
		return fmt.Errorf("original variation %s has no copy", original.ID)
	}

	w.progress(ctx, v, realtime.StageGeneratingCopy, 15)
	// 시각 참고는 원본 정사각형 이미지만 (없으면 텍스트만으로 수정)
	var squareURL string
	if u := original.ImageURL(model.RatioSquare); u != nil {
		squareURL = *u
	}
	fixed, err := w.copy.Fix(ctx, *original.CopyResponse, p.Description, squareURL)
	if err != nil {
		return fmt.Errorf("copy fix failed: %w", err)
	}

	var (
		colors      map[string]string
		logoURL     *string
		productURL  *string
		productName string
	)
	if original.BrandSnapshot != nil {
		colors = original.BrandSnapshot.Colors
		logoURL = original.BrandSnapshot.LogoURL
	}
	if original.ProductSnapshot != nil {
		productURL = original.ProductSnapshot.ImageURL
		productName = original.ProductSnapshot.Name
	}

	return w.render(ctx, v, artifacts{
		copy:            fixed,
		brandColors:     colors,
		references:      model.ReferenceImages(productURL, logoURL),
		productName:     productName,
		brandSnapshot:   original.BrandSnapshot,
		productSnapshot: original.ProductSnapshot,
	})
}

// render - 검증 → 비율별 프롬프트 → 이미지 3개 병렬 생성 → 업로드 → 저장 → 완료 이벤트
func (w *Worker) render(ctx context.Context, v *Variation, in artifacts) error {
	result := validator.Validate(in.copy, in.brandColors)
	if len(result.Issues) > 0 || len(result.Warnings) > 0 {
		w.log.Info("🧹 [Worker] Copy cleaned",
			zap.String("variation_id", v.ID),
			zap.Strings("issues", result.Issues),
			zap.Strings("warnings", result.Warnings))
	}
	cleaned := result.Copy

	prompts := BuildRatioPrompts(cleaned.ImagePrompt, in.brandColors)

	if w.cancelled(ctx, v) {
		return errCancelled
	}
	w.progress(ctx, v, realtime.StageGeneratingImages, 35)

	refs := w.images.LoadReferences(ctx, in.references)
	images := w.generateImages(ctx, v, prompts, refs)

	w.progress(ctx, v, realtime.StageUploading, 65)
	urls := w.uploadImages(ctx, v, images)
	if len(urls) == 0 {
		if len(images) == 0 {
			return fmt.Errorf("image generation failed for every ratio")
		}
		return fmt.Errorf("image upload failed for every ratio")
	}

	if w.cancelled(ctx, v) {
		return errCancelled
	}
	w.progress(ctx, v, realtime.StageSaving, 85)

	name := displayName(in.productName, cleaned.Headline, v.VariationIndex)
	adCopy := cleaned.AdCopy()
	values := map[string]interface{}{
		"copy_response":        cleaned,
		"image_prompt":         cleaned.ImagePrompt,
		"image_url_square":     nullable(urls, model.RatioSquare),
		"image_url_vertical":   nullable(urls, model.RatioVertical),
		"image_url_horizontal": nullable(urls, model.RatioHorizontal),
		"ad_copy":              adCopy,
		"name":                 name,
		"brand_snapshot":       in.brandSnapshot,
		"product_snapshot":     in.productSnapshot,
		"error_message":        nil,
	}

	saved, err := w.repo.Complete(ctx, v.ID, values)
	if err != nil {
		return err
	}
	if !saved {
		return errCancelled
	}

	representative := ""
	for _, ratio := range model.Ratios {
		if u, ok := urls[ratio]; ok {
			representative = u
			break
		}
	}

	w.log.Info("✅ [Worker] Variation completed",
		zap.String("variation_id", v.ID),
		zap.String("batch_id", v.BatchID),
		zap.Int("images", len(urls)))
	w.notify.EmitCompleted(ctx, v.UserID, realtime.Completed{
		VariationID: v.ID,
		BatchID:     v.BatchID,
		ImageURL:    representative,
		Name:        name,
	})
	return nil
}

// generateImages - 비율별로 독립 실행, 하나가 실패해도 나머지는 계속
func (w *Worker) generateImages(ctx context.Context, v *Variation, prompts map[model.Ratio]string, refs []imagegen.Reference) map[model.Ratio][]byte {
	var (
		mu     sync.Mutex
		images = make(map[model.Ratio][]byte, len(model.Ratios))
		g      errgroup.Group
	)
	for _, ratio := range model.Ratios {
		g.Go(func() error {
			data, err := w.images.Generate(ctx, prompts[ratio], refs, ratio)
			if err != nil || len(data) == 0 {
				w.log.Warn("⚠️ [Worker] Ratio generation failed",
					zap.String("variation_id", v.ID),
					zap.String("ratio", string(ratio)),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			images[ratio] = data
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return images
}

// uploadImages - 성공한 비율만 업로드, 업로드 실패는 해당 비율만 빠진다
func (w *Worker) uploadImages(ctx context.Context, v *Variation, images map[model.Ratio][]byte) map[model.Ratio]string {
	var (
		mu   sync.Mutex
		urls = make(map[model.Ratio]string, len(images))
		g    errgroup.Group
	)
	for ratio, data := range images {
		g.Go(func() error {
			url, err := w.assets.Upload(ctx, v.UserID, v.ID, ratio, data)
			if err != nil {
				w.log.Warn("⚠️ [Worker] Upload failed",
					zap.String("variation_id", v.ID),
					zap.String("ratio", string(ratio)),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			urls[ratio] = url
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return urls
}

// cancelled - Redis 플래그 먼저, 없으면 DB 상태 확인
func (w *Worker) cancelled(ctx context.Context, v *Variation) bool {
	if w.cancel.IsBatchCancelled(ctx, v.BatchID) {
		return true
	}
	status, err := w.repo.CurrentStatus(ctx, v.ID)
	if err != nil {
		w.log.Warn("⚠️ [Worker] Failed to re-check status", zap.String("variation_id", v.ID), zap.Error(err))
		return false
	}
	return status == StatusCancelled
}

func (w *Worker) progress(ctx context.Context, v *Variation, stage string, percent int) {
	w.notify.EmitProgress(ctx, v.UserID, realtime.Progress{
		VariationID: v.ID,
		BatchID:     v.BatchID,
		Stage:       stage,
		Percent:     percent,
	})
}

func nullable(urls map[model.Ratio]string, ratio model.Ratio) interface{} {
	if u, ok := urls[ratio]; ok {
		return u
	}
	return nil
}
