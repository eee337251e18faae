package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"static-ad-server/modules/common/config"
	"static-ad-server/modules/common/credit"
	"static-ad-server/modules/common/model"
	"static-ad-server/modules/common/queue"
	"static-ad-server/modules/copywriter"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Credits - 크레딧 차감/환불
type Credits interface {
	Debit(ctx context.Context, userID string, amount int, ref credit.Reference) error
	Refund(ctx context.Context, userID string, amount int, ref credit.Reference) error
}

// CopyWriter - 광고 문구 생성
type CopyWriter interface {
	GenerateVariations(ctx context.Context, in copywriter.Input, count int) ([]model.CopyResponse, copywriter.Usage, error)
	GenerateSingle(ctx context.Context, in copywriter.Input, index int) (model.CopyResponse, copywriter.Usage, error)
	Fix(ctx context.Context, original model.CopyResponse, description, referenceImageURL string) (model.CopyResponse, error)
}

// Enqueuer - 작업 등록
type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) (string, error)
	AddBulk(ctx context.Context, jobs []queue.Job) []error
}

// CancelFlags - 배치 취소 플래그
type CancelFlags interface {
	SetBatchCancelled(ctx context.Context, batchID string) error
	IsBatchCancelled(ctx context.Context, batchID string) bool
}

// Settings - 배치 크기와 작업별 크레딧 비용
type Settings struct {
	BatchSize      int
	BatchCost      int
	FixCost        int
	RegenerateCost int
}

// SettingsFromConfig - 환경변수 설정에서 추출
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BatchSize:      cfg.BatchSize,
		BatchCost:      cfg.BatchCreditCost,
		FixCost:        cfg.FixCreditCost,
		RegenerateCost: cfg.RegenerateCreditCost,
	}
}

// Service - 생성 요청 접수, 크레딧 차감, 작업 등록, 조회/취소
type Service struct {
	repo     *Repository
	credits  Credits
	copy     CopyWriter
	queue    Enqueuer
	cancel   CancelFlags
	settings Settings
	newID    func() string
	now      func() time.Time
	log      *zap.Logger
}

func NewService(repo *Repository, credits Credits, writer CopyWriter, q Enqueuer, cancel CancelFlags, settings Settings, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		credits:  credits,
		copy:     writer,
		queue:    q,
		cancel:   cancel,
		settings: settings,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
		log:      log.Named("generation"),
	}
}

// CreateBatch - 배치 생성: 변형 N개 생성 → 크레딧 차감 → 문구 일괄 생성(선택) → 작업 등록
func (s *Service) CreateBatch(ctx context.Context, userID string, req CreateRequest) (*Accepted, error) {
	if req.BrandID == "" || req.ProductID == "" || req.ConceptID == "" {
		return nil, ErrInvalidRequest.withMessage("brandId, productId and conceptId are required")
	}

	brand, product, concept, err := s.loadCatalog(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	batchID := s.newID()
	createdAt := s.now().UTC()
	notes := optionalString(strings.TrimSpace(req.Notes))

	variations := make([]Variation, s.settings.BatchSize)
	ids := make([]string, s.settings.BatchSize)
	for i := range variations {
		ids[i] = s.newID()
		variations[i] = Variation{
			ID:             ids[i],
			BatchID:        batchID,
			VariationIndex: i,
			UserID:         userID,
			BrandID:        brand.ID,
			ProductID:      product.ID,
			ConceptID:      concept.ID,
			Notes:          notes,
			Status:         StatusPending,
			CreatedAt:      createdAt,
		}
	}

	if err := s.repo.InsertVariations(ctx, variations); err != nil {
		s.log.Error("❌ [Generation] Failed to create batch records", zap.String("batch_id", batchID), zap.Error(err))
		return nil, ErrInternal
	}

	ref := credit.Reference{
		Type:        credit.TypeGenerationBatch,
		BatchID:     batchID,
		Description: fmt.Sprintf("Ad generation batch (%d variations)", s.settings.BatchSize),
	}
	if err := s.debit(ctx, userID, s.settings.BatchCost, ref, ids); err != nil {
		return nil, err
	}

	// 차감 이후 단계는 요청이 끊겨도 끝까지 진행해야 등록/환불 상태가 어긋나지 않는다
	ctx = context.WithoutCancel(ctx)

	s.log.Info("📦 [Generation] Batch created",
		zap.String("batch_id", batchID),
		zap.String("user_id", userID),
		zap.Int("variations", len(ids)))

	copies := s.pregenerateCopy(ctx, copywriter.Input{Brand: *brand, Product: *product, Concept: *concept, Notes: req.Notes}, batchID)

	jobs := make([]queue.Job, len(variations))
	for i, v := range variations {
		payload := CreatePayload{
			VariationID:    v.ID,
			UserID:         userID,
			BatchID:        batchID,
			VariationIndex: v.VariationIndex,
		}
		if i < len(copies) {
			c := copies[i]
			payload.PreGeneratedCopy = &c
		}
		jobs[i] = queue.Job{ID: taskID(TaskCreate, v.ID), Type: TaskCreate, Payload: payload}
	}

	enqueued := s.enqueueAll(ctx, jobs, ids)
	if enqueued == 0 {
		s.refund(ctx, userID, s.settings.BatchCost, credit.Reference{BatchID: batchID, Description: "batch could not be scheduled"})
		return nil, ErrEnqueueFailed
	}

	return &Accepted{BatchID: batchID, VariationIDs: ids, Status: StatusPending}, nil
}

// FixErrors - 완료된 변형을 설명에 맞게 고친 새 변형 생성
func (s *Service) FixErrors(ctx context.Context, userID, variationID, description string) (*Accepted, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrInvalidRequest.withMessage("description is required")
	}

	original, err := s.completedVariation(ctx, userID, variationID)
	if err != nil {
		return nil, err
	}

	v := s.derive(original, fixNotes(original.Notes, description))
	ref := credit.Reference{
		Type:        credit.TypeGenerationFix,
		BatchID:     v.BatchID,
		VariationID: v.ID,
		Description: "Fix of " + original.ID,
	}
	job := queue.Job{
		ID:   taskID(TaskFix, v.ID),
		Type: TaskFix,
		Payload: FixPayload{
			VariationID:         v.ID,
			OriginalVariationID: original.ID,
			UserID:              userID,
			Description:         description,
		},
	}
	return s.submitSingle(ctx, v, s.settings.FixCost, ref, job)
}

// RegenerateSingle - 같은 입력으로 새 변형 하나 생성
func (s *Service) RegenerateSingle(ctx context.Context, userID, variationID string) (*Accepted, error) {
	original, err := s.completedVariation(ctx, userID, variationID)
	if err != nil {
		return nil, err
	}

	var notes string
	if original.Notes != nil {
		notes = *original.Notes
	}
	v := s.derive(original, notes)
	ref := credit.Reference{
		Type:        credit.TypeGenerationRegenerate,
		BatchID:     v.BatchID,
		VariationID: v.ID,
		Description: "Regeneration of " + original.ID,
	}
	job := queue.Job{
		ID:   taskID(TaskCreate, v.ID),
		Type: TaskCreate,
		Payload: CreatePayload{
			VariationID:    v.ID,
			UserID:         userID,
			BatchID:        v.BatchID,
			VariationIndex: v.VariationIndex,
		},
	}
	return s.submitSingle(ctx, v, s.settings.RegenerateCost, ref, job)
}

// CancelBatch - pending/processing 변형을 cancelled로 전환
// 실행 중인 작업은 다음 상태 확인 시점에 스스로 멈춘다.
func (s *Service) CancelBatch(ctx context.Context, userID, batchID string) (int, error) {
	members, err := s.repo.ListBatch(ctx, batchID, userID)
	if err != nil {
		s.log.Error("❌ [Generation] Failed to load batch", zap.String("batch_id", batchID), zap.Error(err))
		return 0, ErrInternal
	}
	if len(members) == 0 {
		return 0, ErrBatchNotFound
	}

	n, err := s.repo.CancelBatch(ctx, batchID, userID)
	if err != nil {
		s.log.Error("❌ [Generation] Failed to cancel batch", zap.String("batch_id", batchID), zap.Error(err))
		return 0, ErrInternal
	}

	if err := s.cancel.SetBatchCancelled(ctx, batchID); err != nil {
		s.log.Warn("⚠️ [Generation] Failed to set cancel flag", zap.String("batch_id", batchID), zap.Error(err))
	}

	s.log.Info("🛑 [Generation] Batch cancelled",
		zap.String("batch_id", batchID),
		zap.String("user_id", userID),
		zap.Int("cancelled", n))
	return n, nil
}

// GetStatus - 변형 상태
func (s *Service) GetStatus(ctx context.Context, userID, variationID string) (*StatusView, error) {
	v, err := s.ownedVariation(ctx, userID, variationID)
	if err != nil {
		return nil, err
	}
	view := v.statusView()
	return &view, nil
}

// GetResults - 완료된 변형의 결과
func (s *Service) GetResults(ctx context.Context, userID, variationID string) (*ResultView, error) {
	v, err := s.completedVariation(ctx, userID, variationID)
	if err != nil {
		return nil, err
	}
	view := v.resultView()
	return &view, nil
}

// GetBatchStatus - 배치 집계 상태
func (s *Service) GetBatchStatus(ctx context.Context, userID, batchID string) (*BatchStatus, error) {
	members, err := s.repo.ListBatch(ctx, batchID, userID)
	if err != nil {
		s.log.Error("❌ [Generation] Failed to load batch", zap.String("batch_id", batchID), zap.Error(err))
		return nil, ErrInternal
	}
	if len(members) == 0 {
		return nil, ErrBatchNotFound
	}

	status := &BatchStatus{
		BatchID:    batchID,
		Total:      len(members),
		Counts:     map[string]int{},
		Variations: make([]StatusView, 0, len(members)),
	}
	statuses := make([]string, 0, len(members))
	for i := range members {
		status.Counts[members[i].Status]++
		statuses = append(statuses, members[i].Status)
		status.Variations = append(status.Variations, members[i].statusView())
	}
	status.Status = AggregateStatus(statuses)
	return status, nil
}

// AggregateStatus - 모두 끝나기 전까지 processing
// 끝난 뒤에는 하나라도 완료면 completed, 전부 취소면 cancelled, 그 외 failed
func AggregateStatus(statuses []string) string {
	if len(statuses) == 0 {
		return StatusPending
	}

	completed, cancelled := 0, 0
	for _, st := range statuses {
		if !Terminal(st) {
			return StatusProcessing
		}
		switch st {
		case StatusCompleted:
			completed++
		case StatusCancelled:
			cancelled++
		}
	}

	switch {
	case completed > 0:
		return StatusCompleted
	case cancelled == len(statuses):
		return StatusCancelled
	}
	return StatusFailed
}

// UpdateVariation - 이름/저장/즐겨찾기
func (s *Service) UpdateVariation(ctx context.Context, userID, variationID string, req UpdateRequest) (*StatusView, error) {
	values := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrInvalidRequest.withMessage("name must not be empty")
		}
		values["name"] = name
	}
	if req.IsSaved != nil {
		values["is_saved"] = *req.IsSaved
	}
	if req.IsFavorite != nil {
		values["is_favorite"] = *req.IsFavorite
	}
	if len(values) == 0 {
		return nil, ErrInvalidRequest.withMessage("nothing to update")
	}

	v, err := s.repo.UpdateFlags(ctx, variationID, userID, values)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrGenerationNotFound
		}
		s.log.Error("❌ [Generation] Failed to update variation", zap.String("variation_id", variationID), zap.Error(err))
		return nil, ErrInternal
	}
	view := v.statusView()
	return &view, nil
}

// ListVariations - 최신순 목록
func (s *Service) ListVariations(ctx context.Context, userID string, f ListFilter) (*ListResult, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}

	rows, total, err := s.repo.List(ctx, userID, f)
	if err != nil {
		s.log.Error("❌ [Generation] Failed to list variations", zap.String("user_id", userID), zap.Error(err))
		return nil, ErrInternal
	}

	items := make([]StatusView, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].statusView())
	}
	return &ListResult{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// loadCatalog - 소유권 확인 (브랜드 → 상품 → 컨셉 순서로 첫 실패를 보고)
func (s *Service) loadCatalog(ctx context.Context, userID string, req CreateRequest) (*model.Brand, *model.Product, *model.Concept, error) {
	brand, err := s.repo.FindBrand(ctx, req.BrandID, userID)
	if err != nil {
		return nil, nil, nil, s.lookupError(err, ErrBrandNotFound)
	}
	product, err := s.repo.FindProduct(ctx, req.ProductID, userID)
	if err != nil {
		return nil, nil, nil, s.lookupError(err, ErrProductNotFound)
	}
	concept, err := s.repo.FindConcept(ctx, req.ConceptID, userID)
	if err != nil {
		return nil, nil, nil, s.lookupError(err, ErrConceptNotFound)
	}
	return brand, product, concept, nil
}

func (s *Service) lookupError(err error, notFound *Error) error {
	if isNotFound(err) {
		return notFound
	}
	s.log.Error("❌ [Generation] Lookup failed", zap.String("code", notFound.Code), zap.Error(err))
	return ErrInternal
}

func (s *Service) ownedVariation(ctx context.Context, userID, variationID string) (*Variation, error) {
	v, err := s.repo.FindOwnedVariation(ctx, variationID, userID)
	if err != nil {
		return nil, s.lookupError(err, ErrGenerationNotFound)
	}
	return v, nil
}

func (s *Service) completedVariation(ctx context.Context, userID, variationID string) (*Variation, error) {
	v, err := s.ownedVariation(ctx, userID, variationID)
	if err != nil {
		return nil, err
	}
	if v.Status != StatusCompleted {
		return nil, ErrGenerationNotCompleted
	}
	return v, nil
}

// derive - 원본과 같은 브랜드/상품/컨셉을 가리키는 새 변형 (단독 배치)
func (s *Service) derive(original *Variation, notes string) Variation {
	return Variation{
		ID:             s.newID(),
		BatchID:        s.newID(),
		VariationIndex: original.VariationIndex,
		UserID:         original.UserID,
		BrandID:        original.BrandID,
		ProductID:      original.ProductID,
		ConceptID:      original.ConceptID,
		Notes:          optionalString(notes),
		Status:         StatusPending,
		CreatedAt:      s.now().UTC(),
	}
}

// submitSingle - 변형 하나 생성 → 차감 → 등록
func (s *Service) submitSingle(ctx context.Context, v Variation, cost int, ref credit.Reference, job queue.Job) (*Accepted, error) {
	if err := s.repo.InsertVariations(ctx, []Variation{v}); err != nil {
		s.log.Error("❌ [Generation] Failed to create variation", zap.String("variation_id", v.ID), zap.Error(err))
		return nil, ErrInternal
	}

	if err := s.debit(ctx, v.UserID, cost, ref, []string{v.ID}); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	if s.enqueueAll(ctx, []queue.Job{job}, []string{v.ID}) == 0 {
		s.refund(ctx, v.UserID, cost, credit.Reference{BatchID: v.BatchID, VariationID: v.ID, Description: "task could not be scheduled"})
		return nil, ErrEnqueueFailed
	}

	s.log.Info("📦 [Generation] Variation queued",
		zap.String("variation_id", v.ID),
		zap.String("task_type", job.Type),
		zap.String("user_id", v.UserID))
	return &Accepted{BatchID: v.BatchID, VariationIDs: []string{v.ID}, Status: StatusPending}, nil
}

// debit - 차감 실패 시 방금 만든 변형을 지운다
func (s *Service) debit(ctx context.Context, userID string, amount int, ref credit.Reference, ids []string) error {
	err := s.credits.Debit(ctx, userID, amount, ref)
	if err == nil {
		return nil
	}

	if delErr := s.repo.DeleteVariations(context.WithoutCancel(ctx), ids); delErr != nil {
		s.log.Error("❌ [Generation] Failed to roll back variations",
			zap.String("batch_id", ref.BatchID),
			zap.Strings("variation_ids", ids),
			zap.Error(delErr))
	}

	if errors.Is(err, credit.ErrInsufficientCredits) {
		return ErrInsufficientCredits
	}
	s.log.Error("❌ [Generation] Credit debit failed", zap.String("user_id", userID), zap.Error(err))
	return ErrInternal
}

func (s *Service) refund(ctx context.Context, userID string, amount int, ref credit.Reference) {
	if err := s.credits.Refund(ctx, userID, amount, ref); err != nil {
		s.log.Error("❌ [Generation] Refund failed",
			zap.String("user_id", userID),
			zap.String("batch_id", ref.BatchID),
			zap.Int("amount", amount),
			zap.Error(err))
	}
}

// pregenerateCopy - 한 번의 호출로 배치 전체 문구 생성 (실패하면 워커가 각자 생성)
func (s *Service) pregenerateCopy(ctx context.Context, in copywriter.Input, batchID string) []model.CopyResponse {
	copies, usage, err := s.copy.GenerateVariations(ctx, in, s.settings.BatchSize)
	if err != nil {
		s.log.Warn("⚠️ [Generation] Bulk copy generation failed, workers will generate copy",
			zap.String("batch_id", batchID),
			zap.Error(err))
		return nil
	}

	s.log.Info("✍️ [Generation] Copy pre-generated",
		zap.String("batch_id", batchID),
		zap.Int("variations", len(copies)),
		zap.Int32("total_tokens", usage.TotalTokens))
	return copies
}

// enqueueAll - 등록에 실패한 변형은 failed로 표시, 성공 개수 반환
func (s *Service) enqueueAll(ctx context.Context, jobs []queue.Job, ids []string) int {
	errs := s.queue.AddBulk(ctx, jobs)

	enqueued := 0
	for i, err := range errs {
		if err == nil {
			enqueued++
			continue
		}
		s.log.Error("❌ [Generation] Failed to enqueue task",
			zap.String("variation_id", ids[i]),
			zap.String("task_type", jobs[i].Type),
			zap.Error(err))
		if _, markErr := s.repo.MarkFailed(ctx, ids[i], StatusPending, "failed to schedule generation"); markErr != nil {
			s.log.Error("❌ [Generation] Failed to mark unscheduled variation",
				zap.String("variation_id", ids[i]),
				zap.Error(markErr))
		}
	}
	return enqueued
}

// taskID - 같은 변형의 중복 등록을 큐가 거부하도록
func taskID(taskType, variationID string) string {
	return taskType + ":" + variationID
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
