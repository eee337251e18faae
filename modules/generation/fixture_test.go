package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"static-ad-server/modules/common/credit"
	"static-ad-server/modules/common/database"
	"static-ad-server/modules/common/model"
	"static-ad-server/modules/common/queue"
	"static-ad-server/modules/copywriter"
	"static-ad-server/modules/imagegen"
	"static-ad-server/modules/realtime"
)

const owner = "user-1"

type fakeCopy struct {
	mu          sync.Mutex
	bulkErr     error
	singleErr   error
	bulkCalls   int
	singleCalls int
	fixCalls    int
	fixImageURL string
	fixNote     string
	onBulk      func()
}

func sampleCopy(i int) model.CopyResponse {
	return model.CopyResponse{
		Headline:     fmt.Sprintf("Glow Every Day %d", i),
		Subheadline:  "Serum for busy mornings",
		BodyText:     "Lightweight and fast absorbing.",
		CalloutTexts: []string{"Vegan", "Dermatologist tested"},
		CTAText:      "Shop now",
		ImagePrompt:  "Use the product from the reference photo on a #FF5733 backdrop, recomended lighting",
	}
}

func (f *fakeCopy) GenerateVariations(ctx context.Context, in copywriter.Input, count int) ([]model.CopyResponse, copywriter.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls++
	if f.onBulk != nil {
		f.onBulk()
	}
	if f.bulkErr != nil {
		return nil, copywriter.Usage{}, f.bulkErr
	}
	out := make([]model.CopyResponse, count)
	for i := range out {
		out[i] = sampleCopy(i)
	}
	return out, copywriter.Usage{TotalTokens: 100}, nil
}

func (f *fakeCopy) GenerateSingle(ctx context.Context, in copywriter.Input, index int) (model.CopyResponse, copywriter.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleCalls++
	if f.singleErr != nil {
		return model.CopyResponse{}, copywriter.Usage{}, f.singleErr
	}
	return sampleCopy(index), copywriter.Usage{}, nil
}

func (f *fakeCopy) Fix(ctx context.Context, original model.CopyResponse, description, referenceImageURL string) (model.CopyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixCalls++
	f.fixImageURL = referenceImageURL
	f.fixNote = description
	fixed := original
	fixed.Headline = "Fixed headline"
	return fixed, nil
}

type fakeImages struct {
	mu         sync.Mutex
	fail       map[model.Ratio]bool
	calls      int
	refURLs    []string
	onGenerate func()
}

func (f *fakeImages) LoadReferences(ctx context.Context, urls []string) []imagegen.Reference {
	f.mu.Lock()
	f.refURLs = append([]string(nil), urls...)
	f.mu.Unlock()
	refs := make([]imagegen.Reference, 0, len(urls))
	for _, u := range urls {
		refs = append(refs, imagegen.Reference{URL: u, Data: []byte("ref"), MIMEType: "image/png"})
	}
	return refs
}

func (f *fakeImages) Generate(ctx context.Context, prompt string, refs []imagegen.Reference, ratio model.Ratio) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	hook := f.onGenerate
	failed := f.fail[ratio]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if failed {
		return nil, errors.New("model refused")
	}
	return []byte("image-" + string(ratio)), nil
}

type fakeAssets struct {
	mu      sync.Mutex
	fail    map[model.Ratio]bool
	uploads int
}

func (f *fakeAssets) Upload(ctx context.Context, ownerID, variationID string, ratio model.Ratio, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[ratio] {
		return "", errors.New("bucket unavailable")
	}
	f.uploads++
	return fmt.Sprintf("https://cdn.test/%s/%s/%s.webp", ownerID, variationID, ratio.Name()), nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	progress  []realtime.Progress
	completed []realtime.Completed
	failed    []realtime.Failed
}

func (f *fakeNotifier) EmitProgress(ctx context.Context, userID string, p realtime.Progress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, p)
}

func (f *fakeNotifier) EmitCompleted(ctx context.Context, userID string, c realtime.Completed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, c)
}

func (f *fakeNotifier) EmitFailed(ctx context.Context, userID string, e realtime.Failed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, e)
}

func (f *fakeNotifier) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.progress))
	for _, p := range f.progress {
		out = append(out, p.Stage)
	}
	return out
}

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []queue.Job
	failAll bool
	failAt  map[int]bool
}

func (f *fakeQueue) Enqueue(ctx context.Context, job queue.Job) (string, error) {
	errs := f.AddBulk(ctx, []queue.Job{job})
	return job.ID, errs[0]
}

func (f *fakeQueue) AddBulk(ctx context.Context, jobs []queue.Job) []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	errs := make([]error, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		if f.failAll || f.failAt[i] {
			errs[i] = errors.New("redis unavailable")
			continue
		}
		f.jobs = append(f.jobs, job)
	}
	return errs
}

type fakeFlags struct {
	mu        sync.Mutex
	cancelled map[string]bool
}

func (f *fakeFlags) SetBatchCancelled(ctx context.Context, batchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[batchID] = true
	return nil
}

func (f *fakeFlags) IsBatchCancelled(ctx context.Context, batchID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[batchID]
}

type fixture struct {
	store    *database.MemoryStore
	repo     *Repository
	credits  *credit.Client
	copy     *fakeCopy
	images   *fakeImages
	assets   *fakeAssets
	notifier *fakeNotifier
	queue    *fakeQueue
	flags    *fakeFlags
	service  *Service
	worker   *Worker
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zap.NewNop()

	store := database.NewMemoryStore()
	require.NoError(t, store.Insert(ctx, "users", credit.Account{ID: owner, CreditLimit: 10}, nil))
	require.NoError(t, store.Insert(ctx, "users", credit.Account{ID: "user-2", CreditLimit: 10}, nil))
	require.NoError(t, store.Insert(ctx, brandsTable, []model.Brand{
		{
			ID:      "brand-1",
			UserID:  owner,
			Name:    "Lumen",
			Voice:   "warm",
			Colors:  map[string]string{"primary": "#FF5733", "secondary": "#FFFFFF"},
			LogoURL: strPtr("https://cdn.test/logo.png"),
		},
		{ID: "brand-2", UserID: "user-2", Name: "Other"},
	}, nil))
	require.NoError(t, store.Insert(ctx, productsTable, []model.Product{
		{ID: "product-1", UserID: owner, BrandID: "brand-1", Name: "Glow Serum", ImageURL: strPtr("https://cdn.test/serum.png")},
		{ID: "product-2", UserID: "user-2", BrandID: "brand-2", Name: "Other"},
	}, nil))
	require.NoError(t, store.Insert(ctx, conceptsTable, []model.Concept{
		{ID: "concept-1", Name: "Minimal studio", ImageURL: strPtr("https://cdn.test/concept.png")},
		{ID: "concept-private", UserID: strPtr("user-2"), Name: "Private"},
	}, nil))

	f := &fixture{
		store:    store,
		repo:     NewRepository(store, log),
		credits:  credit.NewClient(store, log),
		copy:     &fakeCopy{},
		images:   &fakeImages{fail: map[model.Ratio]bool{}},
		assets:   &fakeAssets{fail: map[model.Ratio]bool{}},
		notifier: &fakeNotifier{},
		queue:    &fakeQueue{failAt: map[int]bool{}},
		flags:    &fakeFlags{cancelled: map[string]bool{}},
	}
	settings := Settings{BatchSize: 6, BatchCost: 5, FixCost: 2, RegenerateCost: 2}
	f.service = NewService(f.repo, f.credits, f.copy, f.queue, f.flags, settings, log)
	f.worker = NewWorker(f.repo, f.copy, f.images, f.assets, f.notifier, f.flags, log)
	return f
}

func validRequest() CreateRequest {
	return CreateRequest{BrandID: "brand-1", ProductID: "product-1", ConceptID: "concept-1", Notes: "spring launch"}
}

func (f *fixture) balance(t *testing.T, userID string) int {
	t.Helper()
	b, err := f.credits.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (f *fixture) variation(t *testing.T, id string) *Variation {
	t.Helper()
	v, err := f.repo.FindVariation(context.Background(), id)
	require.NoError(t, err)
	return v
}

func (f *fixture) setStatus(t *testing.T, id, status string) {
	t.Helper()
	_, err := f.store.Update(context.Background(), variationsTable, map[string]interface{}{"status": status}, database.Where().Eq("id", id), nil)
	require.NoError(t, err)
}

func delivery(t *testing.T, job queue.Job) queue.Delivery {
	t.Helper()
	raw, err := json.Marshal(job.Payload)
	require.NoError(t, err)
	return queue.Delivery{ID: job.ID, Type: job.Type, Payload: raw, MaxRetry: 3}
}

// run - 등록된 작업을 워커로 실행
func (f *fixture) run(t *testing.T, job queue.Job) error {
	t.Helper()
	d := delivery(t, job)
	switch job.Type {
	case TaskCreate:
		return f.worker.HandleCreate(context.Background(), d)
	case TaskFix:
		return f.worker.HandleFix(context.Background(), d)
	}
	t.Fatalf("unknown task type %s", job.Type)
	return nil
}

// completedVariation - 이미 완료된 변형 하나를 직접 저장
func (f *fixture) completedVariation(t *testing.T) *Variation {
	t.Helper()
	c := sampleCopy(0)
	adCopy := c.AdCopy()
	brandSnapshot := model.BrandSnapshot{ID: "brand-1", Name: "Lumen", Colors: map[string]string{"primary": "#FF5733"}, LogoURL: strPtr("https://cdn.test/logo.png")}
	productSnapshot := model.ProductSnapshot{ID: "product-1", Name: "Glow Serum", ImageURL: strPtr("https://cdn.test/serum.png")}
	v := Variation{
		ID:              "done-1",
		BatchID:         "batch-old",
		VariationIndex:  2,
		UserID:          owner,
		BrandID:         "brand-1",
		ProductID:       "product-1",
		ConceptID:       "concept-1",
		Notes:           strPtr("original notes"),
		CopyResponse:    &c,
		ImagePrompt:     strPtr(c.ImagePrompt),
		ImageURLSquare:  strPtr("https://cdn.test/done-1/square.webp"),
		AdCopy:          &adCopy,
		Status:          StatusCompleted,
		Name:            strPtr("Glow Serum - Glow Every Day 0"),
		BrandSnapshot:   &brandSnapshot,
		ProductSnapshot: &productSnapshot,
	}
	require.NoError(t, f.repo.InsertVariations(context.Background(), []Variation{v}))
	return &v
}

func whereID(id string) database.Query {
	return database.Where().Eq("id", id)
}
