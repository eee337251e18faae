package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"static-ad-server/modules/common/database"
)

func TestCreateBatchCreatesSixPendingVariations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	accepted, err := f.service.CreateBatch(ctx, owner, validRequest())
	require.NoError(t, err)
	require.Equal(t, StatusPending, accepted.Status)
	require.Len(t, accepted.VariationIDs, 6)

	members, err := f.repo.ListBatch(ctx, accepted.BatchID, owner)
	require.NoError(t, err)
	require.Len(t, members, 6)
	for i, v := range members {
		require.Equal(t, i, v.VariationIndex)
		require.Equal(t, StatusPending, v.Status)
		require.Equal(t, accepted.BatchID, v.BatchID)
		require.Equal(t, "spring launch", *v.Notes)
	}

	require.Equal(t, 5, f.balance(t, owner))
	require.Len(t, f.store.Rows("credit_transactions"), 1)

	require.Equal(t, 1, f.copy.bulkCalls)
	require.Len(t, f.queue.jobs, 6)
	for i, job := range f.queue.jobs {
		require.Equal(t, TaskCreate, job.Type)
		payload := job.Payload.(CreatePayload)
		require.Equal(t, taskID(TaskCreate, payload.VariationID), job.ID)
		require.Equal(t, i, payload.VariationIndex)
		require.NotNil(t, payload.PreGeneratedCopy)
		require.Equal(t, sampleCopy(i).Headline, payload.PreGeneratedCopy.Headline)
	}
}

func TestCreateBatchOwnershipErrors(t *testing.T) {
	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"brand of another user", CreateRequest{BrandID: "brand-2", ProductID: "product-1", ConceptID: "concept-1"}, ErrBrandNotFound},
		{"unknown product", CreateRequest{BrandID: "brand-1", ProductID: "missing", ConceptID: "concept-1"}, ErrProductNotFound},
		{"product of another user", CreateRequest{BrandID: "brand-1", ProductID: "product-2", ConceptID: "concept-1"}, ErrProductNotFound},
		{"private concept of another user", CreateRequest{BrandID: "brand-1", ProductID: "product-1", ConceptID: "concept-private"}, ErrConceptNotFound},
		{"missing ids", CreateRequest{BrandID: "brand-1"}, ErrInvalidRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service.CreateBatch(context.Background(), owner, tc.req)
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, f.store.Rows(variationsTable))
			require.Equal(t, 10, f.balance(t, owner))
			require.Empty(t, f.queue.jobs)
		})
	}
}

func TestCreateBatchInsufficientCreditsRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Update(ctx, "users", map[string]interface{}{"credits_used": 6}, database.Where().Eq("id", owner), nil)
	require.NoError(t, err)

	_, err = f.service.CreateBatch(ctx, owner, validRequest())
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.Empty(t, f.store.Rows(variationsTable))
	require.Equal(t, 4, f.balance(t, owner))
	require.Empty(t, f.queue.jobs)
	require.Zero(t, f.copy.bulkCalls)
}

func TestCreateBatchDebitWriteFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.FailUpdate["users"] = errors.New("connection reset")

	_, err := f.service.CreateBatch(context.Background(), owner, validRequest())
	require.ErrorIs(t, err, ErrInternal)
	require.Empty(t, f.store.Rows(variationsTable))
	require.Empty(t, f.store.Rows("credit_transactions"))
	require.Empty(t, f.queue.jobs)

	delete(f.store.FailUpdate, "users")
	require.Equal(t, 10, f.balance(t, owner))
}

func TestCreateBatchLedgerFailureKeepsBatch(t *testing.T) {
	f := newFixture(t)
	f.store.FailInsert["credit_transactions"] = errors.New("ledger down")

	accepted, err := f.service.CreateBatch(context.Background(), owner, validRequest())
	require.NoError(t, err)
	require.Len(t, accepted.VariationIDs, 6)
	require.Equal(t, 5, f.balance(t, owner))
	require.Len(t, f.queue.jobs, 6)
}

func TestCreateBatchBulkCopyFailureFallsBackToWorkers(t *testing.T) {
	f := newFixture(t)
	f.copy.bulkErr = errors.New("model overloaded")

	accepted, err := f.service.CreateBatch(context.Background(), owner, validRequest())
	require.NoError(t, err)
	require.Len(t, f.queue.jobs, 6)

	for _, job := range f.queue.jobs {
		require.Nil(t, job.Payload.(CreatePayload).PreGeneratedCopy)
		require.NoError(t, f.run(t, job))
	}
	require.Equal(t, 6, f.copy.singleCalls)

	status, err := f.service.GetBatchStatus(context.Background(), owner, accepted.BatchID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status.Status)
	require.Equal(t, 6, status.Counts[StatusCompleted])
}

func TestCreateBatchEnqueueFailureRefunds(t *testing.T) {
	f := newFixture(t)
	f.queue.failAll = true

	_, err := f.service.CreateBatch(context.Background(), owner, validRequest())
	require.ErrorIs(t, err, ErrEnqueueFailed)
	require.Equal(t, 10, f.balance(t, owner))

	rows := f.store.Rows(variationsTable)
	require.Len(t, rows, 6)
	for _, row := range rows {
		require.Equal(t, StatusFailed, row["status"])
	}

	var refunds []map[string]interface{}
	require.NoError(t, f.store.Find(context.Background(), "credit_transactions", database.Where().Eq("transaction_type", "refund"), &refunds))
	require.Len(t, refunds, 1)
}

func TestCreateBatchSurvivesRequestCancelAfterDebit(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 클라이언트가 문구 생성 도중 연결을 끊는다
	f.copy.onBulk = cancel

	accepted, err := f.service.CreateBatch(ctx, owner, validRequest())
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	require.Len(t, f.queue.jobs, 6)
	require.Equal(t, 5, f.balance(t, owner))

	for _, id := range accepted.VariationIDs {
		require.Equal(t, StatusPending, f.variation(t, id).Status)
	}
}

func TestCreateBatchRefundsAfterRequestCancel(t *testing.T) {
	f := newFixture(t)
	f.queue.failAll = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.copy.onBulk = cancel

	_, err := f.service.CreateBatch(ctx, owner, validRequest())
	require.ErrorIs(t, err, ErrEnqueueFailed)
	require.Equal(t, 10, f.balance(t, owner))

	for _, row := range f.store.Rows(variationsTable) {
		require.Equal(t, StatusFailed, row["status"])
	}
}

func TestCreateBatchPartialEnqueueFailure(t *testing.T) {
	f := newFixture(t)
	f.queue.failAt[3] = true

	accepted, err := f.service.CreateBatch(context.Background(), owner, validRequest())
	require.NoError(t, err)
	require.Len(t, f.queue.jobs, 5)
	require.Equal(t, 5, f.balance(t, owner))
	require.Equal(t, StatusFailed, f.variation(t, accepted.VariationIDs[3]).Status)
	require.Equal(t, StatusPending, f.variation(t, accepted.VariationIDs[2]).Status)
}

func TestCancelBatchOnlyFlipsActiveVariations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accepted, err := f.service.CreateBatch(ctx, owner, validRequest())
	require.NoError(t, err)
	ids := accepted.VariationIDs

	require.NoError(t, f.run(t, f.queue.jobs[0]))
	f.setStatus(t, ids[1], StatusProcessing)
	f.setStatus(t, ids[2], StatusProcessing)
	f.setStatus(t, ids[3], StatusProcessing)

	n, err := f.service.CancelBatch(ctx, owner, accepted.BatchID)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.True(t, f.flags.IsBatchCancelled(ctx, accepted.BatchID))

	require.Equal(t, StatusCompleted, f.variation(t, ids[0]).Status)
	for _, id := range ids[1:] {
		require.Equal(t, StatusCancelled, f.variation(t, id).Status)
	}

	// 다시 취소해도 바뀌는 것이 없다
	n, err = f.service.CancelBatch(ctx, owner, accepted.BatchID)
	require.NoError(t, err)
	require.Zero(t, n)

	status, err := f.service.GetBatchStatus(ctx, owner, accepted.BatchID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status.Status)
	require.Equal(t, 1, status.Counts[StatusCompleted])
	require.Equal(t, 5, status.Counts[StatusCancelled])
}

func TestCancelBatchScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accepted, err := f.service.CreateBatch(ctx, owner, validRequest())
	require.NoError(t, err)

	_, err = f.service.CancelBatch(ctx, "user-2", accepted.BatchID)
	require.ErrorIs(t, err, ErrBatchNotFound)
	_, err = f.service.CancelBatch(ctx, owner, "no-such-batch")
	require.ErrorIs(t, err, ErrBatchNotFound)
	require.Equal(t, StatusPending, f.variation(t, accepted.VariationIDs[0]).Status)
}

func TestGetStatusAndResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accepted, err := f.service.CreateBatch(ctx, owner, validRequest())
	require.NoError(t, err)
	id := accepted.VariationIDs[0]

	status, err := f.service.GetStatus(ctx, owner, id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, status.Status)

	_, err = f.service.GetResults(ctx, owner, id)
	require.ErrorIs(t, err, ErrGenerationNotCompleted)

	_, err = f.service.GetStatus(ctx, "user-2", id)
	require.ErrorIs(t, err, ErrGenerationNotFound)

	require.NoError(t, f.run(t, f.queue.jobs[0]))
	result, err := f.service.GetResults(ctx, owner, id)
	require.NoError(t, err)
	require.NotNil(t, result.Images.Square)
	require.NotNil(t, result.AdCopy)
	require.Equal(t, "Lumen", result.BrandSnapshot.Name)
}

func TestFixErrorsCreatesNewVariation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.completedVariation(t)

	accepted, err := f.service.FixErrors(ctx, owner, original.ID, "Headline has a typo")
	require.NoError(t, err)
	require.Len(t, accepted.VariationIDs, 1)
	newID := accepted.VariationIDs[0]
	require.NotEqual(t, original.ID, newID)

	v := f.variation(t, newID)
	require.Equal(t, StatusPending, v.Status)
	require.Equal(t, original.BrandID, v.BrandID)
	require.Equal(t, original.ConceptID, v.ConceptID)
	require.Contains(t, *v.Notes, "Headline has a typo")
	require.Equal(t, 8, f.balance(t, owner))

	require.Len(t, f.queue.jobs, 1)
	job := f.queue.jobs[0]
	require.Equal(t, TaskFix, job.Type)
	payload := job.Payload.(FixPayload)
	require.Equal(t, original.ID, payload.OriginalVariationID)
	require.Equal(t, newID, payload.VariationID)
	require.Equal(t, "Headline has a typo", payload.Description)

	// 원본은 그대로
	require.Equal(t, StatusCompleted, f.variation(t, original.ID).Status)
}

func TestFixErrorsPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.completedVariation(t)

	_, err := f.service.FixErrors(ctx, owner, original.ID, "  ")
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.service.FixErrors(ctx, "user-2", original.ID, "wrong color")
	require.ErrorIs(t, err, ErrGenerationNotFound)

	f.setStatus(t, original.ID, StatusFailed)
	_, err = f.service.FixErrors(ctx, owner, original.ID, "wrong color")
	require.ErrorIs(t, err, ErrGenerationNotCompleted)
	require.Len(t, f.store.Rows(variationsTable), 1)
}

func TestFixErrorsInsufficientCreditsRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.completedVariation(t)
	_, err := f.store.Update(ctx, "users", map[string]interface{}{"credits_used": 9}, database.Where().Eq("id", owner), nil)
	require.NoError(t, err)

	_, err = f.service.FixErrors(ctx, owner, original.ID, "wrong color")
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.Len(t, f.store.Rows(variationsTable), 1)
	require.Empty(t, f.queue.jobs)
}

func TestRegenerateSingleClonesNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	original := f.completedVariation(t)

	accepted, err := f.service.RegenerateSingle(ctx, owner, original.ID)
	require.NoError(t, err)

	v := f.variation(t, accepted.VariationIDs[0])
	require.Equal(t, "original notes", *v.Notes)
	require.Equal(t, original.VariationIndex, v.VariationIndex)
	require.Equal(t, 8, f.balance(t, owner))

	require.Len(t, f.queue.jobs, 1)
	require.Equal(t, TaskCreate, f.queue.jobs[0].Type)
	require.Nil(t, f.queue.jobs[0].Payload.(CreatePayload).PreGeneratedCopy)

	require.NoError(t, f.run(t, f.queue.jobs[0]))
	require.Equal(t, StatusCompleted, f.variation(t, v.ID).Status)
	require.Equal(t, 1, f.copy.singleCalls)
}

func TestUpdateAndListVariations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accepted, err := f.service.CreateBatch(ctx, owner, validRequest())
	require.NoError(t, err)
	ids := accepted.VariationIDs

	saved, favorite := true, true
	view, err := f.service.UpdateVariation(ctx, owner, ids[1], UpdateRequest{IsSaved: &saved, Name: strPtr(" Hero ad ")})
	require.NoError(t, err)
	require.True(t, view.IsSaved)
	require.Equal(t, "Hero ad", *view.Name)

	_, err = f.service.UpdateVariation(ctx, owner, ids[2], UpdateRequest{IsFavorite: &favorite})
	require.NoError(t, err)

	_, err = f.service.UpdateVariation(ctx, owner, ids[2], UpdateRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.service.UpdateVariation(ctx, "user-2", ids[2], UpdateRequest{IsFavorite: &favorite})
	require.ErrorIs(t, err, ErrGenerationNotFound)

	list, err := f.service.ListVariations(ctx, owner, ListFilter{Saved: &saved})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, ids[1], list.Items[0].ID)

	list, err = f.service.ListVariations(ctx, owner, ListFilter{BatchID: accepted.BatchID, Page: 2, Limit: 4})
	require.NoError(t, err)
	require.EqualValues(t, 6, list.Total)
	require.Len(t, list.Items, 2)

	list, err = f.service.ListVariations(ctx, "user-2", ListFilter{})
	require.NoError(t, err)
	require.Zero(t, list.Total)
	require.Equal(t, defaultListLimit, list.Limit)
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		statuses []string
		want     string
	}{
		{[]string{StatusPending, StatusCompleted}, StatusProcessing},
		{[]string{StatusProcessing, StatusFailed}, StatusProcessing},
		{[]string{StatusCompleted, StatusFailed, StatusCancelled}, StatusCompleted},
		{[]string{StatusCancelled, StatusCancelled}, StatusCancelled},
		{[]string{StatusFailed, StatusCancelled}, StatusFailed},
		{nil, StatusPending},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, AggregateStatus(tc.statuses), "%v", tc.statuses)
	}
}
