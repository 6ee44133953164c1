package test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
)

// Repositories bundles the three stores under test.
type Repositories struct {
	Batches   repository.BatchRepository
	Mappings  repository.MappingRepository
	Mailboxes repository.MailboxRepository
}

// RunRepositoryContract runs the behaviour every repository implementation must share.
// newRepos must return empty stores.
func RunRepositoryContract(t *testing.T, newRepos func(t *testing.T) Repositories) {
	t.Run("batch round trip", func(t *testing.T) { testBatchRoundTrip(t, newRepos(t)) })
	t.Run("unknown batch", func(t *testing.T) { testUnknownBatch(t, newRepos(t)) })
	t.Run("concurrent increments", func(t *testing.T) { testConcurrentIncrements(t, newRepos(t)) })
	t.Run("recompute aggregates", func(t *testing.T) { testRecomputeAggregates(t, newRepos(t)) })
	t.Run("list batches", func(t *testing.T) { testListBatches(t, newRepos(t)) })
	t.Run("mapping uniqueness", func(t *testing.T) { testMappingUniqueness(t, newRepos(t)) })
	t.Run("concurrent mapping create", func(t *testing.T) { testConcurrentMappingCreate(t, newRepos(t)) })
	t.Run("mapping lifecycle", func(t *testing.T) { testMappingLifecycle(t, newRepos(t)) })
	t.Run("mailboxes", func(t *testing.T) { testMailboxes(t, newRepos(t)) })
}

func newBatch(t *testing.T, repo repository.BatchRepository, n int, createdAt time.Time) (*model.BatchOperation, []*model.BatchItem) {
	t.Helper()
	op := model.NewBatchOperation(model.BatchKindCreateAccounts, n, model.Properties{"source": "contract"}, createdAt)
	items := make([]*model.BatchItem, n)
	for i := 0; i < n; i++ {
		items[i] = model.NewBatchItem(op.ID, i, model.Properties{"email": fmt.Sprintf("user%d@example.com", i)})
	}
	require.NoError(t, repo.CreateBatch(context.Background(), op, items))
	return op, items
}

func testBatchRoundTrip(t *testing.T, repos Repositories) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	op, items := newBatch(t, repos.Batches, 3, now)

	got, err := repos.Batches.FindBatchByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchKindCreateAccounts, got.Kind)
	assert.Equal(t, model.BatchStatusPending, got.Status)
	assert.Equal(t, 3, got.TotalItems)
	assert.Equal(t, "contract", got.InputSnapshot["source"])
	assert.WithinDuration(t, now, got.CreatedAt, time.Second)

	stored, err := repos.Batches.FindItems(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, it := range stored {
		assert.Equal(t, i, it.Index)
		assert.Equal(t, model.ItemStatusPending, it.Status)
		assert.Equal(t, fmt.Sprintf("user%d@example.com", i), it.ItemData["email"])
		assert.Nil(t, it.ResultData)
	}

	finished := time.Now().UTC()
	items[1].MarkSuccess(model.Properties{"external_id": "ext-1"}, 2, finished)
	require.NoError(t, repos.Batches.UpdateItem(ctx, items[1]))
	items[2].MarkFailed("NETWORK_ERROR", "connection reset", 3, finished)
	require.NoError(t, repos.Batches.UpdateItem(ctx, items[2]))

	failed, err := repos.Batches.FindItemsByStatus(ctx, op.ID, model.ItemStatusFailed, model.ItemStatusSkipped)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Index)
	assert.Equal(t, "NETWORK_ERROR", failed[0].ErrorCode)
	assert.Equal(t, 3, failed[0].Attempts)
	require.NotNil(t, failed[0].CompletedAt)

	succeeded, err := repos.Batches.FindItemsByStatus(ctx, op.ID, model.ItemStatusSuccess)
	require.NoError(t, err)
	require.Len(t, succeeded, 1)
	assert.Equal(t, "ext-1", succeeded[0].ResultData["external_id"])

	op.Start(finished)
	require.NoError(t, repos.Batches.UpdateBatch(ctx, op))
	got, err = repos.Batches.FindBatchByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusInProgress, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	missing := model.NewBatchItem(op.ID, 99, nil)
	assert.ErrorIs(t, repos.Batches.UpdateItem(ctx, missing), repository.ErrItemNotFound)
}

func testUnknownBatch(t *testing.T, repos Repositories) {
	ctx := context.Background()
	_, err := repos.Batches.FindBatchByID(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrBatchNotFound)
	_, err = repos.Batches.FindItems(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrBatchNotFound)
	_, err = repos.Batches.RecomputeAggregates(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrBatchNotFound)
	assert.ErrorIs(t, repos.Batches.IncrementOutcome(ctx, "nope", model.ItemStatusSuccess), repository.ErrBatchNotFound)

	ghost := model.NewBatchOperation(model.BatchKindConnectWarmup, 1, nil, time.Now())
	assert.ErrorIs(t, repos.Batches.UpdateBatch(ctx, ghost), repository.ErrBatchNotFound)
}

func testConcurrentIncrements(t *testing.T, repos Repositories) {
	ctx := context.Background()
	op, _ := newBatch(t, repos.Batches, 20, time.Now())

	outcomes := make([]model.ItemStatus, 0, 20)
	for i := 0; i < 10; i++ {
		outcomes = append(outcomes, model.ItemStatusSuccess)
	}
	for i := 0; i < 6; i++ {
		outcomes = append(outcomes, model.ItemStatusFailed)
	}
	for i := 0; i < 4; i++ {
		outcomes = append(outcomes, model.ItemStatusSkipped)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(outcomes))
	for _, status := range outcomes {
		wg.Add(1)
		go func(status model.ItemStatus) {
			defer wg.Done()
			errs <- repos.Batches.IncrementOutcome(ctx, op.ID, status)
		}(status)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repos.Batches.FindBatchByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.SuccessfulItems)
	assert.Equal(t, 6, got.FailedItems)
	assert.Equal(t, 4, got.SkippedItems)
	assert.Equal(t, 16, got.ProcessedItems)
	assert.Equal(t, got.SuccessfulItems+got.FailedItems, got.ProcessedItems)

	assert.Error(t, repos.Batches.IncrementOutcome(ctx, op.ID, model.ItemStatusProcessing))
}

func testRecomputeAggregates(t *testing.T, repos Repositories) {
	ctx := context.Background()
	op, items := newBatch(t, repos.Batches, 4, time.Now())
	now := time.Now()

	// Counters drift from the item rows; the rescan wins.
	require.NoError(t, repos.Batches.IncrementOutcome(ctx, op.ID, model.ItemStatusSuccess))
	require.NoError(t, repos.Batches.IncrementOutcome(ctx, op.ID, model.ItemStatusSuccess))

	items[0].MarkSuccess(model.Properties{"ok": true}, 1, now)
	items[1].MarkFailed("API_ERROR", "boom", 1, now)
	items[2].MarkSkipped("CANCELLED", "batch cancelled", now)
	for _, it := range items[:3] {
		require.NoError(t, repos.Batches.UpdateItem(ctx, it))
	}

	got, err := repos.Batches.RecomputeAggregates(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalItems)
	assert.Equal(t, 1, got.SuccessfulItems)
	assert.Equal(t, 1, got.FailedItems)
	assert.Equal(t, 1, got.SkippedItems)
	assert.Equal(t, 2, got.ProcessedItems)

	stored, err := repos.Batches.FindBatchByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ProcessedItems, stored.ProcessedItems)
	assert.Equal(t, got.SkippedItems, stored.SkippedItems)
}

func testListBatches(t *testing.T, repos Repositories) {
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	first, _ := newBatch(t, repos.Batches, 1, base)
	second, _ := newBatch(t, repos.Batches, 1, base.Add(time.Minute))
	third, _ := newBatch(t, repos.Batches, 1, base.Add(2*time.Minute))

	all, err := repos.Batches.ListBatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	limited, err := repos.Batches.ListBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, third.ID, limited[0].ID)
}

func testMappingUniqueness(t *testing.T, repos Repositories) {
	ctx := context.Background()
	now := time.Now()

	m := model.NewExternalMapping(model.ProviderIdentity, "acct-1", "ext-1", model.Properties{"email": "a@example.com"}, now)
	id, err := repos.Mappings.Create(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, m.ID, id)

	exists, err := repos.Mappings.Exists(ctx, model.ProviderIdentity, "acct-1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repos.Mappings.Create(ctx, model.NewExternalMapping(model.ProviderIdentity, "acct-1", "ext-2", nil, now))
	assert.ErrorIs(t, err, repository.ErrMappingConflict)

	_, err = repos.Mappings.Create(ctx, model.NewExternalMapping(model.ProviderIdentity, "acct-2", "ext-1", nil, now))
	assert.ErrorIs(t, err, repository.ErrMappingConflict)

	// Uniqueness is per provider.
	_, err = repos.Mappings.Create(ctx, model.NewExternalMapping(model.ProviderWarmup, "acct-1", "ext-1", nil, now))
	assert.NoError(t, err)
}

func testConcurrentMappingCreate(t *testing.T, repos Repositories) {
	ctx := context.Background()
	const writers = 8

	var (
		wg        sync.WaitGroup
		created   int32
		conflicts int32
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := model.NewExternalMapping(model.ProviderWarmup, "acct-race", fmt.Sprintf("ext-%d", i), nil, time.Now())
			_, err := repos.Mappings.Create(ctx, m)
			switch {
			case err == nil:
				atomic.AddInt32(&created, 1)
			case errors.Is(err, repository.ErrMappingConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created)
	assert.Equal(t, int32(writers-1), conflicts)
}

func testMappingLifecycle(t *testing.T, repos Repositories) {
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repos.Mappings.Get(ctx, model.ProviderWarmup, "acct-9")
	assert.ErrorIs(t, err, repository.ErrMappingNotFound)

	m := model.NewExternalMapping(model.ProviderWarmup, "acct-9", "mbx-9", model.Properties{"daily_limit": 20}, now)
	_, err = repos.Mappings.Create(ctx, m)
	require.NoError(t, err)

	got, err := repos.Mappings.Get(ctx, model.ProviderWarmup, "acct-9")
	require.NoError(t, err)
	assert.Equal(t, "mbx-9", got.ExternalEntityID)
	assert.Equal(t, model.SyncStatusSynced, got.SyncStatus)
	assert.EqualValues(t, 20, got.ExternalSnapshot["daily_limit"])

	got.SyncStatus = model.SyncStatusFailed
	got.ExternalSnapshot = model.Properties{"daily_limit": 40}
	got.LastSyncedAt = now.Add(time.Minute)
	require.NoError(t, repos.Mappings.Update(ctx, got))

	updated, err := repos.Mappings.Get(ctx, model.ProviderWarmup, "acct-9")
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusFailed, updated.SyncStatus)
	assert.EqualValues(t, 40, updated.ExternalSnapshot["daily_limit"])
	assert.WithinDuration(t, now.Add(time.Minute), updated.LastSyncedAt, time.Second)

	require.NoError(t, repos.Mappings.Delete(ctx, model.ProviderWarmup, "acct-9"))
	assert.ErrorIs(t, repos.Mappings.Delete(ctx, model.ProviderWarmup, "acct-9"), repository.ErrMappingNotFound)
	assert.ErrorIs(t, repos.Mappings.Update(ctx, got), repository.ErrMappingNotFound)

	// The external ID is free again once the mapping is gone.
	_, err = repos.Mappings.Create(ctx, model.NewExternalMapping(model.ProviderWarmup, "acct-10", "mbx-9", nil, now))
	assert.NoError(t, err)
}

func testMailboxes(t *testing.T, repos Repositories) {
	ctx := context.Background()

	_, err := repos.Mailboxes.FindAccount(ctx, "acct-1")
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	require.NoError(t, repos.Mailboxes.SetAccountStatus(ctx, "acct-1", "a@example.com", model.AccountStatusActive))
	require.NoError(t, repos.Mailboxes.SetAccountStatus(ctx, "acct-1", "", model.AccountStatusWarming))

	acct, err := repos.Mailboxes.FindAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", acct.Email)
	assert.Equal(t, model.AccountStatusWarming, acct.Status)

	require.NoError(t, repos.Mailboxes.SaveAccount(ctx, &model.MailboxAccount{ID: "acct-1", Email: "b@example.com", Status: model.AccountStatusSuspended, UpdatedAt: time.Now()}))
	acct, err = repos.Mailboxes.FindAccount(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", acct.Email)
	assert.Equal(t, model.AccountStatusSuspended, acct.Status)

	_, err = repos.Mailboxes.FindCredentials(ctx, "acct-1")
	assert.ErrorIs(t, err, repository.ErrCredentialsNotFound)

	creds := &model.MailboxCredentials{
		AccountID: "acct-1",
		Email:     "b@example.com",
		SMTP:      model.MailEndpoint{Host: "smtp.gmail.com", Port: 587, Username: "b@example.com", PasswordToken: "tok-1"},
		IMAP:      model.MailEndpoint{Host: "imap.gmail.com", Port: 993, Username: "b@example.com", PasswordToken: "tok-1", Secure: true},
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repos.Mailboxes.SaveCredentials(ctx, creds))
	creds.SMTP.PasswordToken = "tok-2"
	require.NoError(t, repos.Mailboxes.SaveCredentials(ctx, creds))

	got, err := repos.Mailboxes.FindCredentials(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.SMTP.PasswordToken)
	assert.Equal(t, 587, got.SMTP.Port)
	assert.True(t, got.IMAP.Secure)
	assert.False(t, got.SMTP.Secure)
}
