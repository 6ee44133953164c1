package model_test

import (
	"testing"
	"time"

	"github.com/tigerroll/provisioner/pkg/provision/core/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name              string
		total, successful int
		want              model.BatchStatus
	}{
		{"all succeeded", 3, 3, model.BatchStatusCompleted},
		{"none succeeded", 3, 0, model.BatchStatusFailed},
		{"some succeeded", 3, 2, model.BatchStatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, model.DeriveStatus(tt.total, tt.successful))
		})
	}
}

func TestBatchOperation_FinishWithUnfinishedItem(t *testing.T) {
	now := time.Now()
	op := model.NewBatchOperation(model.BatchKindCreateAccounts, 3, nil, now)
	items := []*model.BatchItem{
		{Status: model.ItemStatusSuccess},
		{Status: model.ItemStatusProcessing},
		{Status: model.ItemStatusSuccess},
	}
	counts := model.CountItems(items)
	op.ApplyCounts(counts)
	op.Finish(now)

	assert.Equal(t, 1, counts.Unfinished())
	assert.Equal(t, 2, op.ProcessedItems)
	assert.Equal(t, 0, op.FailedItems)
	assert.Equal(t, model.BatchStatusPartial, op.Status)
}

func TestBatchOperation_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	op := model.NewBatchOperation(model.BatchKindCreateAccounts, 3, model.Properties{"kind": "create_accounts"}, now)

	assert.NotEmpty(t, op.ID)
	assert.Equal(t, model.BatchStatusPending, op.Status)

	op.Start(now)
	require.NotNil(t, op.StartedAt)
	assert.Equal(t, model.BatchStatusInProgress, op.Status)

	items := []*model.BatchItem{
		{Status: model.ItemStatusSuccess},
		{Status: model.ItemStatusFailed},
		{Status: model.ItemStatusSuccess},
	}
	op.ApplyCounts(model.CountItems(items))
	op.Finish(now.Add(time.Minute))

	assert.Equal(t, 3, op.ProcessedItems)
	assert.Equal(t, op.SuccessfulItems+op.FailedItems, op.ProcessedItems)
	assert.Equal(t, model.BatchStatusPartial, op.Status)
	require.NotNil(t, op.CompletedAt)

	// A re-run keeps the first start time and clears completion.
	later := now.Add(time.Hour)
	op.Start(later)
	assert.Equal(t, now, *op.StartedAt)
	assert.Nil(t, op.CompletedAt)
}

func TestBatchItem_Transitions(t *testing.T) {
	now := time.Now()
	it := model.NewBatchItem("b1", 1, model.Properties{"email": "a@example.com"})
	assert.Equal(t, model.ItemStatusPending, it.Status)

	it.MarkProcessing(now)
	assert.False(t, it.Status.IsTerminal())

	it.ResultData = model.Properties{"password_token": "sealed"}
	it.MarkFailed("DATABASE_ERROR", "disk full", 3, now)
	assert.True(t, it.Status.IsTerminal())
	assert.Equal(t, 3, it.Attempts)

	it.MarkProcessing(now)
	assert.Empty(t, it.ErrorCode)
	assert.Zero(t, it.Attempts)
	assert.Equal(t, "sealed", it.ResultData["password_token"], "partial results survive a restart")

	it.MarkSuccess(model.Properties{"external_id": "x"}, 1, now)
	assert.Equal(t, model.ItemStatusSuccess, it.Status)
	assert.Equal(t, "x", it.ResultData["external_id"])
}

func TestProperties_ValueScan(t *testing.T) {
	var nilProps model.Properties
	v, err := nilProps.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	var p model.Properties
	require.NoError(t, p.Scan([]byte(`{"index":2}`)))
	assert.Equal(t, float64(2), p["index"])

	require.NoError(t, p.Scan(nil))
	assert.Empty(t, p)

	assert.Error(t, p.Scan(42))
	assert.Error(t, p.Scan("{not json"))
}
