package stats

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execution(status models.ExecutionStatus, startedAt time.Time, durationMs int64) *models.WorkflowExecution {
	return &models.WorkflowExecution{Status: status, StartedAt: startedAt, DurationMs: durationMs}
}

func TestAggregate_Empty(t *testing.T) {
	result := Aggregate(nil, nil)

	assert.Equal(t, int64(0), result.Overview.TotalExecutions)
	assert.Equal(t, 0.0, result.Overview.SuccessRate)
	assert.Equal(t, 0.0, result.Overview.AvgDurationMs)
	assert.False(t, math.IsNaN(result.Overview.SuccessRate))
	assert.NotNil(t, result.Trend)
	assert.Empty(t, result.Trend)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"trend":[]`)
}

func TestAggregate_Counts(t *testing.T) {
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	result := Aggregate([]*models.WorkflowExecution{
		execution(models.ExecutionStatusSuccess, day1, 100),
		execution(models.ExecutionStatusFailed, day1, 200),
		execution(models.ExecutionStatusSuccess, day2, 300),
		execution(models.ExecutionStatusPartial, day2, 400),
		execution(models.ExecutionStatusSuccess, day2.Add(time.Hour), 0),
		execution(models.ExecutionStatusRunning, day2.Add(2*time.Hour), 0),
	}, time.UTC)

	assert.Equal(t, int64(5), result.Overview.TotalExecutions)
	assert.Equal(t, int64(3), result.Overview.SuccessfulExecutions)
	assert.Equal(t, int64(2), result.Overview.FailedExecutions)
	assert.Equal(t, 60.0, result.Overview.SuccessRate)
	assert.Equal(t, int64(1000), result.Overview.TotalDurationMs)
	assert.Equal(t, 200.0, result.Overview.AvgDurationMs)

	assert.Equal(t, map[models.ExecutionStatus]int64{
		models.ExecutionStatusSuccess: 3,
		models.ExecutionStatusFailed:  1,
		models.ExecutionStatusPartial: 1,
		models.ExecutionStatusRunning: 1,
	}, result.StatusBreakdown)

	require.Len(t, result.Trend, 2)
	assert.Equal(t, TrendPoint{Date: "2026-03-01", Success: 1, Failed: 1, Total: 2, SuccessRate: 50}, result.Trend[0])
	assert.Equal(t, TrendPoint{Date: "2026-03-02", Success: 2, Failed: 1, Total: 3, SuccessRate: 66.67}, result.Trend[1])
}

func TestAggregate_RunningOnlyInBreakdown(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	result := Aggregate([]*models.WorkflowExecution{
		execution(models.ExecutionStatusSuccess, at, 100),
		execution(models.ExecutionStatusRunning, at.Add(time.Minute), 0),
		execution(models.ExecutionStatusRunning, at.Add(48*time.Hour), 0),
	}, time.UTC)

	overview := result.Overview
	assert.Equal(t, int64(1), overview.TotalExecutions)
	assert.Equal(t, overview.TotalExecutions, overview.SuccessfulExecutions+overview.FailedExecutions)
	assert.Equal(t, 100.0, overview.SuccessRate)
	assert.Equal(t, int64(2), result.StatusBreakdown[models.ExecutionStatusRunning])

	require.Len(t, result.Trend, 1)
	assert.Equal(t, TrendPoint{Date: "2026-03-01", Success: 1, Total: 1, SuccessRate: 100}, result.Trend[0])
}

func TestAggregate_RoundsToTwoDecimals(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	result := Aggregate([]*models.WorkflowExecution{
		execution(models.ExecutionStatusSuccess, at, 10),
		execution(models.ExecutionStatusSuccess, at, 10),
		execution(models.ExecutionStatusFailed, at, 11),
	}, time.UTC)

	assert.Equal(t, 66.67, result.Overview.SuccessRate)
	assert.Equal(t, 10.33, result.Overview.AvgDurationMs)
}

func TestAggregate_BucketsByReportingTimezone(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	lateEvening := time.Date(2026, 3, 2, 1, 30, 0, 0, time.UTC)

	utc := Aggregate([]*models.WorkflowExecution{execution(models.ExecutionStatusSuccess, lateEvening, 1)}, time.UTC)
	local := Aggregate([]*models.WorkflowExecution{execution(models.ExecutionStatusSuccess, lateEvening, 1)}, saoPaulo)

	assert.Equal(t, "2026-03-02", utc.Trend[0].Date)
	assert.Equal(t, "2026-03-01", local.Trend[0].Date)
}

func TestClampDays(t *testing.T) {
	assert.Equal(t, DefaultDays, ClampDays(0))
	assert.Equal(t, 1, ClampDays(-5))
	assert.Equal(t, 7, ClampDays(7))
	assert.Equal(t, MaxDays, ClampDays(1000))
}

func TestAggregator_StatsUsesWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	repo := &mocks.MockExecutionRepository{}

	repo.On("ListSince", ctx, "wf-1", now.Add(-7*24*time.Hour)).Return([]*models.WorkflowExecution{
		execution(models.ExecutionStatusSuccess, now.Add(-time.Hour), 50),
	}, nil)

	aggregator := NewAggregator(repo, nil, func() time.Time { return now })

	result, err := aggregator.Stats(ctx, "wf-1", 7)
	require.NoError(t, err)

	assert.Equal(t, "wf-1", result.WorkflowID)
	assert.Equal(t, 7, result.Days)
	assert.Equal(t, 100.0, result.Overview.SuccessRate)

	repo.AssertExpectations(t)
}
