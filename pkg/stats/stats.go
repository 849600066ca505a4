// Package stats aggregates execution history into success rates, durations and daily trends.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

const (
	DefaultDays = 30
	MaxDays     = 365
)

type Overview struct {
	TotalExecutions      int64   `json:"total_executions"`
	SuccessfulExecutions int64   `json:"successful_executions"`
	FailedExecutions     int64   `json:"failed_executions"`
	SuccessRate          float64 `json:"success_rate"`
	AvgDurationMs        float64 `json:"avg_duration_ms"`
	TotalDurationMs      int64   `json:"total_duration_ms"`
}

type TrendPoint struct {
	Date        string  `json:"date"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	Total       int64   `json:"total"`
	SuccessRate float64 `json:"success_rate"`
}

type Stats struct {
	WorkflowID      string                           `json:"workflow_id"`
	Days            int                              `json:"days"`
	Overview        Overview                         `json:"overview"`
	StatusBreakdown map[models.ExecutionStatus]int64 `json:"status_breakdown"`
	Trend           []TrendPoint                     `json:"trend"`
}

type Aggregator struct {
	executions persistence.ExecutionRepository
	location   *time.Location
	now        func() time.Time
}

// NewAggregator creates an aggregator that buckets trend days in location. A nil location means UTC.
func NewAggregator(executions persistence.ExecutionRepository, location *time.Location, clock func() time.Time) *Aggregator {
	if location == nil {
		location = time.UTC
	}

	if clock == nil {
		clock = time.Now
	}

	return &Aggregator{executions: executions, location: location, now: clock}
}

// ClampDays applies the default and the [1, MaxDays] bounds.
func ClampDays(days int) int {
	switch {
	case days == 0:
		return DefaultDays
	case days < 1:
		return 1
	case days > MaxDays:
		return MaxDays
	default:
		return days
	}
}

// Stats computes statistics over executions started in the last days*24h.
func (a *Aggregator) Stats(ctx context.Context, workflowID string, days int) (*Stats, error) {
	days = ClampDays(days)
	since := a.now().Add(-time.Duration(days) * 24 * time.Hour)

	executions, err := a.executions.ListSince(ctx, workflowID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions for stats: %w", err)
	}

	result := Aggregate(executions, a.location)
	result.WorkflowID = workflowID
	result.Days = days

	return result, nil
}

// Aggregate computes statistics over the given executions. It is pure and tolerates an empty slice.
// Executions still RUNNING appear in the status breakdown only.
func Aggregate(executions []*models.WorkflowExecution, location *time.Location) *Stats {
	if location == nil {
		location = time.UTC
	}

	result := &Stats{
		StatusBreakdown: make(map[models.ExecutionStatus]int64),
		Trend:           make([]TrendPoint, 0),
	}

	var completed int64

	days := make(map[string]*TrendPoint)

	for _, execution := range executions {
		result.StatusBreakdown[execution.Status]++

		if !execution.Status.IsTerminal() {
			continue
		}

		result.Overview.TotalExecutions++

		day := execution.StartedAt.In(location).Format(time.DateOnly)

		point, ok := days[day]
		if !ok {
			point = &TrendPoint{Date: day}
			days[day] = point
		}

		point.Total++

		switch execution.Status {
		case models.ExecutionStatusSuccess:
			result.Overview.SuccessfulExecutions++
			point.Success++
		case models.ExecutionStatusFailed, models.ExecutionStatusPartial:
			result.Overview.FailedExecutions++
			point.Failed++
		}

		completed++
		result.Overview.TotalDurationMs += execution.DurationMs
	}

	result.Overview.SuccessRate = rate(result.Overview.SuccessfulExecutions, result.Overview.TotalExecutions)

	if completed > 0 {
		result.Overview.AvgDurationMs = round2(float64(result.Overview.TotalDurationMs) / float64(completed))
	}

	for _, point := range days {
		point.SuccessRate = rate(point.Success, point.Total)
		result.Trend = append(result.Trend, *point)
	}

	sort.Slice(result.Trend, func(i, j int) bool {
		return result.Trend[i].Date < result.Trend[j].Date
	})

	return result
}

func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}

	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
