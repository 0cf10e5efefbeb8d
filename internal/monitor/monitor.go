// Package monitor exposes two read surfaces over run history: a live view
// of in-flight runs and aggregate performance metrics over a bounded
// historical window.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
)

const activeExecutionsLimit = 200

// ActiveExecution is one in-flight run as shown to watchers.
type ActiveExecution struct {
	RunID                string `json:"runId"`
	ScenarioID           string `json:"scenarioId"`
	ScenarioName         string `json:"scenarioName"`
	TriggerKey           string `json:"triggerKey"`
	CorrelationID        string `json:"correlationId"`
	Status               string `json:"status"`
	CurrentNodeID        string `json:"currentNodeId,omitempty"`
	Progress             int    `json:"progress"`
	ElapsedMs            int64  `json:"elapsedMs"`
	EstimatedRemainingMs *int64 `json:"estimatedRemainingMs,omitempty"`
}

// SlowScenario is one entry of the slowest-scenario ranking.
type SlowScenario struct {
	ScenarioID    string  `json:"scenarioId"`
	ScenarioName  string  `json:"scenarioName"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	Executions    int     `json:"executions"`
}

// TimelineBucket aggregates one calendar day of executions.
type TimelineBucket struct {
	Date        string  `json:"date"` // YYYY-MM-DD, UTC
	Count       int     `json:"count"`
	AvgDuration float64 `json:"avgDuration"` // milliseconds
	FailureRate float64 `json:"failureRate"`
}

// PerformanceMetrics is the aggregate report over the metrics window.
type PerformanceMetrics struct {
	WindowStart            time.Time                     `json:"windowStart"`
	TotalExecutions        int                           `json:"totalExecutions"`
	FailureRate            float64                       `json:"failureRate"`
	AvgExecutionDurationMs float64                       `json:"avgExecutionDuration"`
	MaxExecutionDurationMs int64                         `json:"maxExecutionDuration"`
	NodeTypePerformance    map[string]runs.NodeTypeStats `json:"nodeTypePerformance"`
	ExecutionTimeline      []TimelineBucket              `json:"executionTimeline"`
	SlowestScenarios       []SlowScenario                `json:"slowestScenarios"`
}

// ScenarioMetrics is the per-scenario slice of the aggregate report.
type ScenarioMetrics struct {
	ScenarioID             string           `json:"scenarioId"`
	ScenarioName           string           `json:"scenarioName"`
	WindowStart            time.Time        `json:"windowStart"`
	TotalExecutions        int              `json:"totalExecutions"`
	FailureRate            float64          `json:"failureRate"`
	AvgExecutionDurationMs float64          `json:"avgExecutionDuration"`
	MaxExecutionDurationMs int64            `json:"maxExecutionDuration"`
	ExecutionTimeline      []TimelineBucket `json:"executionTimeline"`
}

// Monitor computes execution views from the run stores.
type Monitor struct {
	cfg       config.MonitorConfig
	runs      *runs.Store
	results   *runs.ResultStore
	scenarios *scenarios.Store
}

// New creates a monitor over the given stores.
func New(cfg config.MonitorConfig, runStore *runs.Store, resultStore *runs.ResultStore, scenarioStore *scenarios.Store) *Monitor {
	return &Monitor{
		cfg:       cfg,
		runs:      runStore,
		results:   resultStore,
		scenarios: scenarioStore,
	}
}

// ActiveExecutions returns currently running runs with live progress.
func (m *Monitor) ActiveExecutions(ctx context.Context) ([]*ActiveExecution, error) {
	running, err := m.runs.ListByStatus(ctx, runs.StatusRunning, activeExecutionsLimit)
	if err != nil {
		return nil, fmt.Errorf("listing running executions: %w", err)
	}

	now := time.Now().UTC()
	active := make([]*ActiveExecution, 0, len(running))
	for _, run := range running {
		active = append(active, &ActiveExecution{
			RunID:                run.ID,
			ScenarioID:           run.ScenarioID,
			ScenarioName:         m.scenarioName(ctx, run.ScenarioID),
			TriggerKey:           run.TriggerKey,
			CorrelationID:        run.CorrelationID,
			Status:               string(run.Status),
			CurrentNodeID:        run.CurrentNodeID,
			Progress:             run.Progress,
			ElapsedMs:            now.Sub(run.StartTime).Milliseconds(),
			EstimatedRemainingMs: run.EstimatedRemainingMs,
		})
	}

	return active, nil
}

// PerformanceMetrics aggregates all terminal runs inside the configured
// window. An empty window yields zeroed metrics, not an error.
func (m *Monitor) PerformanceMetrics(ctx context.Context) (*PerformanceMetrics, error) {
	since := time.Now().UTC().Add(-m.cfg.MetricsWindow)

	terminal, err := m.runs.TerminalSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading terminal runs: %w", err)
	}

	nodeStats, err := m.results.StatsByTypeSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading node type stats: %w", err)
	}

	report := &PerformanceMetrics{
		WindowStart:         since,
		NodeTypePerformance: nodeStats,
		ExecutionTimeline:   buildTimeline(terminal),
		SlowestScenarios:    m.rankSlowest(ctx, terminal),
	}

	report.TotalExecutions = len(terminal)
	if len(terminal) == 0 {
		return report, nil
	}

	var failed int
	var totalMs int64
	for _, run := range terminal {
		if run.Status == runs.StatusFailed {
			failed++
		}
		totalMs += run.DurationMs
		if run.DurationMs > report.MaxExecutionDurationMs {
			report.MaxExecutionDurationMs = run.DurationMs
		}
	}

	report.FailureRate = float64(failed) / float64(len(terminal))
	report.AvgExecutionDurationMs = float64(totalMs) / float64(len(terminal))

	return report, nil
}

// ScenarioMetrics aggregates terminal runs of one scenario inside the
// configured window.
func (m *Monitor) ScenarioMetrics(ctx context.Context, scenarioID string) (*ScenarioMetrics, error) {
	sc, err := m.scenarios.Get(ctx, scenarioID)
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-m.cfg.MetricsWindow)
	terminal, err := m.runs.TerminalSinceForScenario(ctx, scenarioID, since)
	if err != nil {
		return nil, fmt.Errorf("loading scenario runs: %w", err)
	}

	report := &ScenarioMetrics{
		ScenarioID:        scenarioID,
		ScenarioName:      sc.Name,
		WindowStart:       since,
		TotalExecutions:   len(terminal),
		ExecutionTimeline: buildTimeline(terminal),
	}
	if len(terminal) == 0 {
		return report, nil
	}

	var failed int
	var totalMs int64
	for _, run := range terminal {
		if run.Status == runs.StatusFailed {
			failed++
		}
		totalMs += run.DurationMs
		if run.DurationMs > report.MaxExecutionDurationMs {
			report.MaxExecutionDurationMs = run.DurationMs
		}
	}

	report.FailureRate = float64(failed) / float64(len(terminal))
	report.AvgExecutionDurationMs = float64(totalMs) / float64(len(terminal))

	return report, nil
}

func (m *Monitor) scenarioName(ctx context.Context, scenarioID string) string {
	return m.scenarios.Name(ctx, scenarioID)
}

// rankSlowest returns the top-N scenarios by average run duration.
func (m *Monitor) rankSlowest(ctx context.Context, terminal []*runs.Run) []SlowScenario {
	type acc struct {
		totalMs int64
		count   int
	}

	byScenario := make(map[string]*acc)
	for _, run := range terminal {
		a, ok := byScenario[run.ScenarioID]
		if !ok {
			a = &acc{}
			byScenario[run.ScenarioID] = a
		}
		a.totalMs += run.DurationMs
		a.count++
	}

	ranked := make([]SlowScenario, 0, len(byScenario))
	for scenarioID, a := range byScenario {
		ranked = append(ranked, SlowScenario{
			ScenarioID:    scenarioID,
			ScenarioName:  m.scenarioName(ctx, scenarioID),
			AvgDurationMs: float64(a.totalMs) / float64(a.count),
			Executions:    a.count,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AvgDurationMs != ranked[j].AvgDurationMs {
			return ranked[i].AvgDurationMs > ranked[j].AvgDurationMs
		}
		return ranked[i].ScenarioID < ranked[j].ScenarioID
	})

	if len(ranked) > m.cfg.SlowestScenarios {
		ranked = ranked[:m.cfg.SlowestScenarios]
	}
	return ranked
}

// buildTimeline buckets terminal runs by UTC calendar day, oldest first.
func buildTimeline(terminal []*runs.Run) []TimelineBucket {
	type acc struct {
		count   int
		failed  int
		totalMs int64
	}

	byDay := make(map[string]*acc)
	for _, run := range terminal {
		day := run.StartTime.UTC().Format("2006-01-02")
		a, ok := byDay[day]
		if !ok {
			a = &acc{}
			byDay[day] = a
		}
		a.count++
		a.totalMs += run.DurationMs
		if run.Status == runs.StatusFailed {
			a.failed++
		}
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	timeline := make([]TimelineBucket, 0, len(days))
	for _, day := range days {
		a := byDay[day]
		timeline = append(timeline, TimelineBucket{
			Date:        day,
			Count:       a.count,
			AvgDuration: float64(a.totalMs) / float64(a.count),
			FailureRate: float64(a.failed) / float64(a.count),
		})
	}
	return timeline
}
