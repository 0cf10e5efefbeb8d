// Package engine executes scenario runs: it walks each run's ordered node
// list, persists per-node results, and drives the run to a terminal status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/config"
	"github.com/hookflow/hookflow/internal/envelope"
	"github.com/hookflow/hookflow/internal/metrics"
	"github.com/hookflow/hookflow/internal/runs"
	"github.com/hookflow/hookflow/internal/scenarios"
)

// Observer is notified after every persisted run state transition. The
// execution monitor uses it to push live updates to watchers.
type Observer interface {
	RunUpdated(run *runs.Run)
}

// Engine consumes pending runs with a small worker pool. Nodes within one
// run execute strictly sequentially; independent runs execute concurrently
// with no shared mutable state beyond their own records.
type Engine struct {
	cfg       config.EngineConfig
	runs      *runs.Store
	results   *runs.ResultStore
	scenarios *scenarios.Store
	registry  *Registry
	observer  Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine over the given stores and node registry.
func New(cfg config.EngineConfig, runStore *runs.Store, resultStore *runs.ResultStore, scenarioStore *scenarios.Store, registry *Registry) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:       cfg,
		runs:      runStore,
		results:   resultStore,
		scenarios: scenarioStore,
		registry:  registry,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// DefaultRegistry returns the static table of built-in node executors.
func DefaultRegistry(nodeTimeout time.Duration) (*Registry, error) {
	filter, err := NewFilterNode()
	if err != nil {
		return nil, err
	}

	return NewRegistry(
		NewHTTPNode(&http.Client{Timeout: nodeTimeout}),
		NewTransformNode(),
		filter,
		NewDelayNode(),
		NewLogNode(),
	), nil
}

// SetObserver attaches a run state observer. Must be called before Start.
func (e *Engine) SetObserver(obs Observer) {
	e.observer = obs
}

// Start requeues runs stranded in running by a previous crash, then
// launches the worker pool.
func (e *Engine) Start() {
	requeued, err := e.runs.RequeueRunning(e.ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to requeue interrupted runs")
	} else if requeued > 0 {
		log.Info().Int64("runs", requeued).Msg("Requeued interrupted runs")
	}

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.workerLoop()
	}

	log.Info().
		Int("workers", e.cfg.Workers).
		Dur("poll_interval", e.cfg.PollInterval).
		Msg("Execution engine started")
}

// Stop cancels the workers and waits for in-flight runs to settle.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	log.Info().Msg("Execution engine stopped")
}

func (e *Engine) workerLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.drain()
		}
	}
}

// drain executes claimed runs until the pending queue is empty.
func (e *Engine) drain() {
	for {
		if e.ctx.Err() != nil {
			return
		}

		run, err := e.runs.ClaimPending(e.ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to claim pending run")
			return
		}
		if run == nil {
			return
		}

		e.executeRun(run)
	}
}

func (e *Engine) executeRun(run *runs.Run) {
	started := time.Now().UTC()
	metrics.RecordRunStarted(run.TriggerKey)
	e.notify(run)

	log.Info().
		Str("run_id", run.ID).
		Str("scenario_id", run.ScenarioID).
		Str("correlation_id", run.CorrelationID).
		Msg("Run started")

	err := e.walkNodes(run)

	duration := time.Since(started)
	status := runs.StatusSucceeded
	errMsg := ""
	if err != nil {
		status = runs.StatusFailed
		errMsg = err.Error()
	}

	finishCtx, cancelFinish := e.persistContext()
	finishErr := e.runs.Finish(finishCtx, run.ID, status, errMsg, time.Now().UTC(), duration)
	cancelFinish()
	if finishErr != nil {
		log.Error().Err(finishErr).Str("run_id", run.ID).Msg("Failed to finish run")
	}
	metrics.RecordRunCompleted(run.TriggerKey, string(status), duration)

	run.Status = status
	run.Error = errMsg
	run.Progress = 100
	e.notify(run)

	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("run_id", run.ID).
		Str("scenario_id", run.ScenarioID).
		Str("status", string(status)).
		Dur("duration", duration).
		Msg("Run finished")
}

// walkNodes executes the run's nodes in ascending position order,
// fail-fast. Later nodes receive the output of earlier ones through the
// run-scoped data map.
func (e *Engine) walkNodes(run *runs.Run) error {
	sc, err := e.scenarios.Get(e.ctx, run.ScenarioID)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}

	nodes := append([]scenarios.NodeSpec(nil), sc.Nodes...)
	scenarios.SortNodes(nodes)

	if len(nodes) == 0 {
		return nil
	}

	data, err := envelope.DecodeData(run.Payload)
	if err != nil {
		return fmt.Errorf("decoding run payload: %w", err)
	}

	averages, err := e.results.AvgDurationByType(e.ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load node duration history")
		averages = nil
	}

	for i, node := range nodes {
		progress := i * 100 / len(nodes)
		eta := estimateRemaining(nodes[i:], averages)
		if err := e.runs.UpdateProgress(e.ctx, run.ID, progress, node.ID, eta); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to update run progress")
		}
		run.Progress = progress
		run.CurrentNodeID = node.ID
		e.notify(run)

		output, result := e.executeNode(run, node, data)
		appendCtx, cancelAppend := e.persistContext()
		appendErr := e.results.Append(appendCtx, result)
		cancelAppend()
		if appendErr != nil {
			log.Error().Err(appendErr).Str("run_id", run.ID).Msg("Failed to persist node result")
		}

		if result.Status == runs.NodeResultFailure {
			return fmt.Errorf("node %s (%s) failed: %s", node.ID, node.Type, result.Error)
		}

		if output.Halt {
			log.Debug().
				Str("run_id", run.ID).
				Str("node_id", node.ID).
				Msg("Filter halted run, remaining nodes skipped")
			return nil
		}

		data = output.Data
	}

	return nil
}

// executeNode runs one node with per-attempt timeouts and bounded backoff
// for retryable failures. A node exceeding its timeout is a node failure,
// not a hang.
func (e *Engine) executeNode(run *runs.Run, node scenarios.NodeSpec, data map[string]any) (*Output, *runs.NodeResult) {
	in := &Input{
		RunID:         run.ID,
		ScenarioID:    run.ScenarioID,
		TriggerKey:    run.TriggerKey,
		CorrelationID: run.CorrelationID,
		Config:        node.Config,
		Data:          data,
	}

	startedAt := time.Now().UTC()
	result := &runs.NodeResult{
		RunID:    run.ID,
		NodeID:   node.ID,
		NodeType: node.Type,
	}

	executor, err := e.registry.Get(node.Type)

	var output *Output
	attempts := 0
	if err == nil {
		delay := e.cfg.RetryBaseDelay
		for attempts < e.cfg.MaxNodeAttempts {
			attempts++

			nodeCtx, cancel := context.WithTimeout(e.ctx, e.cfg.NodeTimeout)
			output, err = executor.Execute(nodeCtx, in)
			cancel()

			if err == nil || !IsRetryable(err) {
				break
			}
			if attempts == e.cfg.MaxNodeAttempts {
				break
			}

			log.Warn().
				Err(err).
				Str("run_id", run.ID).
				Str("node_id", node.ID).
				Int("attempt", attempts).
				Msg("Node failed, retrying")

			select {
			case <-e.ctx.Done():
				err = e.ctx.Err()
				attempts = e.cfg.MaxNodeAttempts
			case <-time.After(delay):
				delay *= 2
			}
		}
	}

	finishedAt := time.Now().UTC()
	result.StartedAt = startedAt
	result.FinishedAt = finishedAt
	result.DurationMs = finishedAt.Sub(startedAt).Milliseconds()
	result.Attempts = max(attempts, 1)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("node timed out after %s", e.cfg.NodeTimeout)
		}
		result.Status = runs.NodeResultFailure
		result.Error = err.Error()
		metrics.RecordNodeExecution(node.Type, string(runs.NodeResultFailure), finishedAt.Sub(startedAt))
		return &Output{}, result
	}

	if output == nil {
		output = &Output{Data: data}
	}
	if output.Data == nil {
		output.Data = data
	}

	result.Status = runs.NodeResultSuccess
	metrics.RecordNodeExecution(node.Type, string(runs.NodeResultSuccess), finishedAt.Sub(startedAt))
	return output, result
}

// estimateRemaining multiplies the historical average duration of each
// remaining node's type. Best-effort: unknown types contribute nothing,
// and no history yields no estimate.
func estimateRemaining(remaining []scenarios.NodeSpec, averages map[string]time.Duration) *time.Duration {
	if len(averages) == 0 {
		return nil
	}

	var total time.Duration
	known := false
	for _, node := range remaining {
		if avg, ok := averages[node.Type]; ok {
			total += avg
			known = true
		}
	}

	if !known {
		return nil
	}
	return &total
}

// persistTimeout bounds terminal writes issued after the engine context
// is already canceled.
const persistTimeout = 5 * time.Second

// persistContext returns a context for writes that must land even during
// shutdown. A canceled worker still has to drive its claimed run to a
// terminal status; otherwise the run is stranded in running forever.
func (e *Engine) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(e.ctx), persistTimeout)
}

func (e *Engine) notify(run *runs.Run) {
	if e.observer == nil {
		return
	}

	snapshot := *run
	e.observer.RunUpdated(&snapshot)
}
