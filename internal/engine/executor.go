package engine

import (
	"context"
	"errors"
	"fmt"
)

// Input is what a node executor receives: its static config, the
// run-scoped context, and the output of the upstream node (the trigger
// payload for the first node).
type Input struct {
	RunID         string
	ScenarioID    string
	TriggerKey    string
	CorrelationID string
	Config        map[string]any
	Data          map[string]any
}

// Output is a node's result. Data flows to the next node in the scenario.
// Halt short-circuits the remaining nodes with the run still succeeding
// (the filter node's negative branch).
type Output struct {
	Data map[string]any
	Halt bool
}

// Executor implements one node type's operation.
type Executor interface {
	// Type returns the node type string this executor handles.
	Type() string

	// Execute runs the node. The context carries the node timeout;
	// implementations must respect cancellation.
	Execute(ctx context.Context, in *Input) (*Output, error)
}

// ErrUnknownNodeType is returned when a scenario references a node type
// with no registered executor.
var ErrUnknownNodeType = errors.New("unknown node type")

// retryableError marks a node failure worth retrying (transient network
// or upstream conditions). Everything else fails the node immediately.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err so the engine retries the node with backoff.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether a node error should be retried.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Registry is a static table of node executors resolved by type.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds a registry from the given executors.
func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{executors: make(map[string]Executor, len(executors))}
	for _, e := range executors {
		r.executors[e.Type()] = e
	}
	return r
}

// Register adds an executor, replacing any existing one for the same type.
func (r *Registry) Register(e Executor) {
	r.executors[e.Type()] = e
}

// Get resolves the executor for a node type.
func (r *Registry) Get(nodeType string) (Executor, error) {
	e, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}
	return e, nil
}

// Types returns the registered node type names.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	return types
}
