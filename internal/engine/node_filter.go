package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

var ErrInvalidFilterExpr = errors.New("invalid filter expression")

// FilterNode evaluates a CEL expression against the run data. A false
// result halts the remaining nodes without failing the run. Config:
//
//	expression: CEL boolean over "data" and "trigger_key"
type FilterNode struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

func NewFilterNode() (*FilterNode, error) {
	env, err := cel.NewEnv(
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("trigger_key", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}

	return &FilterNode{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

func (n *FilterNode) Type() string { return "filter" }

func (n *FilterNode) Execute(_ context.Context, in *Input) (*Output, error) {
	expr, _ := in.Config["expression"].(string)
	if expr == "" {
		return nil, fmt.Errorf("filter node requires an expression")
	}

	program, err := n.program(expr)
	if err != nil {
		return nil, err
	}

	result, _, err := program.Eval(map[string]any{
		"data":        in.Data,
		"trigger_key": in.TriggerKey,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating filter: %w", err)
	}

	pass, ok := result.Value().(bool)
	if !ok {
		return nil, fmt.Errorf("%w: expression did not return a boolean", ErrInvalidFilterExpr)
	}

	return &Output{Data: in.Data, Halt: !pass}, nil
}

func (n *FilterNode) program(expr string) (cel.Program, error) {
	n.mu.RLock()
	program, ok := n.programs[expr]
	n.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := n.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilterExpr, issues.Err())
	}

	program, err := n.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("creating program: %w", err)
	}

	n.mu.Lock()
	n.programs[expr] = program
	n.mu.Unlock()

	return program, nil
}
