package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DelayNode pauses the run. Config: duration (Go duration string, capped
// at the node timeout by the engine's per-node context).
type DelayNode struct{}

func NewDelayNode() *DelayNode { return &DelayNode{} }

func (n *DelayNode) Type() string { return "delay" }

func (n *DelayNode) Execute(ctx context.Context, in *Input) (*Output, error) {
	raw, _ := in.Config["duration"].(string)
	if raw == "" {
		return nil, fmt.Errorf("delay node requires a duration")
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing duration: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}

	return &Output{Data: in.Data}, nil
}

// LogNode emits a structured log event carrying the run's correlation ID.
// Config: message, level (debug|info|warn, default info).
type LogNode struct{}

func NewLogNode() *LogNode { return &LogNode{} }

func (n *LogNode) Type() string { return "log" }

func (n *LogNode) Execute(_ context.Context, in *Input) (*Output, error) {
	message, _ := in.Config["message"].(string)
	if message == "" {
		message = "Scenario log node"
	}

	level := zerolog.InfoLevel
	if raw, _ := in.Config["level"].(string); raw != "" {
		parsed, err := zerolog.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		level = parsed
	}

	log.WithLevel(level).
		Str("run_id", in.RunID).
		Str("correlation_id", in.CorrelationID).
		Str("trigger_key", in.TriggerKey).
		Msg(message)

	return &Output{Data: in.Data}, nil
}
