package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hookflow/hookflow/internal/metrics"
	"github.com/hookflow/hookflow/internal/runs"
)

const (
	watcherWriteTimeout = 10 * time.Second
	watcherPingInterval = 30 * time.Second
	watcherBufferSize   = 64
)

// RunEvent is one live update pushed to watchers.
type RunEvent struct {
	Type                 string `json:"type"` // "run_update"
	RunID                string `json:"runId"`
	ScenarioID           string `json:"scenarioId"`
	TriggerKey           string `json:"triggerKey"`
	CorrelationID        string `json:"correlationId"`
	Status               string `json:"status"`
	CurrentNodeID        string `json:"currentNodeId,omitempty"`
	Progress             int    `json:"progress"`
	EstimatedRemainingMs *int64 `json:"estimatedRemainingMs,omitempty"`
	Error                string `json:"error,omitempty"`
}

// Hub fans run state transitions out to websocket watchers. It implements
// the engine's observer hook.
type Hub struct {
	maxWatchers int

	mu       sync.RWMutex
	watchers map[string]*watcher
	closed   bool
}

type watcher struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

// NewHub creates a watcher hub capped at maxWatchers connections.
func NewHub(maxWatchers int) *Hub {
	return &Hub{
		maxWatchers: maxWatchers,
		watchers:    make(map[string]*watcher),
	}
}

// RunUpdated pushes a run state transition to every connected watcher.
// Slow watchers have updates dropped rather than blocking the engine.
func (h *Hub) RunUpdated(run *runs.Run) {
	event := &RunEvent{
		Type:                 "run_update",
		RunID:                run.ID,
		ScenarioID:           run.ScenarioID,
		TriggerKey:           run.TriggerKey,
		CorrelationID:        run.CorrelationID,
		Status:               string(run.Status),
		CurrentNodeID:        run.CurrentNodeID,
		Progress:             run.Progress,
		EstimatedRemainingMs: run.EstimatedRemainingMs,
		Error:                run.Error,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, w := range h.watchers {
		select {
		case w.sendCh <- data:
		case <-w.done:
		default:
			log.Debug().Str("watcher_id", w.id).Msg("Watcher buffer full, dropping update")
		}
	}
}

// ServeHTTP upgrades the request and streams run updates until the client
// disconnects or the hub shuts down.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("WebSocket accept failed")
		return
	}

	w := &watcher{
		id:     uuid.New().String(),
		conn:   conn,
		sendCh: make(chan []byte, watcherBufferSize),
		done:   make(chan struct{}),
	}

	if !h.add(w) {
		conn.Close(websocket.StatusTryAgainLater, "watcher limit reached")
		return
	}
	defer h.remove(w)

	log.Debug().Str("watcher_id", w.id).Msg("Watcher connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain the read side so pings are answered and closes are noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(watcherPingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-w.sendCh:
			writeCtx, writeCancel := context.WithTimeout(ctx, watcherWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, watcherWriteTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		case <-w.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown disconnects all watchers.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for _, w := range h.watchers {
		close(w.done)
	}
}

// WatcherCount returns the number of connected watchers.
func (h *Hub) WatcherCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

func (h *Hub) add(w *watcher) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || len(h.watchers) >= h.maxWatchers {
		return false
	}

	h.watchers[w.id] = w
	metrics.IncrementWatchers()
	return true
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.watchers[w.id]; !ok {
		return
	}

	delete(h.watchers, w.id)
	metrics.DecrementWatchers()
	log.Debug().Str("watcher_id", w.id).Msg("Watcher disconnected")
}
