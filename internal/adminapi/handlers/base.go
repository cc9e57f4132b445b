// Package handlers implements the netio admin API's HTTP handlers: a
// read-only sidecar surface reporting Transceiver and host statistics,
// never touching port internals directly.
//
// @title netio Admin API
// @version 1.0
// @description Read-only operational surface for the netio Transceiver: health and runtime statistics.
//
// @contact.name wavecast
// @contact.url https://github.com/wavecast/netio
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8088
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"log/slog"
	"sync"
	"time"
)

// TransceiverStatsSnapshot is the shape a Handler reads from the wired
// Transceiver; kept as plain fields (not the transceiver package's own
// Stats type) so this package never imports internal/transceiver, the same
// decoupling the teacher uses for its DNSStatsSnapshot/SetDNSStatsFunc
// pair.
type TransceiverStatsSnapshot struct {
	OpenPorts      int
	ClosingPorts   int
	TasksSubmitted int64
	TasksCompleted int64
	TaskQueueDepth int
}

// StatsFunc returns the current Transceiver statistics snapshot.
type StatsFunc func() TransceiverStatsSnapshot

// Handler contains dependencies for admin API handlers.
type Handler struct {
	logger    *slog.Logger
	startTime time.Time

	mu        sync.RWMutex
	statsFunc StatsFunc
}

// New creates a Handler. statsFunc may be wired later with SetStatsFunc,
// once the Transceiver the API is reporting on has been constructed.
func New(logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetStatsFunc wires the Transceiver statistics source for runtime access.
func (h *Handler) SetStatsFunc(fn StatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statsFunc = fn
}

func (h *Handler) snapshot() TransceiverStatsSnapshot {
	h.mu.RLock()
	fn := h.statsFunc
	h.mu.RUnlock()
	if fn == nil {
		return TransceiverStatsSnapshot{}
	}
	return fn()
}
