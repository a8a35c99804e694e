package api

import (
	"net/http"
	"time"
)

// StatsProvider reports pipeline statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves pipeline statistics with the process uptime.
type StatsHandler struct {
	statsProvider StatsProvider
	startedAt     time.Time
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, startedAt: time.Now()}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := make(map[string]interface{})
	if h.statsProvider != nil {
		for k, v := range h.statsProvider.GetStats() {
			stats[k] = v
		}
	}
	stats["uptimeSeconds"] = int64(time.Since(h.startedAt).Seconds())
	writeJSON(w, http.StatusOK, stats)
}
