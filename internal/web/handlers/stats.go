package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// statsCacheTTL keeps dashboard counters cheap under frequent polling and
// WebSocket connects. Short enough that the dashboard stays current.
const statsCacheTTL = 15 * time.Second

// statsCache holds cached stats with expiry.
type statsCache struct {
	mu        sync.RWMutex
	data      *database.DashboardStats
	expiresAt time.Time
}

func (c *statsCache) get() (*database.DashboardStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *database.DashboardStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

// StatsHandler handles the dashboard statistics endpoint.
type StatsHandler struct {
	attendance database.AttendanceStore
	cache      statsCache
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(attendance database.AttendanceStore) *StatsHandler {
	return &StatsHandler{attendance: attendance}
}

// Get returns today's dashboard counters.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.attendance.Stats(r.Context(), time.Now())
	if err != nil {
		log.Printf("stats: computing: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	h.cache.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
