package service

import (
	"sync"

	"github.com/berfenger/sdm120collector/internal/core/domain"
)

// HealthState keeps the last completed cycle for the health endpoint,
// which is served from another goroutine.
type HealthState struct {
	mu   sync.RWMutex
	last *domain.CycleInfo
}

func (h *HealthState) Record(info domain.CycleInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &info
}

func (h *HealthState) Last() (domain.CycleInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return domain.CycleInfo{}, false
	}
	return *h.last, true
}

// Healthy is true once a cycle completed with at least one successful read.
func (h *HealthState) Healthy() bool {
	info, ok := h.Last()
	return ok && info.ReadSuccesses > 0
}
