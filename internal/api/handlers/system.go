package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/classcam/internal/engine"
)

// Check reports whether one dependency is ready.
type Check func(ctx context.Context) error

type SystemHandler struct {
	eng    *engine.Engine
	checks map[string]Check
}

// NewSystemHandler reports readiness from checks, keyed by dependency name.
func NewSystemHandler(eng *engine.Engine, checks map[string]Check) *SystemHandler {
	return &SystemHandler{eng: eng, checks: checks}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": results,
	})
}

func (h *SystemHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.eng.Stats())
}

func (h *SystemHandler) Save(c *gin.Context) {
	if err := h.eng.Save(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}
