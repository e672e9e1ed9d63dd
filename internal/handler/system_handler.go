package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// SystemHandler reports liveness and runtime status of the engine process.
type SystemHandler struct {
	engine    *service.ExamTakingService
	rdb       *redis.Client // nil with the in-memory cache driver
	checks    map[string]HealthCheck
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(engine *service.ExamTakingService, rdb *redis.Client, checks map[string]HealthCheck, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		engine:    engine,
		rdb:       rdb,
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /healthz
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			results[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "up"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": results})
}

type systemStatus struct {
	Uptime           string `json:"uptime"`
	GoVersion        string `json:"go_version"`
	NumCPU           int    `json:"num_cpu"`
	Goroutines       int    `json:"goroutines"`
	HeapAlloc        uint64 `json:"heap_alloc"`
	HeapSys          uint64 `json:"heap_sys"`
	NumGC            uint32 `json:"num_gc"`
	AttemptsLive     int    `json:"attempts_in_progress"`
	QueueTabSwitches int64  `json:"queue_tab_switches"`
}

// Status godoc
// GET /api/v1/admin/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := systemStatus{
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:  runtime.Version(),
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		HeapSys:    mem.HeapSys,
		NumGC:      mem.NumGC,
	}

	live, err := h.engine.ListInProgress(ctx)
	if err != nil {
		failWithError(c, err)
		return
	}
	st.AttemptsLive = len(live)

	if h.rdb != nil {
		n, err := h.rdb.LLen(ctx, config.WorkerKey.PersistTabSwitchQueue).Result()
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to read tab switch queue length")
		}
		st.QueueTabSwitches = n
	}

	response.Success(c, http.StatusOK, st)
}
