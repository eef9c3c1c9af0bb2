package api

import (
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// MonitoringHandler exposes host and process statistics. OCR and
// rasterization are memory-hungry, so operators watch this endpoint when
// sizing instances.
type MonitoringHandler struct {
	startTime time.Time
}

// NewMonitoringHandler creates a monitoring handler.
func NewMonitoringHandler() *MonitoringHandler {
	return &MonitoringHandler{startTime: time.Now()}
}

// RegisterRoutes registers monitoring routes.
func (h *MonitoringHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/system", h.GetSystem)
}

// SystemStats represents host and process statistics
type SystemStats struct {
	Uptime       int64  `json:"uptime_seconds"`
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutines"`

	// Process memory
	MemoryAllocMB uint64 `json:"memory_alloc_mb"`
	MemorySysMB   uint64 `json:"memory_sys_mb"`
	NumGC         uint32 `json:"num_gc"`

	// Host
	HostTotalMemMB uint64  `json:"host_total_mem_mb,omitempty"`
	HostUsedMemPct float64 `json:"host_used_mem_pct,omitempty"`
	HostCPUPct     float64 `json:"host_cpu_pct,omitempty"`
	HostUptime     uint64  `json:"host_uptime_seconds,omitempty"`
}

// GetSystem returns host and process statistics.
func (h *MonitoringHandler) GetSystem(c *fiber.Ctx) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := SystemStats{
		Uptime:        int64(time.Since(h.startTime).Seconds()),
		GoVersion:     runtime.Version(),
		NumGoroutine:  runtime.NumGoroutine(),
		MemoryAllocMB: m.Alloc / 1024 / 1024,
		MemorySysMB:   m.Sys / 1024 / 1024,
		NumGC:         m.NumGC,
	}

	// Host stats are best-effort; some containers restrict access.
	if vmStat, err := mem.VirtualMemory(); err == nil {
		stats.HostTotalMemMB = vmStat.Total / 1024 / 1024
		stats.HostUsedMemPct = vmStat.UsedPercent
	}
	if cpuPct, err := cpu.Percent(0, false); err == nil && len(cpuPct) > 0 {
		stats.HostCPUPct = cpuPct[0]
	}
	if uptime, err := host.Uptime(); err == nil {
		stats.HostUptime = uptime
	}

	return c.JSON(stats)
}
