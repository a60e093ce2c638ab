package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/erp/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping() error
}

// CacheStats exposes the size of the query cache
type CacheStats interface {
	Size() int
}

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	db        Pinger
	cache     CacheStats
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. db and cache may be nil.
func NewSystemHandler(name, version string, db Pinger, cache CacheStats) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		db:        db,
		cache:     cache,
		startTime: time.Now(),
	}
}

// HealthResponse is the health check answer
type HealthResponse struct {
	Status   string `json:"status" example:"healthy"`
	Database string `json:"database,omitempty" example:"up"`
}

// Health godoc
// @ID           getHealth
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "healthy"}
	if h.db != nil {
		resp.Database = "up"
		if err := h.db.Ping(); err != nil {
			resp.Status, resp.Database = "unhealthy", "down"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name         string `json:"name" example:"ERP Back-office"`
	Version      string `json:"version" example:"1.0.0"`
	GoVersion    string `json:"go_version" example:"go1.25.5"`
	Uptime       string `json:"uptime" example:"1h30m45s"`
	CacheEntries int    `json:"cache_entries"`
}

// GetSystemInfo godoc
// @ID           getSystemSystemInfo
// @Summary      Get system information
// @Description  Returns basic system information including version, uptime and cache size
// @Tags         system
// @Produce      json
// @Router       /system/info [get]
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.cache != nil {
		info.CacheEntries = h.cache.Size()
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(info))
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message" example:"pong"`
	Timestamp string `json:"timestamp" example:"2026-01-23T12:00:00Z"`
}

// Ping godoc
// @ID           pingSystem
// @Summary      Ping the API
// @Tags         system
// @Produce      json
// @Router       /system/ping [get]
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}
