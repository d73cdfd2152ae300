package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the GET /metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Name          string            `json:"name"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Controller    ControllerMetrics `json:"controller"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ControllerMetrics summarises the controller's in-memory state.
type ControllerMetrics struct {
	Devices         int  `json:"devices"`
	ExportedObjects int  `json:"exported_objects"`
	CachedProxies   int  `json:"cached_proxies"`
	Slaves          int  `json:"slaves"`
	Clients         int  `json:"clients"`
	HTTPEnabled     bool `json:"http_enabled"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		Name:          s.ctrl.Name(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Controller: ControllerMetrics{
			Devices:         s.ctrl.Registry().Count(),
			ExportedObjects: s.ctrl.Objects().Len(),
			CachedProxies:   s.ctrl.Resolver().Len(),
			Slaves:          len(s.ctrl.Federation().Links()),
			Clients:         len(s.ctrl.Broadcaster().Clients()),
			HTTPEnabled:     s.ctrl.HTTPEnabled(),
		},
	})
}
