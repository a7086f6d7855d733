package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cornelgit/415-ASG3/internal/config"
	"github.com/cornelgit/415-ASG3/internal/metrics"
	"github.com/cornelgit/415-ASG3/internal/registry"
)

// HTTPServer provides HTTP API endpoints for monitoring the registry
type HTTPServer struct {
	server    *http.Server
	handler   http.Handler
	logger    *slog.Logger
	config    *config.Config
	registry  *registry.Registry
	udpServer *UDPServer
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	reg *registry.Registry, udpServer *UDPServer, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		registry:  reg,
		udpServer: udpServer,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:         cfg.GetHTTPAddress(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/ports", h.withMetrics("/ports", h.handlePorts))
	mux.HandleFunc("/ports/", h.withMetrics("/ports/{port}", h.handlePortDetail))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// No request metrics for the metrics endpoint itself
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "healthy"
	registryStats := h.registry.Stats()
	if registryStats.Stopped {
		status = "stopped"
	}

	writeJSON(w, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"components": map[string]interface{}{
			"udp_server": h.udpServer.GetStatistics(),
			"registry":   registryStats,
		},
	})
}

// handlePorts implements the /ports endpoint
func (h *HTTPServer) handlePorts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	slots := h.registry.Snapshot()
	if r.URL.Query().Get("reserved") == "true" {
		reserved := make([]registry.SlotInfo, 0, len(slots))
		for _, s := range slots {
			if !s.Available {
				reserved = append(reserved, s)
			}
		}
		slots = reserved
	}

	writeJSON(w, map[string]interface{}{
		"total":     len(slots),
		"timestamp": time.Now().UTC(),
		"ports":     slots,
	})
}

// handlePortDetail implements the /ports/{port} endpoint
func (h *HTTPServer) handlePortDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	portStr := r.URL.Path[len("/ports/"):]
	if portStr == "" {
		http.Error(w, "Port required", http.StatusBadRequest)
		return
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		http.Error(w, "Invalid port", http.StatusBadRequest)
		return
	}

	cfg := h.registry.Config()
	if uint16(port) < cfg.StartPort || uint16(port) > cfg.EndPort {
		http.Error(w, "Port not in pool", http.StatusNotFound)
		return
	}

	writeJSON(w, h.registry.Snapshot()[uint16(port)-cfg.StartPort])
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"udp":       h.udpServer.GetStatistics(),
		"registry":  h.registry.Stats(),
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
		},
		"registry": map[string]interface{}{
			"start_port":         h.config.Registry.StartPort,
			"end_port":           h.config.Registry.EndPort,
			"keep_alive_timeout": h.config.Registry.KeepAliveTimeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, map[string]interface{}{
		"service": "PRS Port Reservation Service",
		"endpoints": map[string]interface{}{
			"GET /":             "API documentation",
			"GET /health":       "Service health check",
			"GET /ports":        fmt.Sprintf("Port table (%d ports), ?reserved=true for reservations only", len(h.registry.Snapshot())),
			"GET /ports/{port}": "Single port state",
			"GET /stats":        "Traffic and occupancy statistics",
			"GET /config":       "Service configuration",
			"GET /metrics":      "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}
