package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tvecera/zivyobraz-kindle-proxy/internal/logging"
	"github.com/tvecera/zivyobraz-kindle-proxy/pkg/models"
	"go.uber.org/zap"
)

// Router binds one HTTP endpoint per configured device to the pipeline
type Router struct {
	pipeline *Pipeline
	registry *models.DeviceRegistry
	logger   *zap.Logger
	routes   []string
}

// NewRouter creates a new router
func NewRouter(pipeline *Pipeline, registry *models.DeviceRegistry, logger *zap.Logger) *Router {
	return &Router{
		pipeline: pipeline,
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers the service routes and one route per device.
// It must be called once, before the server starts.
func (rt *Router) RegisterRoutes(mux *http.ServeMux) error {
	for _, device := range rt.registry.Devices() {
		if err := models.ValidateEndpoint(device.Endpoint); err != nil {
			return fmt.Errorf("device %s: endpoint %q: %w", device.Name, device.Endpoint, err)
		}
	}

	mux.HandleFunc(models.HealthPath, rt.handleHealth)
	mux.HandleFunc(models.DevicesPath, rt.handleDevices)
	mux.HandleFunc(models.DevicesPath+"/", rt.handleDeviceDetails)

	for _, device := range rt.registry.Devices() {
		mux.Handle(device.Endpoint, rt.deviceHandler(device))
		rt.routes = append(rt.routes, device.Endpoint)

		rt.logger.Info("Registered device endpoint",
			zap.String("device", device.Name),
			zap.String("endpoint", device.Endpoint))
	}

	return nil
}

// Routes returns the registered device endpoints in registration order
func (rt *Router) Routes() []string {
	result := make([]string, len(rt.routes))
	copy(result, rt.routes)
	return result
}

// deviceHandler closes over its own copy of device
func (rt *Router) deviceHandler(device models.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx := logging.WithRequestID(r.Context(), uuid.NewString())
		logger := logging.WithContext(ctx, rt.logger)
		logger.Debug("Device request received",
			zap.String("device", device.Name),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("query", r.URL.RawQuery))

		result, err := rt.pipeline.Process(ctx, device, r.URL.Query())
		if err != nil {
			status := http.StatusInternalServerError
			if perr, ok := err.(*PipelineError); ok {
				status = perr.Status
			}
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", result.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := w.Write(result.Body); err != nil {
			logger.Warn("Failed to write image response", zap.String("device", device.Name), zap.Error(err))
			return
		}

		logger.Info("Served device image",
			zap.String("device", device.Name),
			zap.String("content_type", result.ContentType),
			zap.Int("output_size", len(result.Body)))
	}
}

// handleHealth handles GET /health - returns service health status
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"service": "zivyobraz-proxy",
		"devices": rt.registry.Len(),
	})
}

// handleDevices handles GET /devices - returns the configured devices
func (rt *Router) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices := rt.registry.Devices()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(devices); err != nil {
		rt.logger.Error("Failed to encode devices response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rt.logger.Debug("Served devices list", zap.Int("count", len(devices)))
}

// handleDeviceDetails handles GET /devices/{name} - returns one device or 404
func (rt *Router) handleDeviceDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, models.DevicesPath+"/")
	if name == "" || strings.Contains(name, "/") {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	device, exists := rt.registry.Get(name)
	if !exists {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(device); err != nil {
		rt.logger.Error("Failed to encode device response", zap.String("device", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rt.logger.Debug("Served device details", zap.String("device", name))
}
