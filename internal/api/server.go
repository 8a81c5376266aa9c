package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"irfan/internal/device"
	"irfan/internal/fan"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Server provides HTTP API endpoints for the IR fans
type Server struct {
	manager *device.Manager
	logger  *zap.Logger
	router  *mux.Router
	server  *http.Server
}

// NewServer creates a new API server
func NewServer(manager *device.Manager, logger *zap.Logger, port int) *Server {
	s := &Server{
		manager: manager,
		logger:  logger.Named("api"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleSitemap).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/shadow", s.handleShadow).Methods(http.MethodGet)
	r.HandleFunc("/api/devices", s.handleListDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{name}", s.handleGetDevice).Methods(http.MethodGet)
	r.HandleFunc("/api/devices/{name}/turn_on", s.handleTurnOn).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{name}/turn_off", s.handleTurnOff).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{name}/percentage", s.handlePercentage).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{name}/preset", s.handlePreset).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{name}/oscillate", s.handleOscillate).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{name}/heat", s.handleHeat).Methods(http.MethodPost)
	r.HandleFunc("/api/devices/{name}/macros/{macro}", s.handleMacro).Methods(http.MethodPost)
	s.router = r

	stdLog := zap.NewStdLog(s.logger)
	handler := handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog))(
		handlers.LoggingHandler(stdLog.Writer(), r))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler without the access log, for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// DeviceResponse is a device snapshot plus its recent action history
type DeviceResponse struct {
	device.Snapshot
	Shadow any `json:"shadow"`
}

// MacroResponse reports a macro press
type MacroResponse struct {
	Macro    string          `json:"macro"`
	Executed bool            `json:"executed"`
	Device   device.Snapshot `json:"device"`
}

type turnOnRequest struct {
	PresetMode string `json:"preset_mode"`
}

type percentageRequest struct {
	Percentage *int `json:"percentage"`
}

type presetRequest struct {
	PresetMode string `json:"preset_mode"`
}

type oscillateRequest struct {
	Oscillating *bool `json:"oscillating"`
}

type heatRequest struct {
	Heat *bool `json:"heat"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// lookup resolves the {name} path variable by exact name or by slug
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	name := mux.Vars(r)["name"]
	if d, ok := s.manager.Get(name); ok {
		return d, true
	}
	if d, ok := lo.Find(s.manager.Devices(), func(d *device.Device) bool {
		return slug.Make(d.Name()) == name
	}); ok {
		return d, true
	}
	s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown device %q", name))
	return nil, false
}

// decode reads an optional JSON body into v. An empty body leaves v as is
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// accepted answers a completed intent with the post-commit snapshot
func (s *Server) accepted(w http.ResponseWriter, d *device.Device, err error) {
	if err != nil {
		s.submitFailed(w, d, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, d.Snapshot())
}

func (s *Server) submitFailed(w http.ResponseWriter, d *device.Device, err error) {
	s.logger.Warn("Intent not completed", zap.String("device", d.Name()), zap.Error(err))
	switch {
	case errors.Is(err, device.ErrStopped):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	snaps := lo.Map(s.manager.Devices(), func(d *device.Device, _ int) device.Snapshot {
		return d.Snapshot()
	})
	s.writeJSON(w, http.StatusOK, snaps)
}

// handleShadow returns the shadow state of every device keyed by name
func (s *Server) handleShadow(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Tracker().GetAll())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, DeviceResponse{
		Snapshot: d.Snapshot(),
		Shadow:   d.ShadowState(),
	})
}

func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req turnOnRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PresetMode != "" && !lo.Contains(fan.Presets, req.PresetMode) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown preset mode %q", req.PresetMode))
		return
	}
	s.accepted(w, d, d.TurnOn(r.Context(), req.PresetMode))
}

func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.accepted(w, d, d.TurnOff(r.Context()))
}

func (s *Server) handlePercentage(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req percentageRequest
	if err := decode(r, &req); err != nil || req.Percentage == nil {
		s.writeError(w, http.StatusBadRequest, `body must be {"percentage": <int>}`)
		return
	}
	s.accepted(w, d, d.SetPercentage(r.Context(), *req.Percentage))
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req presetRequest
	if err := decode(r, &req); err != nil || !lo.Contains(fan.Presets, req.PresetMode) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("preset_mode must be one of %s", strings.Join(fan.Presets, ", ")))
		return
	}
	s.accepted(w, d, d.SetPresetMode(r.Context(), req.PresetMode))
}

func (s *Server) handleOscillate(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req oscillateRequest
	if err := decode(r, &req); err != nil || req.Oscillating == nil {
		s.writeError(w, http.StatusBadRequest, `body must be {"oscillating": <bool>}`)
		return
	}
	s.accepted(w, d, d.SetOscillating(r.Context(), *req.Oscillating))
}

func (s *Server) handleHeat(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req heatRequest
	if err := decode(r, &req); err != nil || req.Heat == nil {
		s.writeError(w, http.StatusBadRequest, `body must be {"heat": <bool>}`)
		return
	}
	s.accepted(w, d, d.SetHeat(r.Context(), *req.Heat))
}

func (s *Server) handleMacro(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookup(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["macro"]
	ran, err := d.PressMacro(r.Context(), name)
	if err != nil {
		s.submitFailed(w, d, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, MacroResponse{
		Macro:    name,
		Executed: ran,
		Device:   d.Snapshot(),
	})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(s.manager.Devices()),
	})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint"},
	{Path: "/api/shadow", Method: "GET", Description: "Shadow state and action history of every fan"},
	{Path: "/api/devices", Method: "GET", Description: "Snapshots of every fan"},
	{Path: "/api/devices/{name}", Method: "GET", Description: "Snapshot and action history of one fan"},
	{Path: "/api/devices/{name}/turn_on", Method: "POST", Description: `Turn on, optional {"preset_mode": "Low"}`},
	{Path: "/api/devices/{name}/turn_off", Method: "POST", Description: "Turn off"},
	{Path: "/api/devices/{name}/percentage", Method: "POST", Description: `Set speed, {"percentage": 66}`},
	{Path: "/api/devices/{name}/preset", Method: "POST", Description: `Set preset, {"preset_mode": "High"}`},
	{Path: "/api/devices/{name}/oscillate", Method: "POST", Description: `Set oscillation, {"oscillating": true}`},
	{Path: "/api/devices/{name}/heat", Method: "POST", Description: `Set heat, {"heat": true}`},
	{Path: "/api/devices/{name}/macros/{macro}", Method: "POST", Description: "Press a named macro"},
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>IR Fan API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>IR Fan API</h1>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "IR Fan API\n")
		fmt.Fprintf(w, "==========\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-36s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExample:\n\n")
		fmt.Fprintf(w, "  curl -X POST -d '{\"percentage\": 66}' http://localhost:8081/api/devices/bedroom-fan/percentage\n\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// ListenAndServe serves HTTP requests until Stop is called
func (s *Server) ListenAndServe() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
