package command

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Kronos-Integration/service-sub000/errors"
	"github.com/Kronos-Integration/service-sub000/metric"
)

const maxRequestBody = 1 << 20

// NewHTTPHandler exposes the dispatcher over HTTP:
//
//	POST /command                  JSON Request, JSON Response
//	GET  /services                 list
//	GET  /services/{name}          get, ?validate=true adds endpoint validation
//	POST /services/{name}/{action} start, stop, restart or a custom action
//	GET  /health                   system health, 503 when unhealthy
//	GET  /healthz                  liveness
//	GET  /metrics                  Prometheus metrics when registry is set
func NewHTTPHandler(d *Dispatcher, registry *metric.MetricsRegistry) http.Handler {
	h := &httpHandler{dispatcher: d, logger: d.logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /command", h.handleCommand)
	mux.HandleFunc("GET /services", h.handleList)
	mux.HandleFunc("GET /services/{name}", h.handleGet)
	mux.HandleFunc("POST /services/{name}/{action}", h.handleAction)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleLiveness)
	if registry != nil {
		mux.Handle("GET /metrics", registry.Handler())
	}
	return mux
}

type httpHandler struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func (h *httpHandler) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, errors.WrapInvalid(err, "HTTPHandler", "handleCommand", "request decoding"))
		return
	}
	h.execute(w, r, req)
}

func (h *httpHandler) handleList(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, Request{Action: ActionList})
}

func (h *httpHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	req := Request{Action: ActionGet, Service: r.PathValue("name")}
	if r.URL.Query().Get("validate") == "true" {
		req.Options = map[string]any{"validate": true}
	}
	h.execute(w, r, req)
}

func (h *httpHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, Request{Action: r.PathValue("action"), Service: r.PathValue("name")})
}

func (h *httpHandler) execute(w http.ResponseWriter, r *http.Request, req Request) {
	result, err := h.dispatcher.execute(r.Context(), TransportHTTP, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, Response{Result: result})
}

func (h *httpHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := h.dispatcher.Health()
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, status)
}

func (h *httpHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *httpHandler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, StatusCode(err), Response{Error: err.Error(), Code: ErrorCode(err)})
}

func (h *httpHandler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// StatusCode maps a command error to an HTTP status
func StatusCode(err error) int {
	switch ErrorCode(err) {
	case "":
		return http.StatusOK
	case "unknown_service":
		return http.StatusNotFound
	case "unknown_command", "invalid_request":
		return http.StatusBadRequest
	case "illegal_transition":
		return http.StatusConflict
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HTTPServer serves a handler until it is stopped
type HTTPServer struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewHTTPServer creates a server for addr
func NewHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPServer{
		addr:    addr,
		handler: handler,
		logger:  logger.With("component", "http", "addr", addr),
	}
}

// Start binds the address and serves in the background
func (s *HTTPServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(stderrors.New("HTTP server already started"), "HTTPServer", "Start", "state check")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.WrapFatal(err, "HTTPServer", "Start", "listen")
	}

	server := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.server = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	s.logger.Info("HTTP command surface listening", "listen", listener.Addr().String())
	return nil
}

// Addr returns the bound address, empty before Start
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully within ctx
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	start := time.Now()
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return errors.Wrap(err, "HTTPServer", "Stop", "shutdown")
	}
	s.logger.Debug("HTTP server shutdown completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
