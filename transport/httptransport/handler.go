package httptransport

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/driftsync/driftsync/logging"
	"github.com/driftsync/driftsync/transport"
)

// Authority is the server-side owner of canonical state. It applies a
// batch and reports a verdict per operation in request order.
type Authority interface {
	ApplyBatch(ctx context.Context, req *transport.BatchRequest) (*transport.BatchResponse, error)
}

// ServerOptions configures the sync handler.
type ServerOptions struct {
	// MaxRequestSize caps request body size in bytes. The cap applies
	// to the decompressed body for gzip-encoded requests.
	MaxRequestSize int64

	// CompressionEnabled turns on gzip response compression for clients
	// that accept it.
	CompressionEnabled bool

	// CompressionThreshold is the minimum response size in bytes that
	// gets compressed.
	CompressionThreshold int64
}

// DefaultServerOptions returns production defaults.
func DefaultServerOptions() *ServerOptions {
	return &ServerOptions{
		MaxRequestSize:       8 << 20, // 8MB
		CompressionEnabled:   true,
		CompressionThreshold: 1024, // 1KB
	}
}

// SyncHandler serves the batch and health endpoints.
type SyncHandler struct {
	authority Authority
	logger    *logging.Logger
	options   *ServerOptions
}

// NewSyncHandler creates the handler for serving sync endpoints under
// the /sync prefix.
func NewSyncHandler(authority Authority, logger *logging.Logger, options *ServerOptions) *SyncHandler {
	if logger == nil {
		logger = logging.WithComponent(logging.Component("sync-handler"))
	}
	if options == nil {
		options = DefaultServerOptions()
	}
	return &SyncHandler{
		authority: authority,
		logger:    logger,
		options:   options,
	}
}

// Router returns a mux router with the sync routes mounted.
func (h *SyncHandler) Router() *mux.Router {
	r := mux.NewRouter()
	s := r.PathPrefix("/sync").Subrouter()
	s.HandleFunc("/batch", h.handleBatch).Methods(http.MethodPost)
	s.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	return r
}

func (h *SyncHandler) respond(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if h.options.CompressionEnabled &&
		int64(len(response)) >= h.options.CompressionThreshold &&
		strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(code)
		gz := gzip.NewWriter(w)
		defer gz.Close()
		gz.Write(response)
		return
	}

	w.WriteHeader(code)
	w.Write(response)
}

func (h *SyncHandler) respondErr(w http.ResponseWriter, r *http.Request, code int, message string) {
	h.respond(w, r, code, map[string]string{"error": message})
}

// requestBody returns the decoded request body reader, transparently
// unwrapping gzip-encoded requests. The size cap applies after
// decompression so a small compressed body cannot expand unchecked.
func (h *SyncHandler) requestBody(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	body := http.MaxBytesReader(w, r.Body, h.options.MaxRequestSize)
	if !strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
		return body, nil
	}
	gz, err := gzip.NewReader(body)
	if err != nil {
		body.Close()
		return nil, err
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(gz, h.options.MaxRequestSize), gz}, nil
}

func (h *SyncHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := h.requestBody(w, r)
	if err != nil {
		h.respondErr(w, r, http.StatusBadRequest, "invalid gzip body: "+err.Error())
		return
	}
	defer body.Close()

	var req transport.BatchRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.respondErr(w, r, http.StatusBadRequest, "bad request: "+err.Error())
		return
	}
	if req.DeviceID == "" {
		h.respondErr(w, r, http.StatusBadRequest, "deviceId is required")
		return
	}

	resp, err := h.authority.ApplyBatch(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to apply batch",
			slog.String("device_id", req.DeviceID),
			slog.String("error", err.Error()))
		h.respondErr(w, r, http.StatusInternalServerError, "could not apply batch")
		return
	}

	h.logger.Debug("Applied batch",
		slog.String("device_id", req.DeviceID),
		slog.Int("operation_count", len(req.Operations)))
	h.respond(w, r, http.StatusOK, resp)
}

func (h *SyncHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
