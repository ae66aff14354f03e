package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/supplier-ingest/pkg/kit"
	"github.com/hazyhaar/supplier-ingest/pkg/pipeline"
	"github.com/hazyhaar/supplier-ingest/pkg/profile"
	"github.com/hazyhaar/supplier-ingest/pkg/sheet"
)

// MaxUploadBytes bounds the body of POST /v1/ingest.
const MaxUploadBytes = 32 << 20

// NewRouter returns an http.Handler with all ingestion API routes. When
// metrics is non-nil it is mounted on /metrics.
func NewRouter(runner *pipeline.Runner, logger *slog.Logger, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	h := &handler{
		endpoints: newEndpoints(runner, logger),
		reg:       runner.Registry(),
	}

	mux.HandleFunc("GET /v1/profiles", h.handleListProfiles)
	mux.HandleFunc("POST /v1/detect", h.handleDetect)
	mux.HandleFunc("GET /v1/ingest", methodNotAllowed)
	mux.HandleFunc("POST /v1/ingest", h.handleIngest)
	mux.HandleFunc("GET /v1/health", h.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return cors(mux)
}

type handler struct {
	endpoints
	reg *profile.Registry
}

// --- profiles ---

func (h *handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	resp, err := h.listProfiles(kit.WithTransport(r.Context(), "http"), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- detect ---

type httpDetectRequest struct {
	Filename string `json:"filename"`
}

func (h *handler) handleDetect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	var req httpDetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.detectProvider(kit.WithTransport(r.Context(), "http"), &detectReq{Filename: req.Filename})
	switch {
	case errors.Is(err, profile.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- ingest ---

func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing filename query parameter")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	resp, err := h.ingestFile(kit.WithTransport(r.Context(), "http"), &ingestReq{Name: name, Body: r.Body})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := resp.(*pipeline.FileResult)
	writeJSON(w, ingestStatus(res.Err), res)
}

func ingestStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, profile.ErrUnknownProvider),
		errors.Is(err, sheet.ErrUnsupportedFormat),
		errors.Is(err, sheet.ErrMissingRequiredColumn):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// --- health ---

type healthResponse struct {
	Status   string `json:"status"`
	Profiles int    `json:"profiles"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Profiles: h.reg.Count()})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
