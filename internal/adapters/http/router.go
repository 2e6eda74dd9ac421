package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creditlens/creditlens/internal/core/domain"
	"github.com/creditlens/creditlens/internal/core/ports"
	"github.com/creditlens/creditlens/internal/core/usecase"
)

// AnalysisDirectory is the read side the HTTP surface needs beyond the
// pipeline itself.
type AnalysisDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.Analysis, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Analysis, error)
}

type RouterConfig struct {
	MaxUploadBytes   int64
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

func (c RouterConfig) normalize() RouterConfig {
	out := c
	if out.MaxUploadBytes <= 0 {
		out.MaxUploadBytes = 15 << 20
	}
	if out.BackpressureWait <= 0 {
		out.BackpressureWait = 2 * time.Second
	}
	return out
}

type Router struct {
	analysis  ports.ReportAnalysisService
	chat      ports.ReportChatService
	enqueuer  *usecase.AnalysisEnqueuer
	directory AnalysisDirectory
	metrics   http.Handler
	cfg       RouterConfig
}

func NewRouter(
	analysis ports.ReportAnalysisService,
	chat ports.ReportChatService,
	enqueuer *usecase.AnalysisEnqueuer,
	directory AnalysisDirectory,
	metricsHandler http.Handler,
	cfg RouterConfig,
) *Router {
	return &Router{
		analysis:  analysis,
		chat:      chat,
		enqueuer:  enqueuer,
		directory: directory,
		metrics:   metricsHandler,
		cfg:       cfg.normalize(),
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/analyses", rt.handleAnalyses)
	api.HandleFunc("/v1/analyses/async", rt.enqueueAnalysis)
	api.HandleFunc("/v1/analyses/", rt.handleAnalysisSubtree)

	var protected http.Handler = identityMiddleware(api)
	protected = rateLimitMiddleware(protected, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	protected = backpressureMiddleware(protected, rt.cfg.MaxInFlight, rt.cfg.BackpressureWait)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}
	mux.Handle("/v1/", protected)

	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnalyses serves POST (run the pipeline synchronously) and GET
// (list the caller's analyses).
func (rt *Router) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.runAnalysis(w, r)
	case http.MethodGet:
		rt.listAnalyses(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) runAnalysis(w http.ResponseWriter, r *http.Request) {
	req, _, ok := rt.parseAnalysisRequest(w, r)
	if !ok {
		return
	}

	outcome, err := rt.analysis.Analyze(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (rt *Router) enqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, filename, ok := rt.parseAnalysisRequest(w, r)
	if !ok {
		return
	}

	record, err := rt.enqueuer.Enqueue(r.Context(), req, filename)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"analysis_id": record.ID,
		"status":      string(record.Status),
	})
}

func (rt *Router) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	analyses, err := rt.directory.ListByUser(r.Context(), userIDFromContext(r.Context()), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if analyses == nil {
		analyses = []domain.Analysis{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": analyses})
}

// handleAnalysisSubtree dispatches /v1/analyses/{id} and
// /v1/analyses/{id}/chat.
func (rt *Router) handleAnalysisSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/analyses/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		rt.getAnalysis(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "chat":
		rt.handleChat(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	analysis, err := rt.directory.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if analysis.UserID != userIDFromContext(r.Context()) {
		// Do not reveal that the record exists.
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request, analysisID string) {
	userID := userIDFromContext(r.Context())

	switch r.Method {
	case http.MethodPost:
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		reply, err := rt.chat.Respond(r.Context(), domain.ChatRequest{
			AnalysisID: analysisID,
			UserID:     userID,
			Message:    req.Message,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reply)

	case http.MethodGet:
		history, err := rt.chat.History(r.Context(), userID, analysisID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if history == nil {
			history = []domain.ChatMessage{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": history})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// parseAnalysisRequest accepts either a multipart upload (field "file")
// or a JSON body with pasted report text. On failure it writes the
// response itself and returns ok=false.
func (rt *Router) parseAnalysisRequest(w http.ResponseWriter, r *http.Request) (domain.AnalysisRequest, string, bool) {
	req := domain.AnalysisRequest{UserID: userIDFromContext(r.Context())}

	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+1<<20)

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		if err := r.ParseMultipartForm(rt.cfg.MaxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return req, "", false
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
			return req, "", false
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read upload")
			return req, "", false
		}

		req.MediaType = resolveMediaType(header.Header.Get("Content-Type"), header.Filename)
		req.Data = data
		req.CacheKey = r.FormValue("cache_key")
		if req.MediaType.IsText() {
			req.Text = string(data)
			req.Data = nil
		}
		return req, header.Filename, true
	}

	var body struct {
		Text     string `json:"text"`
		CacheKey string `json:"cache_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return req, "", false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, "", false
	}
	req.MediaType = domain.MediaTypeText
	req.Text = body.Text
	req.CacheKey = body.CacheKey
	return req, "", true
}

func resolveMediaType(contentType, filename string) domain.MediaType {
	parsed, _, _ := mime.ParseMediaType(contentType)
	switch parsed {
	case "application/pdf":
		return domain.MediaTypePDF
	case "image/png":
		return domain.MediaTypePNG
	case "image/jpeg", "image/jpg":
		return domain.MediaTypeJPEG
	case "image/webp":
		return domain.MediaTypeWebP
	case "text/plain":
		return domain.MediaTypeText
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return domain.MediaTypePDF
	case ".png":
		return domain.MediaTypePNG
	case ".jpg", ".jpeg":
		return domain.MediaTypeJPEG
	case ".webp":
		return domain.MediaTypeWebP
	case ".txt":
		return domain.MediaTypeText
	}
	return domain.MediaType(parsed)
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, mapErrorToHTTPStatus(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
