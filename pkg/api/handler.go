// Package api serves the pipeline over HTTP (/v1 JSON routes, CSV/Parquet
// downloads, Prometheus /metrics) and as MCP tools.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/hazyhaar/padron/pkg/export"
	"github.com/hazyhaar/padron/pkg/importer"
	"github.com/hazyhaar/padron/pkg/kit"
	"github.com/hazyhaar/padron/pkg/metrics"
	"github.com/hazyhaar/padron/pkg/pipeline"
	"github.com/hazyhaar/padron/pkg/province"
	"github.com/hazyhaar/padron/pkg/table"
)

var errBadRequest = errors.New("bad request")

// Server exposes one pipeline. Catalog and metrics are optional.
type Server struct {
	pipeline *pipeline.Pipeline
	catalog  *importer.Catalog
	metrics  *metrics.Metrics
	logger   *slog.Logger
	ep       *endpoints
}

// NewServer builds the shared endpoints once for both transports.
func NewServer(p *pipeline.Pipeline, cat *importer.Catalog, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{pipeline: p, catalog: cat, metrics: m, logger: logger}
	s.ep = newEndpoints(s)
	return s
}

// Router returns an http.Handler with all routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	h := &handler{ep: s.ep, pipeline: s.pipeline, logger: s.logger}

	mux.HandleFunc("GET /v1/health", h.handleHealth)
	mux.HandleFunc("GET /v1/provinces", h.simple(s.ep.provinces))
	mux.HandleFunc("GET /v1/normalize/{label...}", h.handleNormalize)
	mux.HandleFunc("GET /v1/dates/{label}", h.handleDate)
	mux.HandleFunc("GET /v1/datasets", h.simple(s.ep.datasets))
	mux.HandleFunc("GET /v1/sources", h.simple(s.ep.sources))
	mux.HandleFunc("GET /v1/provincial/{id}", h.handleProvincial)
	mux.HandleFunc("GET /v1/measures/{measure}/national", h.handleNational)
	mux.HandleFunc("GET /v1/measures/{measure}/map", h.handleMap)
	mux.HandleFunc("GET /v1/categories/{id}", h.handleCategories)
	mux.HandleFunc("GET /v1/yearly", h.tabular(s.ep.yearly))
	mux.HandleFunc("GET /v1/summaries", h.tabular(s.ep.summaries))
	mux.HandleFunc("GET /v1/heatmap", h.simple(s.ep.heatmap))
	mux.HandleFunc("GET /v1/pyramids/{id}", h.handlePyramid)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return requestID(s.instrument(mux))
}

type handler struct {
	ep       *endpoints
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// --- health ---

type healthResponse struct {
	Status    string `json:"status"`
	Datasets  int    `json:"datasets"`
	Provinces int    `json:"provinces"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Datasets:  len(h.pipeline.Manifest().Datasets),
		Provinces: h.pipeline.Registry().Len(),
	})
}

// --- normalize / dates ---

func (h *handler) handleNormalize(w http.ResponseWriter, r *http.Request) {
	req := &normalizeReq{Label: r.PathValue("label")}
	if v := r.URL.Query().Get("artifact_prefix"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "artifact_prefix must be an integer")
			return
		}
		req.ArtifactPrefix = n
	}
	h.serve(w, r, h.ep.normalize, req)
}

func (h *handler) handleDate(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.ep.parseDate, &dateReq{Label: r.PathValue("label")})
}

// --- datasets ---

func (h *handler) handleProvincial(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ep.provincial(r.Context(), &datasetReq{ID: r.PathValue("id")})
	if err != nil {
		writeErr(w, err)
		return
	}
	t := resp.(*table.ProvincialTable)
	if f, ok := format(w, r); ok && f != "" {
		h.writeTable(w, export.Provincial(t), f)
	} else if ok {
		writeJSON(w, http.StatusOK, t)
	}
}

func (h *handler) handleNational(w http.ResponseWriter, r *http.Request) {
	g, err := table.ParseGender(r.URL.Query().Get("gender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serve(w, r, h.ep.national, &nationalReq{Measure: r.PathValue("measure"), Gender: g})
}

func (h *handler) handleMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	g, err := table.ParseGender(q.Get("gender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serve(w, r, h.ep.provMap, &mapReq{Measure: r.PathValue("measure"), Gender: g, Column: q.Get("column")})
}

func (h *handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.ep.categories, &datasetReq{ID: r.PathValue("id")})
}

func (h *handler) handlePyramid(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ep.pyramid(r.Context(), &datasetReq{ID: r.PathValue("id")})
	if err != nil {
		writeErr(w, err)
		return
	}
	p := resp.(*pipeline.Pyramid)
	if f, ok := format(w, r); ok && f != "" {
		h.writeTable(w, export.Bands(p.Bands), f)
	} else if ok {
		writeJSON(w, http.StatusOK, p)
	}
}

// simple serves an endpoint that takes no request.
func (h *handler) simple(ep kit.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, ep, nil)
	}
}

// tabular serves an endpoint returning an export.Table as JSON or, with
// ?format=, as a file download.
func (h *handler) tabular(ep kit.Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := format(w, r)
		if !ok {
			return
		}
		resp, err := ep(r.Context(), nil)
		if err != nil {
			writeErr(w, err)
			return
		}
		if f == "" {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		h.writeTable(w, resp.(export.Table), f)
	}
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	resp, err := ep(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- helpers ---

// format reads ?format=. An empty result means JSON; ok is false when an
// error response has been written.
func format(w http.ResponseWriter, r *http.Request) (export.Format, bool) {
	v := r.URL.Query().Get("format")
	if v == "" || v == "json" {
		return "", true
	}
	f, err := export.ParseFormat(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return f, true
}

var contentTypes = map[export.Format]string{
	export.FormatCSV:     "text/csv; charset=utf-8",
	export.FormatParquet: "application/vnd.apache.parquet",
}

// writeTable streams t as a file download. The status is sent before the
// body, so an encoding failure can only be logged.
func (h *handler) writeTable(w http.ResponseWriter, t export.Table, f export.Format) {
	w.Header().Set("Content-Type", contentTypes[f])
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, t.Name, f))
	w.WriteHeader(http.StatusOK)
	if err := t.Write(w, f); err != nil {
		h.logger.Error("table write failed", "table", t.Name, "format", string(f), "rows", t.Len(), "error", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type errorResponse struct {
	Error      string       `json:"error"`
	Status     string       `json:"status,omitempty"`
	Suggestion province.Key `json:"suggestion,omitempty"`
}

// writeErr maps pipeline and domain errors to HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	code := http.StatusInternalServerError

	var ne *province.NormalizationError
	switch {
	case errors.As(err, &ne) && !pipeline.IsHard(err):
		code = http.StatusUnprocessableEntity
		resp.Suggestion = ne.Suggestion
	case errors.Is(err, errBadRequest), errors.Is(err, pipeline.ErrWrongKind):
		code = http.StatusBadRequest
	case errors.Is(err, errBadDate):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrUnknownDataset), errors.Is(err, pipeline.ErrUnknownMeasure),
		errors.Is(err, pipeline.ErrNoVariant), errors.Is(err, pipeline.ErrNoCategory),
		errors.Is(err, pipeline.ErrNoUnified), errors.Is(err, table.ErrColumnNotFound),
		errors.Is(err, errNoCatalog):
		code = http.StatusNotFound
	case pipeline.IsHard(err):
		resp.Status = pipeline.Classify(err)
		if resp.Status != importer.StatusIO {
			code = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, code, resp)
}

// requestID propagates or assigns the X-Request-ID header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(kit.WithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts responses per matched route pattern.
func (s *Server) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		mux.ServeHTTP(rec, r)
		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.ObserveRequest(pattern, rec.code)
	})
}
