package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/denisok6893-rgb/estatebot/internal/bots"
	"github.com/denisok6893-rgb/estatebot/internal/compose"
	"github.com/denisok6893-rgb/estatebot/internal/domain"
	"github.com/denisok6893-rgb/estatebot/internal/matching"
	"github.com/denisok6893-rgb/estatebot/internal/metrics"
	"github.com/denisok6893-rgb/estatebot/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Resolver interface {
	ResolveMode(ctx context.Context, query string, mode domain.MatchMode) (domain.SearchResult, error)
}

type Projects interface {
	Ping(ctx context.Context) error
	GetProject(ctx context.Context, id int) (domain.Project, bool, error)
	BuildingsByArea(ctx context.Context, area string) ([]domain.Building, error)
}

type Options struct {
	RequestTimeout time.Duration
	// AllowedOrigins enables CORS for browser clients; empty means same-origin only.
	AllowedOrigins []string
}

type Server struct {
	resolver Resolver
	projects Projects
	composer *compose.Composer
	gateway  *bots.Gateway
	opts     Options
	log      *slog.Logger
}

// NewServer wires the API. gateway may be nil, which leaves the bot endpoint out.
func NewServer(resolver Resolver, projects Projects, composer *compose.Composer, gateway *bots.Gateway, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		resolver: resolver,
		projects: projects,
		composer: composer,
		gateway:  gateway,
		opts:     opts,
		log:      log.With(slog.String("component", "http")),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/projects/search", s.handleSearch)
	r.Get("/projects/{id}", s.handleProject)
	r.Get("/areas/{area}/report", s.handleAreaReport)

	if s.gateway != nil {
		bots.RegisterRoutes(r, s.gateway)
	}
	return r
}

// logRequests writes one access log line per request and counts it by route pattern.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(status))
		s.log.Info("http_request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.String("duration", time.Since(start).String()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Ping(r.Context()); err != nil {
		s.log.Error("health check", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type SearchItem struct {
	ProjectID int     `json:"project_id"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

type SearchResponse struct {
	Mode   domain.MatchMode `json:"mode"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Total  int              `json:"total"`
	Items  []SearchItem     `json:"items"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_query"})
		return
	}
	mode := domain.MatchMode(strings.ToLower(r.URL.Query().Get("mode")))
	switch mode {
	case "", domain.ModeExact, domain.ModeSimilarity:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_mode"})
		return
	}

	res, err := s.resolver.ResolveMode(r.Context(), q, mode)
	if err != nil {
		if errors.Is(err, matching.ErrEmptyQuery) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_query"})
			return
		}
		s.log.Error("search", slog.String("query", q), slog.String("error", err.Error()))
		status := http.StatusInternalServerError
		if errors.Is(err, matching.ErrLookupFailed) {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]string{"error": "lookup_failed"})
		return
	}

	limit, offset := parseLimitOffset(r, 50, 0)
	total := len(res.Candidates)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	items := make([]SearchItem, 0, end-offset)
	for _, c := range res.Candidates[offset:end] {
		items = append(items, SearchItem{
			ProjectID: c.Project.ProjectID,
			Name:      c.Project.NameIDBuildings,
			Score:     c.Score,
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Mode:   res.Mode,
		Limit:  limit,
		Offset: offset,
		Total:  total,
		Items:  items,
	})
}

type ProjectResponse struct {
	ProjectID int             `json:"project_id"`
	Text      string          `json:"text"`
	Fields    []compose.Field `json:"fields"`
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_id"})
		return
	}
	p, ok, err := s.projects.GetProject(r.Context(), id)
	if err != nil {
		s.log.Error("get project", slog.Int("project_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "lookup_failed"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	resp, err := s.composer.Compose(p)
	if err != nil {
		s.log.Error("compose project", slog.Int("project_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "malformed_record"})
		return
	}
	writeJSON(w, http.StatusOK, ProjectResponse{ProjectID: resp.ProjectID, Text: resp.Text, Fields: resp.Fields})
}

func (s *Server) handleAreaReport(w http.ResponseWriter, r *http.Request) {
	area := strings.TrimSpace(chi.URLParam(r, "area"))
	kind := report.Ready
	if v := r.URL.Query().Get("kind"); v != "" {
		k, err := report.ParseKind(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_kind"})
			return
		}
		kind = k
	}

	bs, err := s.projects.BuildingsByArea(r.Context(), area)
	if err != nil {
		s.log.Error("area buildings", slog.String("area", area), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "lookup_failed"})
		return
	}
	if len(bs) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "area_not_found"})
		return
	}
	ready, offPlan := report.SplitReady(bs)
	if kind == report.OffPlan {
		bs = offPlan
	} else {
		bs = ready
	}

	var buf bytes.Buffer
	if err := report.WriteAreaWorkbook(&buf, area, bs); err != nil {
		s.log.Error("area workbook", slog.String("area", area), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "report_failed"})
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.FileName(area, kind)}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func parseLimitOffset(r *http.Request, defLimit, defOffset int) (int, int) {
	q := r.URL.Query()

	limit := defLimit
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = defLimit
	}
	// safety cap
	if limit > 200 {
		limit = 200
	}

	offset := defOffset
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = defOffset
	}

	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
