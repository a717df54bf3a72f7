// Package chi serves the partsearch HTTP API on a go-chi router.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/partsearch/internal/domain"
	"github.com/kailas-cloud/partsearch/internal/domain/search/request"
	"github.com/kailas-cloud/partsearch/internal/domain/search/result"
	domusage "github.com/kailas-cloud/partsearch/internal/domain/usage"
	"github.com/kailas-cloud/partsearch/internal/logger"
	healthuc "github.com/kailas-cloud/partsearch/internal/usecase/health"
)

// maxSearchBody bounds POST /search: one query image plus form overhead.
const maxSearchBody = request.MaxImageSize + 1<<20

// maxJSONBody bounds JSON bodies of summary and chat requests.
const maxJSONBody = 1 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	search        Searcher
	assistant     Assistant
	health        HealthReporter
	usage         UsageReporter
	images        ImageServer
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. images may be nil, which disables GET /images.
func NewServer(
	search Searcher,
	assistant Assistant,
	health HealthReporter,
	usage UsageReporter,
	images ImageServer,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:    search,
		assistant: assistant,
		health:    health,
		usage:     usage,
		images:    images,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidImage, http.StatusBadRequest, CodeInvalidImage),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeQuotaExceeded),
		sentinelHandler(domain.ErrProviderError, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chirouter.Router) {
	r.Post("/search", s.Search)
	r.Post("/summaries", s.Summarize)
	r.Post("/chat", s.Chat)
	r.Get("/usage", s.GetUsage)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	if s.images != nil {
		r.Get("/images/*", s.Image)
	}
}

// Search handles POST /search (multipart form or JSON).
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSearchBody)

	req, err := parseSearchRequest(r)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	outcome, err := s.search.Search(ctx, &req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]ResultItem, len(outcome.Results))
	for i := range outcome.Results {
		items[i] = resultToItem(&outcome.Results[i], s.imageURL(&outcome.Results[i]))
	}
	var warnings []WarningItem
	for _, warn := range outcome.Warnings {
		warnings = append(warnings, warningToItem(warn))
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{
		Items:    items,
		Caption:  outcome.Caption,
		Warnings: warnings,
	})
}

// Summarize handles POST /summaries.
func (s *Server) Summarize(w http.ResponseWriter, r *http.Request) {
	var item ResultItem
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res := resultFromItem(item)
	ctx, usage := domain.NewContextWithUsage(r.Context())
	summary, err := s.assistant.Summarize(ctx, &res)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, SummaryResponse{Summary: summary})
}

// Chat handles POST /chat, streaming the answer as server-sent events.
// Validation and provider errors before the first chunk get a JSON error;
// later failures end the stream with an "error" event.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	stream := newEventStream(w)
	_, err := s.assistant.Answer(
		ctx, resultsFromItems(req.Results), req.Question, historyFromTurns(req.History),
		func(chunk string) error { return stream.send("", chunk) },
	)
	if err != nil {
		if !stream.started {
			s.handleDomainError(w, err)
			return
		}
		logger.FromContext(ctx).Warn("chat stream aborted", zap.Error(err))
		_ = stream.send("error", safeDomainMessage(err))
		return
	}

	_ = stream.send("done", fmt.Sprintf(`{"tokens":%d}`, usage.TotalTokens()))
}

// GetUsage handles GET /usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	reports := s.usage.GetReport(r.Context(), period)
	items := make([]UsageItem, len(reports))
	for i := range reports {
		items[i] = usageToItem(&reports[i])
	}

	writeJSON(w, http.StatusOK, UsageResponse{Period: string(period), Providers: items})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// Image handles GET /images/*, serving a product diagram.
func (s *Server) Image(w http.ResponseWriter, r *http.Request) {
	f, err := s.images.Open(chirouter.URLParam(r, "*"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, CodeNotFound, "image not found")
			return
		}
		s.handleDomainError(w, err)
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, CodeNotFound, "image not found")
		return
	}
	content, ok := f.(io.ReadSeeker)
	if !ok {
		s.handleDomainError(w, fmt.Errorf("image %s is not seekable", info.Name()))
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
}

// imageURL maps a resolved diagram path to its GET /images URL.
func (s *Server) imageURL(r *result.Result) string {
	if s.images == nil || !r.HasImage() {
		return ""
	}
	rel, err := filepath.Rel(s.images.Root(), r.ImagePath())
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	u := url.URL{Path: "/images/" + filepath.ToSlash(rel)}
	return u.EscapedPath()
}

func parseSearchRequest(r *http.Request) (request.Request, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return request.Request{}, fmt.Errorf("%w: malformed content type", domain.ErrInvalidRequest)
	}

	switch mediaType {
	case "multipart/form-data":
		return parseMultipartSearch(r)
	case "application/json", "":
		var body SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return request.Request{}, fmt.Errorf("%w: invalid request body: %w", domain.ErrInvalidRequest, err)
		}
		return request.New(body.Query, domain.Image{})
	default:
		return request.Request{}, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidRequest, mediaType)
	}
}

func parseMultipartSearch(r *http.Request) (request.Request, error) {
	if err := r.ParseMultipartForm(maxSearchBody); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return request.Request{}, fmt.Errorf("%w: image too large (max %d bytes)",
				domain.ErrInvalidImage, request.MaxImageSize)
		}
		return request.Request{}, fmt.Errorf("%w: invalid multipart form: %w", domain.ErrInvalidRequest, err)
	}

	query := r.FormValue("query")
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return request.New(query, domain.Image{})
	}
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: read image: %w", domain.ErrInvalidImage, err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, request.MaxImageSize+1))
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: read image: %w", domain.ErrInvalidImage, err)
	}
	return request.New(query, domain.Image{Data: data, ContentType: header.Header.Get("Content-Type")})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Used() {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-facing message without exposing internals.
// Validation errors describe the client's own input and pass through whole.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidImage) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func safeWarningMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return safeDomainMessage(err)
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// eventStream writes text/event-stream frames, sending headers on first use.
type eventStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (e *eventStream) send(event, data string) error {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}

	var b strings.Builder
	if event != "" {
		b.WriteString("event: " + event + "\n")
	}
	for line := range strings.SplitSeq(data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")

	if _, err := io.WriteString(e.w, b.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := e.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
