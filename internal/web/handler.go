package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"binday/internal/cache"
	"binday/internal/model"
	"binday/internal/scraper"
)

//go:embed templates/index.html
var templates embed.FS

const maxWindowDays = 60

// ErrRateLimited is returned when a refresh is refused to protect the
// council API.
var ErrRateLimited = errors.New("upstream refresh rate limited")

var indexTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"slug": func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
	},
}).ParseFS(templates, "templates/index.html"))

// Archive reads the last ingested schedule of a property.
type Archive interface {
	GetCollections(ctx context.Context, uprn string) ([]model.Collection, error)
}

// Options configures a Handler.
type Options struct {
	Window  time.Duration
	Timeout time.Duration
	// Limiter bounds upstream refreshes on cache misses.
	Limiter *rate.Limiter
	Logger  *slog.Logger
	Now     func() time.Time

	// Archive, when set, serves the schedule for UPRN if a refresh fails.
	Archive Archive
	UPRN    string
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	scraper scraper.Scraper
	cache   *cache.Cache
	opts    Options
	logger  *slog.Logger
}

type indexData struct {
	Days       []model.Day
	WindowDays int
	FetchedAt  time.Time
	Archived   bool
}

// New creates a new Handler with the given scraper and cache.
func New(s scraper.Scraper, c *cache.Cache, opts Options) *Handler {
	if opts.Window == 0 {
		opts.Window = 7 * 24 * time.Hour
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Minute), 2)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		scraper: s,
		cache:   c,
		opts:    opts,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.noCache(h.handleIndex))
	mux.HandleFunc("/collections", h.noCache(h.handleCollections))
	mux.HandleFunc("/health", h.handleHealth)
}

func (h *Handler) noCache(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next(w, r)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	window, ok := h.window(w, r)
	if !ok {
		return
	}

	entry, err := h.collections(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	upcoming := model.Within(entry.Collections, h.opts.Now(), window)
	data := indexData{
		Days:       model.GroupByDay(upcoming),
		WindowDays: int(window / (24 * time.Hour)),
		FetchedAt:  entry.FetchedAt,
		Archived:   entry.Archived,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error("rendering index", "err", err)
	}
}

func (h *Handler) handleCollections(w http.ResponseWriter, r *http.Request) {
	window, ok := h.window(w, r)
	if !ok {
		return
	}

	entry, err := h.collections(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if entry.Archived {
		w.Header().Set("X-Collections-Source", "archive")
	}
	json.NewEncoder(w).Encode(model.Within(entry.Collections, h.opts.Now(), window))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// window reads the optional ?days= override.
func (h *Handler) window(w http.ResponseWriter, r *http.Request) (time.Duration, bool) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return h.opts.Window, true
	}
	days, err := strconv.Atoi(v)
	if err != nil || days < 1 || days > maxWindowDays {
		http.Error(w, "days must be between 1 and "+strconv.Itoa(maxWindowDays), http.StatusBadRequest)
		return 0, false
	}
	return time.Duration(days) * 24 * time.Hour, true
}

// collections returns the cached schedule, refreshing it from upstream on a
// miss. A failed refresh falls back to the archive when one is configured.
func (h *Handler) collections(ctx context.Context) (*cache.Entry, error) {
	key := h.scraper.Name()
	if entry, ok := h.cache.Get(key); ok {
		return entry, nil
	}

	entry, err := h.refresh(ctx, key)
	if err == nil || h.opts.Archive == nil {
		return entry, err
	}

	archived, archiveErr := h.opts.Archive.GetCollections(ctx, h.opts.UPRN)
	if archiveErr != nil {
		h.logger.Warn("reading archived collections", "uprn", h.opts.UPRN, "err", archiveErr)
		return nil, err
	}
	h.logger.Warn("serving archived collections", "uprn", h.opts.UPRN, "count", len(archived), "err", err)

	return &cache.Entry{Collections: archived, FetchedAt: h.opts.Now(), Archived: true}, nil
}

func (h *Handler) refresh(ctx context.Context, key string) (*cache.Entry, error) {
	if !h.opts.Limiter.Allow() {
		return nil, ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	result, err := h.scraper.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if err := h.cache.Set(key, result); err != nil {
		h.logger.Warn("caching collections", "key", key, "err", err)
	}
	h.logger.Info("collections refreshed", "source", key, "count", len(result))

	return &cache.Entry{Collections: result, FetchedAt: h.opts.Now()}, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, scraper.ErrMalformedPayload):
		h.logger.Error("parsing collection data", "err", err)
		http.Error(w, "unexpected response from council", http.StatusBadGateway)
	default:
		h.logger.Error("fetching collection data", "err", err)
		http.Error(w, "failed to retrieve bin collection data", http.StatusBadGateway)
	}
}
