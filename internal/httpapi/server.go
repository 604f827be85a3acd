package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"finscope/internal/domain"
	"finscope/internal/menu"
	"finscope/internal/prefs"
	"finscope/internal/provider"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

const dateLayout = "2006-01-02"

// Options configures a Server.
type Options struct {
	CORSOrigin string
	Logger     *slog.Logger
}

// Server serves the finscope HTTP API.
type Server struct {
	provider   provider.DataProvider
	prefs      *prefs.Store
	menu       []menu.Entry
	corsOrigin string
	hub        *Hub
	log        *slog.Logger

	subID  int
	events <-chan prefs.Event
}

// New creates a Server over p. ps may be nil, in which case the preference
// routes answer 503.
func New(p provider.DataProvider, ps *prefs.Store, entries []menu.Entry, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "httpapi")
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	s := &Server{
		provider:   p,
		prefs:      ps,
		menu:       entries,
		corsOrigin: opts.CORSOrigin,
		hub:        NewHub(log),
		log:        log,
	}
	if ps != nil {
		s.subID, s.events = ps.Subscribe(8)
		<-s.events // initial snapshot; each connection gets its own
	}
	return s
}

// Run drives the websocket hub and relays preference changes to it until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)
	if s.prefs == nil {
		<-ctx.Done()
		return
	}
	defer s.prefs.Unsubscribe(s.subID)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			msg, err := json.Marshal(EventMessage{Type: "preferences", Data: ev})
			if err != nil {
				s.log.Error("encoding event", "error", err)
				continue
			}
			s.hub.Broadcast(ctx, msg)
		}
	}
}

func (s *Server) snapshotMessage() ([]byte, error) {
	if s.prefs == nil {
		return nil, errors.New("no preferences store")
	}
	p := s.prefs.Get()
	return json.Marshal(EventMessage{
		Type: "preferences",
		Data: prefs.Event{Type: "snapshot", Prefs: p, Resolved: s.prefs.Resolved()},
	})
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/menu", s.handleMenu)
	mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.handlePutPreferences)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	mux.HandleFunc("GET /api/securities", s.handleListSecurities)
	mux.HandleFunc("GET /api/securities/search", s.handleSearchSecurities)
	mux.HandleFunc("GET /api/securities/{ticker}", s.handleGetSecurity)
	mux.HandleFunc("GET /api/securities/{ticker}/price", s.handlePrice)
	mux.HandleFunc("GET /api/securities/{ticker}/ftd", s.handleFTD)
	mux.HandleFunc("GET /api/securities/{ticker}/indicators", s.handleIndicators)
	mux.HandleFunc("GET /api/securities/{ticker}/swap-cycles", s.handleSwapCycles)
	mux.HandleFunc("GET /api/securities/{ticker}/volatility-cycles", s.handleVolatilityCycles)
	mux.HandleFunc("GET /api/securities/{ticker}/correlations", s.handleCorrelations)
	mux.HandleFunc("GET /api/securities/{ticker}/news", s.handleNews)

	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)
	mux.HandleFunc("PUT /api/users/{id}", s.handleUpdateUser)
	mux.HandleFunc("DELETE /api/users/{id}", s.handleDeleteUser)
	mux.HandleFunc("GET /api/users/{id}/watchlists", s.handleListWatchlists)
	mux.HandleFunc("POST /api/users/{id}/watchlists", s.handleCreateWatchlist)
	mux.HandleFunc("POST /api/users/{id}/watchlists/{wid}/items", s.handleAddWatchlistItem)
}

// Handler returns an http.Handler with request-ID and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.requestIDMiddleware(corsMiddleware(s.corsOrigin, mux))
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

// RequestID returns the request ID stored in ctx by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		s.log.Debug("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(Envelope[T]{Success: true, Data: data}); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope[any]{Success: false, Error: msg})
}

// fail writes err with the status its sentinel maps to. Internal errors are
// logged and reported generically.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "request_id", RequestID(r.Context()), "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeError(w, status, msg)
}

// respond writes v on success or the mapped error otherwise.
func respond[T any](s *Server, w http.ResponseWriter, r *http.Request, status int, v T, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrInvalidInput)
}

func parseDate(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, invalid("invalid %s date %q, want YYYY-MM-DD", key, v)
	}
	return t, nil
}

func parseInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, invalid("invalid %s %q", key, v)
	}
	return n, nil
}

func pathID(r *http.Request, key string) (int64, error) {
	v := r.PathValue(key)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid %s %q", key, v)
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid("invalid request body: %v", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Meta
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok"})
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	entries := s.menu
	if entries == nil {
		entries = []menu.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) preferences() PreferencesResponse {
	return PreferencesResponse{Preferences: s.prefs.Get(), Resolved: s.prefs.Resolved()}
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preferences not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.preferences())
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if s.prefs == nil {
		writeError(w, http.StatusServiceUnavailable, "preferences not configured")
		return
	}
	var upd PreferencesUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	next := s.prefs.Get()
	if upd.Theme != nil {
		t, err := prefs.ParseTheme(*upd.Theme)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.Theme = t
	}
	if upd.SidebarCollapsed != nil {
		next.SidebarCollapsed = *upd.SidebarCollapsed
	}
	if err := s.prefs.Replace(next); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.preferences())
}

// ---------------------------------------------------------------------------
// Securities
// ---------------------------------------------------------------------------

func ticker(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
}

func (s *Server) handleListSecurities(w http.ResponseWriter, r *http.Request) {
	secs, err := s.provider.ListSecurities(r.Context())
	if secs == nil {
		secs = []domain.Security{}
	}
	respond(s, w, r, http.StatusOK, secs, err)
}

func (s *Server) handleSearchSecurities(w http.ResponseWriter, r *http.Request) {
	secs, err := s.provider.SearchSecurities(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
	if secs == nil {
		secs = []domain.Security{}
	}
	respond(s, w, r, http.StatusOK, secs, err)
}

func (s *Server) handleGetSecurity(w http.ResponseWriter, r *http.Request) {
	sec, err := s.provider.GetSecurity(r.Context(), ticker(r))
	respond(s, w, r, http.StatusOK, sec, err)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r, "from")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseDate(r, "to")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts := domain.PriceOptions{From: from, To: to, Timespan: domain.Timespan(r.URL.Query().Get("timespan"))}
	if opts.Timespan != "" && !opts.Timespan.Valid() {
		s.fail(w, r, invalid("invalid timespan %q", opts.Timespan))
		return
	}
	series, err := s.provider.GetPriceData(r.Context(), ticker(r), opts)
	respond(s, w, r, http.StatusOK, series, err)
}

func (s *Server) handleFTD(w http.ResponseWriter, r *http.Request) {
	year, err := parseInt(r, "year")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	half, err := parseInt(r, "half")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	series, err := s.provider.GetFTDData(r.Context(), ticker(r), domain.FTDOptions{Year: year, Half: half})
	respond(s, w, r, http.StatusOK, series, err)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	from, err := parseDate(r, "from")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseDate(r, "to")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	set, err := s.provider.GetTechnicalIndicators(r.Context(), ticker(r), domain.RangeOptions{From: from, To: to})
	respond(s, w, r, http.StatusOK, set, err)
}

func (s *Server) handleSwapCycles(w http.ResponseWriter, r *http.Request) {
	days, err := parseInt(r, "lookback")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.provider.GetSwapCycles(r.Context(), ticker(r), domain.LookbackOptions{Days: days})
	respond(s, w, r, http.StatusOK, rep, err)
}

func (s *Server) handleVolatilityCycles(w http.ResponseWriter, r *http.Request) {
	days, err := parseInt(r, "lookback")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.provider.GetVolatilityCycles(r.Context(), ticker(r), domain.LookbackOptions{Days: days})
	respond(s, w, r, http.StatusOK, rep, err)
}

func (s *Server) handleCorrelations(w http.ResponseWriter, r *http.Request) {
	days, err := parseInt(r, "lookback")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var comparison []string
	for _, t := range strings.Split(r.URL.Query().Get("comparison"), ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			comparison = append(comparison, t)
		}
	}
	rep, err := s.provider.GetMarketCorrelations(r.Context(), ticker(r), domain.CorrelationOptions{Comparison: comparison, Days: days})
	respond(s, w, r, http.StatusOK, rep, err)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	days, err := parseInt(r, "days")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	arts, err := s.provider.GetNews(r.Context(), ticker(r), domain.NewsOptions{Days: days})
	if arts == nil {
		arts = []domain.Article{}
	}
	respond(s, w, r, http.StatusOK, arts, err)
}

// ---------------------------------------------------------------------------
// Users and watchlists
// ---------------------------------------------------------------------------

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.provider.ListUsers(r.Context())
	if users == nil {
		users = []domain.User{}
	}
	respond(s, w, r, http.StatusOK, users, err)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in domain.UserInput
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.provider.CreateUser(r.Context(), in)
	respond(s, w, r, http.StatusCreated, u, err)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.provider.GetUser(r.Context(), id)
	respond(s, w, r, http.StatusOK, u, err)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var upd domain.UserUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.provider.UpdateUser(r.Context(), id, upd)
	respond(s, w, r, http.StatusOK, u, err)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.provider.DeleteUser(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON[any](w, http.StatusOK, nil)
}

func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	lists, err := s.provider.ListWatchlists(r.Context(), id)
	if lists == nil {
		lists = []domain.Watchlist{}
	}
	respond(s, w, r, http.StatusOK, lists, err)
}

func (s *Server) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in domain.WatchlistInput
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	wl, err := s.provider.CreateWatchlist(r.Context(), id, in)
	respond(s, w, r, http.StatusCreated, wl, err)
}

func (s *Server) handleAddWatchlistItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	wid, err := pathID(r, "wid")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in domain.WatchlistItemInput
	if err := decodeBody(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	it, err := s.provider.AddWatchlistItem(r.Context(), id, wid, in)
	respond(s, w, r, http.StatusCreated, it, err)
}
