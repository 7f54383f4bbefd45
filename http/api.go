package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"finedu/auth"
	"finedu/backend"
	"finedu/config"
	"finedu/content"
	"finedu/httpx"
	"finedu/market"
	"finedu/market/ratelimit"
	"finedu/monitoring"
	"finedu/notify"
	"finedu/store"
)

// Backends 每种资源的数据服务后端
type Backends struct {
	Articles store.Backend[content.Article, content.ArticleInput]
	News     store.Backend[content.News, content.NewsInput]
	Users    store.Backend[content.User, content.UserInput]
	Updates  store.Backend[content.Update, content.UpdateInput]
}

// NewBackends 为每种资源创建受Guard保护的REST后端。endpoint每次调用时读取。
func NewBackends(guard *config.Guard, client *httpx.Client) Backends {
	ep := guard.Endpoint
	return Backends{
		Articles: backend.Guard[content.Article, content.ArticleInput](guard,
			backend.NewREST[content.Article, content.ArticleInput](content.KindArticles, ep, client)),
		News: backend.Guard[content.News, content.NewsInput](guard,
			backend.NewREST[content.News, content.NewsInput](content.KindNews, ep, client)),
		Users: backend.Guard[content.User, content.UserInput](guard,
			backend.NewREST[content.User, content.UserInput](content.KindUsers, ep, client)),
		Updates: backend.Guard[content.Update, content.UpdateInput](guard,
			backend.NewREST[content.Update, content.UpdateInput](content.KindUpdates, ep, client)),
	}
}

// API 面向前端的路由：内容、行情、登录与WebSocket
type API struct {
	Guard    *config.Guard
	Registry *store.Registry
	Backends Backends
	Relay    *notify.Relay
	Hub      *notify.Hub
	Feed     *market.Feed
	Poller   *market.Poller
	Sessions *auth.Sessions
	Metrics  *monitoring.MetricsCollector
	Log      *zap.Logger

	// MaxSymbols caps on-demand quote lookups. QuoteTimeout bounds them;
	// symbols not reached in time are answered with synthetic quotes.
	MaxSymbols   int
	QuoteTimeout time.Duration
}

func (a *API) Register(mux *http.ServeMux) {
	if a.Log == nil {
		a.Log = zap.NewNop()
	}
	log := a.Log
	requireAuth := AuthMiddleware(a.Sessions)

	registerKind(mux, requireAuth, &resourceAPI[content.Article, content.ArticleInput]{
		kind: content.KindArticles, registry: a.Registry, backend: a.Backends.Articles,
		fallback: content.FallbackArticles, notify: a.Relay.Publish, log: log, views: true,
	})
	registerKind(mux, requireAuth, &resourceAPI[content.News, content.NewsInput]{
		kind: content.KindNews, registry: a.Registry, backend: a.Backends.News,
		fallback: content.FallbackNews, notify: a.Relay.Publish, log: log, views: true,
	})
	registerKind(mux, requireAuth, &resourceAPI[content.User, content.UserInput]{
		kind: content.KindUsers, registry: a.Registry, backend: a.Backends.Users,
		fallback: content.FallbackUsers, notify: a.Relay.Publish, log: log,
	})
	registerKind(mux, requireAuth, &resourceAPI[content.Update, content.UpdateInput]{
		kind: content.KindUpdates, registry: a.Registry, backend: a.Backends.Updates,
		fallback: content.FallbackUpdates, notify: a.Relay.Publish, log: log,
	})

	mux.HandleFunc("GET /api/status", a.handleStatus)
	if a.Metrics != nil {
		mux.HandleFunc("GET /api/metrics", a.handleMetrics)
	}
	mux.HandleFunc("GET /api/quotes", a.handleQuotes)
	mux.Handle("POST /api/quotes/refresh", requireAuth(http.HandlerFunc(a.handleQuotesRefresh)))

	// 登录接口限流：每分钟10次
	loginLimit := RateLimitMiddleware(ratelimit.PerMinute(10, 5, nil))
	mux.Handle("POST /api/auth/login", loginLimit(http.HandlerFunc(a.handleLogin)))
	mux.Handle("POST /api/auth/logout", requireAuth(http.HandlerFunc(a.handleLogout)))

	if a.Hub != nil {
		mux.Handle("GET /api/ws", a.Hub)
	}
}

type statusResponse struct {
	BackendConfigured bool      `json:"backend_configured"`
	MountedStores     int       `json:"mounted_stores"`
	Clients           int       `json:"ws_clients"`
	Symbols           []string  `json:"symbols"`
	QuotesAsOf        time.Time `json:"quotes_as_of,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{BackendConfigured: a.Guard.IsConfigured()}
	if a.Registry != nil {
		resp.MountedStores = a.Registry.Len()
	}
	if a.Hub != nil {
		resp.Clients = a.Hub.Clients()
	}
	if a.Poller != nil {
		resp.Symbols = a.Poller.Symbols()
		_, resp.QuotesAsOf = a.Poller.Latest()
	}
	writeJSON(w, http.StatusOK, resp)
}

type metricsResponse struct {
	Metrics []monitoring.Metric    `json:"metrics"`
	System  map[string]interface{} `json:"system"`
}

// handleMetrics 默认输出Prometheus文本格式，format=json时输出JSON
func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, metricsResponse{
			Metrics: a.Metrics.GetAllMetrics(),
			System:  a.Metrics.GetSystemStats(),
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	io.WriteString(w, a.Metrics.ExportPrometheus())
}

type quotesResponse struct {
	Quotes []market.Quote `json:"quotes"`
	AsOf   time.Time      `json:"as_of"`
}

// handleQuotes 返回最近一批行情；带symbols参数时按需查询
func (a *API) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols := parseSymbols(raw)
		limit := a.MaxSymbols
		if limit <= 0 {
			limit = 10
		}
		if len(symbols) == 0 || len(symbols) > limit {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "symbols must list between 1 and " + strconv.Itoa(limit) + " tickers"})
			return
		}
		timeout := a.QuoteTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		quotes := a.Feed.FetchQuotes(ctx, symbols)
		writeJSON(w, http.StatusOK, quotesResponse{Quotes: quotes, AsOf: time.Now().UTC()})
		return
	}

	var resp quotesResponse
	if a.Poller != nil {
		resp.Quotes, resp.AsOf = a.Poller.Latest()
	}
	if len(resp.Quotes) == 0 && a.Poller != nil {
		// 首批尚未完成时返回合成行情，保证结构完整
		v := a.Feed.Validator()
		for _, s := range a.Poller.Symbols() {
			resp.Quotes = append(resp.Quotes, v.Synthetic(s))
		}
		resp.AsOf = time.Now().UTC()
	}
	if resp.Quotes == nil {
		resp.Quotes = []market.Quote{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleQuotesRefresh(w http.ResponseWriter, r *http.Request) {
	if a.Poller != nil {
		a.Poller.Refresh()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

func parseSymbols(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeError(w, err)
		return
	}
	sess, err := a.Sessions.Login(r.Context(), creds)
	if err != nil {
		a.Log.Warn("login rejected", zap.String("username", creds.Username))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := GetSession(r.Context()); ok {
		a.Sessions.Logout(sess.Token)
	}
	w.WriteHeader(http.StatusNoContent)
}
