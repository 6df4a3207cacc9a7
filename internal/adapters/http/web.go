// Package web serves the JSON API, the websocket endpoint and the static UI.
package web

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"chamber/internal/adapters/http/middleware"
	"chamber/internal/adapters/perf"
	"chamber/internal/adapters/realtime"
	"chamber/internal/application/reconciler"
)

// Deps holds everything the handlers reach.
type Deps struct {
	Service   *reconciler.Service
	Hub       *realtime.Hub
	Collector *perf.Collector

	// CSRFKey is 32 bytes; a random key is generated when nil.
	CSRFKey        []byte
	SecureCookies  bool
	AllowedOrigins []string
	// RateLimit is requests per second per client IP.
	RateLimit   int
	SlowRequest time.Duration
}

// Global service instance (set by NewMux)
var svc *reconciler.Service

// Global hub and upgrader for /ws (set by NewMux)
var hub *realtime.Hub
var upgrader *websocket.Upgrader

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// DefaultRateLimit is used when Deps.RateLimit is zero.
const DefaultRateLimit = 20

// randomCSRFKey returns a per-process key. Tokens do not survive a restart.
func randomCSRFKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("generate CSRF key: " + err.Error())
	}
	slog.Warn("csrf_key_random", "hint", "set CHAMBER_CSRF_KEY so tokens survive restarts")
	return key
}

// originHosts reduces origins like "https://club.example" to the host form
// the CSRF origin check compares against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			hosts = append(hosts, o)
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// NewMux wires HTTP handlers for the app.
// PRE: d.Service and d.Hub are non-nil
// POST: returned handler applies SecurityHeaders, CSRF, RateLimit and Timing around the routes
func NewMux(staticDir string, d Deps) http.Handler {
	svc = d.Service
	hub = d.Hub
	perfCollector = d.Collector
	upgrader = realtime.NewUpgrader(d.AllowedOrigins)

	mux := http.NewServeMux()
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	registerRoutes(mux)

	csrfKey := d.CSRFKey
	if len(csrfKey) == 0 {
		csrfKey = randomCSRFKey()
	}
	rate := d.RateLimit
	if rate <= 0 {
		rate = DefaultRateLimit
	}
	limiter := middleware.NewRateLimiter(rate, time.Second)

	// Apply middleware: Timing -> RateLimit -> CSRF -> SecurityHeaders -> Mux
	return middleware.Chain(mux,
		middleware.SecurityHeaders,
		middleware.CSRF(csrfKey, d.SecureCookies, originHosts(d.AllowedOrigins)),
		middleware.RateLimit(limiter),
		middleware.Timing(d.Collector, d.SlowRequest),
	)
}
