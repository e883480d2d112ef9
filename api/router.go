package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"

	"github.com/openclaw/qr/render"
	"github.com/openclaw/qr/store"
	"github.com/openclaw/qr/tracker"
)

// Server holds the dependencies for all HTTP handlers.
type Server struct {
	Session   *render.Session
	Store     *store.ScanStore
	Notifier  *tracker.Notifier
	Defaults  render.Options
	Log       *slog.Logger
	Version   string
	StartTime time.Time
	Now       func() time.Time
}

// NewRouter returns a fully configured chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	if s.Now == nil {
		s.Now = time.Now
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(requestLogger(s.Log))

	r.Get("/status", s.handleStatus)

	// Generator page and rendering
	r.Get("/", s.handleGeneratorPage)
	r.Post("/qr/generate", s.handleGenerate)
	r.Get("/qr/download", s.handleDownload)
	r.Get("/qr.png", s.handleRenderPNG)

	// Scan tracking
	r.Get("/scan", s.handleScan)
	r.Group(func(r chi.Router) {
		r.Use(gzipMiddleware)
		r.Get("/scans", s.handleListScans)
		r.Get("/stats/daily", s.handleStatsDaily)
		r.Get("/stats/monthly", s.handleStatsMonthly)
		r.Get("/stats/hourly", s.handleStatsHourly)
		r.Get("/stats/yearly", s.handleStatsYearly)
		r.Get("/stats/summary", s.handleStatsSummary)
	})

	return r
}

// --- helpers ----------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// --- middleware --------------------------------------------------------------

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// gzipMiddleware compresses responses for clients that accept gzip.
func gzipMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
			next.ServeHTTP(w, r)
		})
	}
}
