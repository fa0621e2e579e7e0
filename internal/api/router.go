package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velle-lab/gohgf/internal/api/handlers"
	mw "github.com/velle-lab/gohgf/internal/api/middleware"
	"github.com/velle-lab/gohgf/internal/buildconfig"
	"github.com/velle-lab/gohgf/internal/config"
	"github.com/velle-lab/gohgf/internal/domain"
	"github.com/velle-lab/gohgf/internal/fingerprint"
	"github.com/velle-lab/gohgf/internal/hgf"
	"github.com/velle-lab/gohgf/internal/service"
	"github.com/velle-lab/gohgf/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router   *chi.Mux
	Sessions *service.SessionService
	Sweeper  *service.SweeperService

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires the services and routes. db may be nil: the server then
// runs without the archive, serving live sessions only.
func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	sessionSvc := service.NewSessionService(hgf.Options{PrecisionFloor: config.PrecisionFloor()}, logger)
	sweeperSvc := service.NewSweeperService(sessionSvc, config.SessionTTL(), logger)

	var archiveSvc *service.ArchiveService
	if db != nil {
		runStore := store.NewRunStore(db)
		encoder := fingerprint.NewEncoder(fingerprint.DefaultDim)
		archiveSvc = service.NewArchiveService(runStore, sessionSvc, encoder, logger)
	} else {
		logger.Warn("no database configured, run archive disabled")
	}

	modelHandler := handlers.NewModelHandler(sessionSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Sessions:  sessionSvc,
		Sweeper:   sweeperSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		if key := config.APIKey(); key != "" {
			r.Use(mw.APIKeyAuth(key))
		}

		r.Route("/models", func(r chi.Router) {
			r.Post("/", modelHandler.Create)
			r.Get("/", modelHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", modelHandler.GetByID)
				r.Delete("/", modelHandler.Delete)
				r.Post("/observe", modelHandler.Observe)
				r.Post("/run", modelHandler.Run)
				r.Get("/nodes", modelHandler.Nodes)
				r.Get("/trajectories", modelHandler.Trajectories)
			})
		})

		if archiveSvc != nil {
			runHandler := handlers.NewRunHandler(archiveSvc)
			r.Route("/runs", func(r chi.Router) {
				r.Post("/", runHandler.Archive)
				r.Get("/", runHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", runHandler.GetByID)
					r.Delete("/", runHandler.Delete)
					r.Get("/similar", runHandler.Similar)
				})
			})
		}
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": buildconfig.Version()})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"sessions":       len(app.Sessions.List()),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"version":    buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var _ domain.RunStore = (*store.RunStore)(nil)
