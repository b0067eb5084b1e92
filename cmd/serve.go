package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/leadstore"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
	"github.com/sells-group/outreach-cli/internal/schedule"
)

var servePort int

// scheduleAPI is the slice of the scheduler the HTTP API uses.
type scheduleAPI interface {
	All() []model.ScheduleEntry
	Active() []model.ScheduleEntry
	Get(email string) (model.ScheduleEntry, bool)
	AnalysisByEmail(email string) (model.AnalysisResult, bool)
	Cancel(ctx context.Context, email string) error
}

// apiDeps are the handlers' collaborators. Leads and Collector may be nil.
type apiDeps struct {
	Schedules scheduleAPI
	Leads     leadstore.Store
	Collector *monitoring.Collector
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for schedules and leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return serveHTTP(ctx, port, newRouter(apiDeps{
			Schedules: env.Scheduler,
			Leads:     env.Leads,
			Collector: env.Collector,
		}))
	},
}

// serveHTTP runs srv until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func newRouter(d apiDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if d.Collector != nil {
			body["schedules"] = d.Collector.Collect()
		}
		writeJSON(w, http.StatusOK, body)
	})

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, listSchedules(d.Schedules, req.URL.Query().Get("status")))
		})
		r.Get("/{email}", func(w http.ResponseWriter, req *http.Request) {
			e, ok := d.Schedules.Get(chi.URLParam(req, "email"))
			if !ok {
				writeError(w, http.StatusNotFound, "schedule not found")
				return
			}
			writeJSON(w, http.StatusOK, e)
		})
		r.Get("/{email}/analysis", func(w http.ResponseWriter, req *http.Request) {
			a, ok := d.Schedules.AnalysisByEmail(chi.URLParam(req, "email"))
			if !ok {
				writeError(w, http.StatusNotFound, "analysis not found")
				return
			}
			writeJSON(w, http.StatusOK, a)
		})
		r.Post("/{email}/cancel", func(w http.ResponseWriter, req *http.Request) {
			email := chi.URLParam(req, "email")
			err := d.Schedules.Cancel(req.Context(), email)
			switch {
			case errors.Is(err, schedule.ErrNotFound):
				writeError(w, http.StatusNotFound, "schedule not found")
			case err != nil:
				zap.L().Error("api: cancel failed", zap.String("lead", email), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "cancel failed")
			default:
				writeJSON(w, http.StatusOK, map[string]string{"email": email, "status": string(model.ScheduleCancelled)})
			}
		})
	})

	r.Get("/leads", func(w http.ResponseWriter, req *http.Request) {
		if d.Leads == nil {
			writeError(w, http.StatusServiceUnavailable, "lead store not configured")
			return
		}
		records, err := d.Leads.List(req.Context())
		if err != nil {
			zap.L().Error("api: list leads failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list leads failed")
			return
		}
		writeJSON(w, http.StatusOK, records)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
