package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spendshield/internal/extract"
	"github.com/sells-group/spendshield/internal/intake"
	"github.com/sells-group/spendshield/internal/model"
	"github.com/sells-group/spendshield/internal/pipeline"
	"github.com/sells-group/spendshield/internal/reference"
	"github.com/sells-group/spendshield/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		in := intake.New(cfg.Upload)
		api := &server{
			pipe:        env.Pipeline,
			store:       env.Store,
			refs:        env.Refs,
			intake:      in,
			storeDriver: cfg.Store.Driver,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      buildRouter(api, cfg.Server.CORSOrigins),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		}

		janitor := intake.NewJanitor(in.Dir(),
			time.Duration(cfg.Upload.RetentionHours)*time.Hour,
			time.Duration(cfg.Upload.JanitorIntervalMins)*time.Minute,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port), zap.Bool("async", env.Pipeline.Async()))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			return janitor.Run(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return eris.Wrap(err, "server shutdown")
			}
			if err := env.Pipeline.Wait(shutdownCtx); err != nil {
				zap.L().Warn("in-flight runs did not finish before shutdown", zap.Error(err))
			}
			return nil
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server carries the dependencies of the HTTP handlers.
type server struct {
	pipe        *pipeline.Pipeline
	store       store.Store
	refs        reference.Store
	intake      *intake.Intake
	storeDriver string
}

func buildRouter(s *server, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Get("/audit/{runID}", s.handleAudit)
	r.Get("/audits", s.handleAudits)
	r.Get("/demo", s.handleDemo)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     serviceName,
		"version":     version,
		"description": "Fraud risk screening for public expenditure documents",
		"endpoints": map[string]string{
			"POST /analyze":       "Upload a document for fraud analysis",
			"GET /audit/{run_id}": "Retrieve an analysis run",
			"GET /audits":         "List recent analysis runs",
			"GET /demo":           "Sample completed analysis",
			"GET /health":         "Health check",
		},
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]any{
		"status":               "healthy",
		"service":              serviceName,
		"version":              version,
		"timestamp":            time.Now().UTC(),
		"store_driver":         s.storeDriver,
		"reference_configured": s.refs != nil && s.refs.Ping(ctx) == nil,
	}
	if err := s.store.Ping(ctx); err != nil {
		resp["status"] = "degraded"
		zap.L().Warn("health: store ping failed", zap.Error(err))
	}

	ext := s.pipe.Extractor()
	switch e := ext.(type) {
	case *extract.Fallback:
		resp["provider"] = e.Name()
		resp["ai_configured"] = !e.MockOnly()
		resp["mock_mode"] = e.MockOnly()
		resp["circuit"] = e.Breaker().Snapshot()
	case nil:
		resp["provider"] = "none"
		resp["ai_configured"] = false
		resp["mock_mode"] = false
	default:
		resp["provider"] = e.Name()
		resp["ai_configured"] = false
		resp["mock_mode"] = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	// Multipart overhead on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.intake.MaxBytes()+1<<20)
	if err := r.ParseMultipartForm(s.intake.MaxBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file: exceeds %dMB limit", s.intake.MaxBytes()>>20))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file: is required")
		return
	}
	defer file.Close() //nolint:errcheck

	fy, err := intake.ParseFiscalYear(r.FormValue("fiscal_year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input, err := s.intake.Accept(r.Context(), intake.Upload{
		Filename:   header.Filename,
		Body:       file,
		Department: r.FormValue("department"),
		FiscalYear: fy,
	})
	if err != nil {
		if intake.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("analyze: store upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	start := time.Now()
	run, err := s.pipe.Submit(r.Context(), input)
	if err != nil {
		zap.L().Error("analyze: run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	if s.pipe.Async() {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id":  run.ID,
			"status":  run.Status,
			"message": "Analysis queued",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  run.ID,
		"status":  run.Status,
		"message": fmt.Sprintf("Analysis %s in %.2f seconds", run.Status, time.Since(start).Seconds()),
	})
}

func (s *server) handleAudit(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == pipeline.DemoRunID {
		writeJSON(w, http.StatusOK, pipeline.DemoRun())
		return
	}

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found: "+runID)
			return
		}
		zap.L().Error("audit: get run", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleAudits(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit: must be between 1 and 100")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset: must be >= 0")
			return
		}
		filter.Offset = n
	}
	switch filter.Status {
	case "", model.RunStatusPending, model.RunStatusRunning, model.RunStatusCompleted, model.RunStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "status: unknown value "+strconv.Quote(string(filter.Status)))
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("audits: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	total, err := s.store.CountRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("audits: count runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}

	audits := make([]model.RunSummary, 0, len(runs))
	for i := range runs {
		audits = append(audits, runs[i].Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": audits, "total": total})
}

func (s *server) handleDemo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pipeline.DemoRun())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
