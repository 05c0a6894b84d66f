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
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/pipeline"
	"github.com/sells-group/keyword-cli/internal/report"
	"github.com/sells-group/keyword-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history and accept report runs over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}
		st, err := requireStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runner := pipeline.NewRunner(cfg, st)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(st, runner, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			runner.Wait()
			return eris.Wrap(err, "server shutdown")
		})
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runStarter starts report runs in the background.
type runStarter interface {
	Start(ctx context.Context, req pipeline.Request) (*model.Run, error)
}

// buildRouter wires the HTTP API over the run store.
func buildRouter(st store.Store, runner runStarter, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			filter := store.RunFilter{
				Status: model.RunStatus(q.Get("status")),
				Input:  q.Get("input"),
			}
			if v := q.Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
					return
				}
				filter.Limit = n
			}
			runs, err := st.ListRuns(req.Context(), filter)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			if runs == nil {
				runs = []model.Run{}
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body pipeline.Request
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Input == "" {
				writeError(w, http.StatusBadRequest, "input is required")
				return
			}
			run, err := runner.Start(req.Context(), body)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status": "accepted",
				"run_id": run.ID,
			})
		})

		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			sum, err := st.Summarize(req.Context())
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, sum)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/{id}/report", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			run, err := st.GetRun(req.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			if run.Status != model.RunStatusComplete {
				writeError(w, http.StatusConflict, fmt.Sprintf("run %s is %s", id, run.Status))
				return
			}
			rows, err := st.GetReportRows(req.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_ = report.Write(w, rows)
		})
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

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	default:
		zap.L().Error("serve: store error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
