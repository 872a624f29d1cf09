package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/benchgrid/internal/ctxlog"
	"github.com/specialistvlad/benchgrid/internal/runstate"
)

// healthHandler answers the liveness probe.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// runHandler serves the current run record as JSON so a long run can be
// observed without touching the state directory.
func (a *App) runHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Run status endpoint hit.", "remote_addr", r.RemoteAddr)

	state, err := a.store.Read()
	if err != nil {
		if errors.Is(err, runstate.ErrNotFound) {
			http.Error(w, "no current run", http.StatusNotFound)
			return
		}
		a.logger.Error("Failed to read run state for status endpoint.", "error", err)
		http.Error(w, "failed to read run state", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		a.logger.Error("Failed to encode run state.", "error", err)
	}
}

// startHealthcheckServer initializes and runs the observation HTTP server.
func (a *App) startHealthcheckServer(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.healthHandler)
	mux.HandleFunc("/runz", a.runHandler)

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	a.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Run the server in a goroutine so it doesn't block the pipeline.
	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/healthz", addr))
		// ListenAndServe returns ErrServerClosed on graceful shutdown; only
		// other errors are real failures.
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
}

func (a *App) closeHealthcheckServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if a.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	logger.Debug("Health check server shut down gracefully.")
	return nil
}
