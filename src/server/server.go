package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"algoengine/src/asset"
)

// Server exposes the health and per-asset status endpoints of a
// production run.
type Server struct {
	srv    *http.Server
	assets []*asset.Asset
}

type assetStatus struct {
	Name              string  `json:"name"`
	Symbol            string  `json:"symbol"`
	HistoricalFilling bool    `json:"historical_filling"`
	LastTickAgeSecs   float64 `json:"last_tick_age_seconds"`
	HasTicked         bool    `json:"has_ticked"`
}

func New(port, apiToken string, assets []*asset.Asset) *Server {
	s := &Server{assets: assets}

	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write failed")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(apiToken))
		r.Get("/status", s.handleStatus)
	})

	s.srv = &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make([]assetStatus, 0, len(s.assets))

	for _, a := range s.assets {
		status := assetStatus{
			Name:              a.Name(),
			Symbol:            a.Symbol(),
			HistoricalFilling: a.IsHistoricalFilling(),
		}

		if last := a.LastTickAt(); !last.IsZero() {
			status.HasTicked = true
			status.LastTickAgeSecs = time.Since(last).Seconds()
		}

		statuses = append(statuses, status)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"assets": statuses}); err != nil {
		logger.WithError(err).Error("/status write failed")
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in a background goroutine until Shutdown is called.
func (s *Server) Start() {
	go func() {
		logger.Infof("Listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
