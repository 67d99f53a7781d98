package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pay-tools/tx-relay/pkg/models/api"
	txrelaymiddleware "github.com/pay-tools/tx-relay/pkg/server/middleware"
)

// StatusSource exposes the relay's internals the ops endpoints read. It is
// strictly read-only.
type StatusSource interface {
	Status() api.Status
}

type WebAPI struct {
	router *chi.Mux
	logger *zerolog.Logger
	server *http.Server
}

type Config struct {
	Addr   string
	Source StatusSource
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	router := chi.NewRouter()

	router.Use(txrelaymiddleware.Logger(&logger))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(config.Source.Status()); err != nil {
				zerolog.Ctx(req.Context()).Error().Err(err).Msg("failed to encode status")
			}
		})
	})

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:    config.Addr,
			Handler: router,
		},
	}
}

func (w *WebAPI) Handler() http.Handler {
	return w.router
}

// ListenAndServe blocks serving the ops endpoints until Shutdown is called.
func (w *WebAPI) ListenAndServe() error {
	w.logger.Info().Str("addr", w.server.Addr).Msg("starting ops server")
	return w.server.ListenAndServe()
}

// Shutdown drains outstanding requests and stops the listener. Process-level
// signal handling lives with the caller, not here.
func (w *WebAPI) Shutdown(ctx context.Context) error {
	err := w.server.Shutdown(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("graceful shutdown failed")
		return w.server.Close()
	}
	return nil
}
