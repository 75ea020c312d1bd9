package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/market-call-backend/internal/hub"
	"github.com/DoyleJ11/market-call-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Options struct {
	CORSOrigins []string
	DefaultGame string
	HostKey     string // required in X-Host-Key to delete a game when set
	WS          ws.Options
	Logger      *zap.Logger
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", hostKeyHeader},
	}).Handler)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/games", CreateGame(h, log))
	r.Get("/games", ListGames(h))
	r.Get("/games/{code}", GetGame(h))
	r.Delete("/games/{code}", DeleteGame(h, opts.DefaultGame, opts.HostKey, log))
	r.Get("/ws", ws.Handler(h, opts.WS))
	return r
}
