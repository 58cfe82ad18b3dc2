package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"parkinglot/backend/services/parking-service/internal/http/handlers"
	"parkinglot/backend/services/parking-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Parking     *handlers.ParkingHandlers
	Settings    *handlers.SettingsHandlers
	Health      http.HandlerFunc
	Metrics     http.Handler
	WebSocket   http.HandlerFunc
	Tokens      middleware.TokenValidator
	RateLimiter *middleware.RateLimiter
	Observer    middleware.HTTPObserver
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter wires HTTP routes with middleware. Only /api requires a bearer token.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(deps.Logger, deps.Observer))
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.CORS(deps.CORSOrigins))

	r.Get("/health", deps.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	if deps.WebSocket != nil {
		r.Get("/ws", deps.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Tokens, deps.Logger))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/parking", func(r chi.Router) {
			r.Post("/entry", deps.Parking.Entry)
			r.Post("/exit", deps.Parking.Exit)
			r.Post("/calculate-charge", deps.Parking.CalculateCharge)
			r.Post("/send-receipt", deps.Parking.SendReceipt)
			r.Get("/dashboard", deps.Parking.Dashboard)
			r.Get("/search", deps.Parking.Search)
			r.Get("/sessions/{id}", deps.Parking.Session)
			r.Post("/vehicles/history/rebuild", deps.Parking.RebuildHistory)
			r.Get("/vehicles/{vehicleNumber}/history", deps.Parking.VehicleHistory)
		})

		r.Get("/settings", deps.Settings.Get)
		r.Put("/settings", deps.Settings.Update)
	})

	return r
}
