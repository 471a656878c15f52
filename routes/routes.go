package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Dosada05/results-engine/handlers"
	"github.com/Dosada05/results-engine/middleware"
)

// SetupRoutes wires the results authority's HTTP surface.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	resultsHandler *handlers.ResultsHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Публичные маршруты для просмотра результатов
	router.Get("/games/{gameID}", resultsHandler.GetGame)
	router.Get("/results/game/{gameID}", resultsHandler.GetResults)
	router.Get("/ws/games/{gameID}", webSocketHandler.ServeWs)

	// Защищенные маршруты для ввода результатов
	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))

		r.Post("/results/game/{gameID}/ops:batch", resultsHandler.ApplyBatch)
		r.Put("/results/game/{gameID}/status", resultsHandler.SetStatus)
		r.Post("/results/game/{gameID}/recalculate", resultsHandler.Recalculate)
		r.Delete("/results/game/{gameID}", resultsHandler.DeleteResults)
	})
}
