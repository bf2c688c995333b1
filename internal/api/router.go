package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"unab.cl/superapp/internal/session"
)

func NewRouter(apiHandler *APIHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/personas", apiHandler.ListPersonasHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)

			// Chat routes
			r.Get("/chat", apiHandler.GetChatHandler)
			r.Put("/chat/active", apiHandler.SwitchPersonaHandler)
			r.Get("/chat/{persona}", apiHandler.GetTranscriptHandler)
			r.Post("/chat/{persona}/messages", apiHandler.PostMessageHandler)
			r.Delete("/chat/{persona}/messages", apiHandler.ClearHistoryHandler)

			// Exam routes
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.RequireRole(session.RoleTeacher))
				r.Post("/exams", apiHandler.CreateExamHandler)
				r.Get("/exams", apiHandler.ListExamsHandler)
			})
		})
	})

	return r
}
