package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"gamification-service/internal/app"
)

// NewRouter wires the REST API and the websocket stream onto a chi router.
func NewRouter(service *app.GamificationService, log *logrus.Entry) http.Handler {
	api := NewAPIHandler(service)
	ws := NewWSHandler(service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/badges", api.ListBadges)
		r.Get("/contents", api.ListContents)
		r.Get("/leaderboard", api.Leaderboard)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/gamification", api.ProvisionUser)
			r.Get("/gamification", api.Gamification)
			r.Get("/progress", api.Progress)
			r.Post("/scores", api.SubmitScore)
		})
	})
	return r
}
