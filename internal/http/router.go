package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tagwatch/console-sync/internal/http/handlers"
	"github.com/tagwatch/console-sync/internal/metrics"
)

// NewRouter builds the local API routing tree.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(StripForwardedPrefix)
	r.Use(RequestLogger(api))

	// Long-lived stream; no request timeout.
	r.Get("/api/stream", api.Stream)

	r.Group(func(timed chi.Router) {
		timed.Use(middleware.Timeout(20 * time.Second))

		timed.Get("/healthz", api.Health)
		timed.Handle("/metrics", metrics.Handler())

		timed.Route("/api", func(apiRouter chi.Router) {
			apiRouter.Post("/session", api.Login)
			apiRouter.Delete("/session", api.Logout)
			apiRouter.Get("/connection", api.Connection)
			apiRouter.Post("/broker/publish", api.Publish)

			apiRouter.Get("/cameras", api.ListCameras)
			apiRouter.Post("/cameras/{id}/ack", func(w http.ResponseWriter, r *http.Request) {
				api.AckCamera(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Get("/analytics/hidden", api.ListHiddenAnalytics)
			apiRouter.Put("/analytics/hidden/{key}", func(w http.ResponseWriter, r *http.Request) {
				api.SetHiddenAnalytic(w, r, chi.URLParam(r, "key"), true)
			})
			apiRouter.Delete("/analytics/hidden/{key}", func(w http.ResponseWriter, r *http.Request) {
				api.SetHiddenAnalytic(w, r, chi.URLParam(r, "key"), false)
			})

			apiRouter.Get("/incidents/recent", api.RecentIncidents)
			apiRouter.Put("/incidents/recent/selection", api.SetIncidentSelection)
			apiRouter.Post("/incidents/recent/read", api.MarkIncidentsRead)
			apiRouter.Post("/incidents", api.CreateIncident)

			apiRouter.Post("/timeline/select", api.SelectIncident)
			apiRouter.Delete("/timeline/select", api.DeselectIncident)
			apiRouter.Get("/timeline", api.GetTimeline)
			apiRouter.Post("/timeline/messages", api.SendMessage)
			apiRouter.Post("/timeline/viewport", api.ReportViewport)
			apiRouter.Post("/timeline/jump", api.JumpToLatest)

			apiRouter.Get("/gateways", api.ListGateways)
			apiRouter.Post("/refresh", api.Refresh)
		})
	})
	return r
}
