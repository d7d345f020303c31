package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msa-portal/portal-backend/api/controllers"
	"github.com/msa-portal/portal-backend/api/middleware"
	"github.com/msa-portal/portal-backend/pkg/config"
	"github.com/msa-portal/portal-backend/pkg/logger"
	"github.com/msa-portal/portal-backend/pkg/metrics"
	"github.com/msa-portal/portal-backend/pkg/redis"
)

// Deps are the collaborators the router wires into handlers. Redis is
// optional; without it idempotency and rate limiting are disabled.
type Deps struct {
	Views       *controllers.Views
	Redis       *redis.Client
	Pingers     map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.CORS),
	)

	var (
		idempotency = passThrough
		inviteLimit = passThrough
	)
	if deps.Redis != nil {
		idempotency = middleware.Idempotency(deps.Redis, logg)
		inviteLimit = middleware.RateLimit(middleware.NewRateLimitPolicy(
			"invite",
			cfg.RateLimit.InviteWindow,
			cfg.RateLimit.InviteLimit,
			cfg.RateLimit.InviteLimit,
		), deps.Redis, logg)
	}
	views := deps.Views

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identify(middleware.IdentifyParams{
			JWT:    cfg.JWT,
			Verify: cfg.Backend.UsesSQL(),
			Logger: logg,
		}))
		r.Use(idempotency)

		r.Route("/members", func(r chi.Router) {
			r.Get("/", controllers.MembersList(views, logg))
			r.Post("/", controllers.MembersCreate(views, logg))
			r.Patch("/{memberID}", controllers.MembersUpdate(views, logg))
			r.Delete("/{memberID}", controllers.MembersDelete(views, logg))
			r.With(inviteLimit).Post("/invitations", controllers.MembersInvite(views, logg))
			r.Post("/invitations/{invitationID}/approve", controllers.MembersApprove(views, logg))
			r.Post("/invitations/{invitationID}/reject", controllers.MembersReject(views, logg))
		})

		r.Route("/volunteers", func(r chi.Router) {
			r.Get("/tasks", controllers.VolunteerTasksList(views, logg))
			r.Post("/tasks", controllers.VolunteerTasksCreate(views, logg))
			r.Patch("/tasks/{taskID}", controllers.VolunteerTasksUpdate(views, logg))
			r.Delete("/tasks/{taskID}", controllers.VolunteerTasksDelete(views, logg))
			r.Post("/applications", controllers.VolunteerApply(views, logg))
			r.Post("/applications/{applicationID}/approve", controllers.VolunteerApprove(views, logg))
			r.Post("/applications/{applicationID}/reject", controllers.VolunteerReject(views, logg))
		})

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", controllers.MessagesList(views, logg))
			r.Post("/", controllers.MessagesCreate(views, logg))
			r.Patch("/{messageID}", controllers.MessagesUpdate(views, logg))
			r.Delete("/{messageID}", controllers.MessagesDelete(views, logg))
			r.Post("/{messageID}/send", controllers.MessagesSend(views, logg))
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", controllers.EventsList(views, logg))
			r.Post("/", controllers.EventsCreate(views, logg))
			r.Post("/attendance", controllers.EventsMarkAttendance(views, logg))
			r.Patch("/{eventID}", controllers.EventsUpdate(views, logg))
			r.Delete("/{eventID}", controllers.EventsDelete(views, logg))
			r.Post("/{eventID}/registrations", controllers.EventsRegister(views, logg))
		})

		r.Route("/monitoring", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))
			r.Get("/", controllers.MonitoringOverview(views, logg))
			r.Post("/logs", controllers.MonitoringRecordLog(views, logg))
			r.Post("/logs/clear-resolved", controllers.MonitoringClearResolved(views, logg))
			r.Post("/logs/{logID}/resolve", controllers.MonitoringResolve(views, logg))
			r.Delete("/logs/{logID}", controllers.MonitoringDeleteLog(views, logg))
		})
	})

	return r
}

func passThrough(next http.Handler) http.Handler { return next }
