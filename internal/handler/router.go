package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RavenWorks247/AgroPredict/internal/handler/chat"
	"github.com/RavenWorks247/AgroPredict/internal/handler/relay"
	"github.com/RavenWorks247/AgroPredict/internal/handler/session"
	"github.com/RavenWorks247/AgroPredict/internal/handler/ws"
	middlewarePkg "github.com/RavenWorks247/AgroPredict/internal/middleware"
	"github.com/RavenWorks247/AgroPredict/internal/observability"
	"github.com/RavenWorks247/AgroPredict/pkg/utils"
)

// Services bundles what the advisor API needs.
type Services struct {
	Advisor  chat.Advisor
	Contexts chat.Contexts
	Records  session.Records
	Metrics  *observability.Metrics
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)
	r.Use(middlewarePkg.Metrics(svc.Metrics))

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())

	chat.New(svc.Advisor, svc.Contexts).RegisterRoutes(r)
	session.New(svc.Records).RegisterRoutes(r)
	ws.New(svc.Advisor, svc.Contexts, svc.Metrics).RegisterRoutes(r)

	return r
}

// NewRelayRouter wires the forwarding front door.
func NewRelayRouter(rh *relay.Handler, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.Metrics(metrics))

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	rh.RegisterRoutes(r)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
