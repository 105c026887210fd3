package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/handler/identity"
	"github.com/webitel/im-support-service/internal/handler/lp"
	"github.com/webitel/im-support-service/internal/handler/ws"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	REST   *Handler
	WS     *ws.WSHandler
	LP     *lp.LPHandler
	Logger *slog.Logger
}

// NewRouter mounts every public endpoint under /v1. All of them need the
// caller identity; the dashboard is for listeners and admins only.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(p.Logger))
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Use(identity.Middleware)

		r.Route("/presence", func(r chi.Router) {
			r.Get("/", p.REST.Counts)
			r.Get("/online", p.REST.Online)
			r.Post("/connect", p.REST.Connect)
			r.Post("/heartbeat", p.REST.Heartbeat)
			r.Post("/disconnect", p.REST.Disconnect)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", p.REST.Sessions)
			r.Post("/requests", p.REST.RequestSession)
			r.Post("/requests/{requestID}/accept", p.REST.AcceptRequest)
			r.Post("/requests/{requestID}/reject", p.REST.RejectRequest)
			r.Post("/{sessionID}/end", p.REST.EndSession)
			r.Get("/{sessionID}/chat", p.WS.ServeHTTP)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/stream", p.REST.NotificationStream)
			r.Get("/poll", p.LP.Poll)
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(identity.RequireRole(model.RoleListener, model.RoleAdmin))
			r.Get("/stream", p.REST.DashboardStream)
			r.Get("/snapshot", p.REST.DashboardSnapshot)
		})
	})

	return r
}

// requestLogger writes one slog line per request once it completes.
// Streams and sockets are logged when they end.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			level := slog.LevelDebug
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "[HTTP] request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("took", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
