package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/chess-relay/internal/gateway"
	"github.com/DoyleJ11/chess-relay/internal/hub"
	"github.com/DoyleJ11/chess-relay/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Deps struct {
	Gateway        *gateway.Gateway
	Hub            *hub.Hub
	AllowedOrigins []string
	WS             ws.Options
	Log            *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LogRequests(d.Log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", Index)
	r.Get("/healthz", Healthz)
	r.Post("/sessions", CreateSession(d.Gateway, d.Log))
	r.Get("/sessions/{id}", GetSession(d.Gateway))
	r.Get("/ws", ws.Handler(d.Gateway, d.Hub, d.WS, d.Log.Named("ws")))
	return r
}

// LogRequests writes one Debug line per request once it has been served.
func LogRequests(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Debug("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
