package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	backendHandler "github.com/zhouzirui/chatdesk/backend/internal/handler/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/live"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/speech"
	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// Dependencies collects the services the HTTP layer is wired to.
type Dependencies struct {
	Conversations  *conversation.Manager
	Profiles       backend.Store
	Speech         speech.SpeechService
	SpeechEnabled  bool
	Hub            *live.Hub
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		backendHandler.New(deps.Profiles).RegisterRoutes(api)
		chat.New(deps.Conversations).RegisterRoutes(api)

		if deps.Speech != nil {
			speech.New(deps.Speech, deps.SpeechEnabled).RegisterRoutes(api)
		}

		if deps.Hub != nil {
			live.New(deps.Conversations, deps.Hub).RegisterRoutes(api)
		}
	})

	return r
}
