package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/semanticpdf/semanticpdf-backend/api/controllers"
	"github.com/semanticpdf/semanticpdf-backend/api/middleware"
	"github.com/semanticpdf/semanticpdf-backend/internal/auth"
	"github.com/semanticpdf/semanticpdf-backend/internal/billing"
	"github.com/semanticpdf/semanticpdf-backend/internal/chat"
	"github.com/semanticpdf/semanticpdf-backend/internal/files"
	"github.com/semanticpdf/semanticpdf-backend/pkg/auth/session"
	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	"github.com/semanticpdf/semanticpdf-backend/pkg/redis"
)

// RouterParams collects everything the HTTP surface needs.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker

	AuthService     auth.Service
	RegisterService auth.RegisterService
	CallbackService auth.CallbackService
	BillingService  billing.Service
	FilesService    files.Service
	ChatService     chat.Service
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", controllers.AuthRegister(p.RegisterService, p.AuthService, p.Logger))
		r.Post("/login", controllers.AuthLogin(p.AuthService, p.Logger))
		r.Post("/refresh", controllers.AuthRefresh(p.AuthService, p.Logger))
		r.Post("/logout", controllers.AuthLogout(p.AuthService, p.Config.JWT, p.Logger))
		r.With(middleware.Auth(p.Config.JWT, p.Sessions, p.Logger)).
			Post("/callback", controllers.AuthCallback(p.CallbackService, p.Logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.Config.JWT, p.Sessions, p.Logger))
		r.Use(middleware.Idempotency(p.Redis, p.Logger))

		r.Get("/billing/status", controllers.BillingStatus(p.BillingService, p.Logger))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.SubscriptionCreate(p.BillingService, p.Logger))
			r.Post("/cancel", controllers.SubscriptionCancel(p.BillingService, p.Logger))
			r.Post("/verify", controllers.SubscriptionVerify(p.BillingService, p.Logger))
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", controllers.FileList(p.FilesService, p.Logger))
			r.Post("/", controllers.FileCreate(p.FilesService, p.Logger))
			r.Route("/{fileId}", func(r chi.Router) {
				r.Get("/status", controllers.FileStatus(p.FilesService, p.Logger))
				r.Delete("/", controllers.FileDelete(p.FilesService, p.Logger))
				r.Post("/ingest", controllers.FileIngest(p.FilesService, p.Logger))
				r.Get("/messages", controllers.MessageList(p.ChatService, p.Logger))
			})
		})

		r.Post("/messages", controllers.MessageSend(p.ChatService, p.Logger))
	})

	return r
}
