package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/semanticpdf/semanticpdf-backend/api/routes"
	"github.com/semanticpdf/semanticpdf-backend/internal/auth"
	"github.com/semanticpdf/semanticpdf-backend/internal/billing"
	"github.com/semanticpdf/semanticpdf-backend/internal/chat"
	"github.com/semanticpdf/semanticpdf-backend/internal/files"
	"github.com/semanticpdf/semanticpdf-backend/internal/users"
	"github.com/semanticpdf/semanticpdf-backend/pkg/auth/session"
	"github.com/semanticpdf/semanticpdf-backend/pkg/config"
	"github.com/semanticpdf/semanticpdf-backend/pkg/db"
	"github.com/semanticpdf/semanticpdf-backend/pkg/logger"
	"github.com/semanticpdf/semanticpdf-backend/pkg/metrics"
	"github.com/semanticpdf/semanticpdf-backend/pkg/migrate"
	"github.com/semanticpdf/semanticpdf-backend/pkg/openai"
	"github.com/semanticpdf/semanticpdf-backend/pkg/outbox"
	"github.com/semanticpdf/semanticpdf-backend/pkg/razorpay"
	"github.com/semanticpdf/semanticpdf-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	gateway, err := razorpay.NewClient(
		cfg.Razorpay.KeyID,
		cfg.Razorpay.KeySecret,
		razorpay.WithBaseURL(cfg.Razorpay.BaseURL),
		razorpay.WithTimeout(cfg.Razorpay.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create razorpay client", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(cfg.OpenAI)
	if err != nil {
		logg.Error(context.Background(), "failed to create openai client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	usersRepo := users.NewRepository(dbClient.DB())
	filesRepo := files.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       dbClient,
		Outbox:         outboxService,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create register service", err)
		os.Exit(1)
	}

	callbackService, err := auth.NewCallbackService(auth.CallbackServiceParams{
		TxRunner:       dbClient,
		Outbox:         outboxService,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create callback service", err)
		os.Exit(1)
	}

	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:              billing.NewRepository(dbClient.DB()),
		Gateway:           gateway,
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Logger:            logg,
		Metrics:           metrics.NewReconcileMetrics(prometheus.DefaultRegisterer),
		Razorpay:          cfg.Razorpay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	filesService, err := files.NewService(files.ServiceParams{
		Repo:              filesRepo,
		Users:             usersRepo,
		Embedder:          openaiClient,
		TransactionRunner: dbClient,
		Outbox:            outboxService,
		Logger:            logg,
		Files:             cfg.Files,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create files service", err)
		os.Exit(1)
	}

	chatService, err := chat.NewService(chat.ServiceParams{
		Repo:              chat.NewRepository(dbClient.DB()),
		Files:             filesRepo,
		Embedder:          openaiClient,
		Completer:         openaiClient,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create chat service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:          cfg,
			Logger:          logg,
			DB:              dbClient,
			Redis:           redisClient,
			Sessions:        sessionManager,
			AuthService:     authService,
			RegisterService: registerService,
			CallbackService: callbackService,
			BillingService:  billingService,
			FilesService:    filesService,
			ChatService:     chatService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
