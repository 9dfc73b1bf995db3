package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atg_engage/internal/actions"
	"atg_engage/internal/config"
	"atg_engage/internal/logging"
	"atg_engage/internal/middleware"
	"atg_engage/models"
	"atg_engage/pkg/credentials"
	"atg_engage/pkg/eventbus"
	"atg_engage/pkg/orchestrator"
	"atg_engage/pkg/storage"
	"atg_engage/pkg/telegram"
	"atg_engage/pkg/textgen"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("[CONFIG] некорректная конфигурация")
	}
	logging.Setup(cfg.LogLevel, cfg.LogConsole)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Инициализация подключения к БД
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("[DB] не удалось подключиться к базе")
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("[DB] не удалось применить схему")
	}

	locks := telegram.NewAccountLocks()
	var store orchestrator.CredentialStore
	switch cfg.CredentialsSource {
	case config.SourceDir:
		store = credentials.NewDirStore(cfg.SessionsDir, cfg.APIID, cfg.APIHash, locks)
	default:
		store = credentials.NewDBStore(db, db.Conn, locks)
	}
	log.Info().Str("source", cfg.CredentialsSource).Msg("[CREDENTIALS] источник аккаунтов выбран")

	var gen orchestrator.TextGenerator
	if cfg.OpenAIKey != "" {
		g, err := textgen.New(textgen.Config{APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL})
		if err != nil {
			log.Fatal().Err(err).Msg("[OPENAI] не удалось создать клиент")
		}
		gen = g
	} else {
		log.Warn().Msg("[OPENAI] OPENAI_API_KEY не задан, комментарии будут из запасных шаблонов")
	}

	results := storage.NewResultStore(db)
	hooks := []actions.SummaryHook{results.SaveRunSummary}
	opts := orchestrator.DefaultOptions()
	opts.MaxConcurrency = cfg.MaxConcurrency
	opts.ConnectsPerSecond = cfg.ConnectsPerSecond
	opts.GracePeriod = cfg.GracePeriod
	opts.Events = orchestrator.MultiEvents{
		orchestrator.NewLogEvents(log.Logger),
		storage.NewFloodWaitRecorder(db),
	}
	opts.Sinks = []orchestrator.ResultSink{results}

	if cfg.NatsURL != "" {
		pub, err := eventbus.NewPublisher(cfg.NatsURL, cfg.NatsSubject)
		if err != nil {
			log.Fatal().Err(err).Msg("[NATS] не удалось подключиться")
		}
		defer pub.Close()
		opts.Sinks = append(opts.Sinks, pub)
		hooks = append(hooks, func(_ context.Context, s models.RunSummary) error {
			return pub.PublishSummary(s)
		})
	}

	scheduler := orchestrator.NewScheduler(store, gen, opts)
	handler := actions.NewHandler(db, scheduler, results, hooks...)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(handler, cfg.APIToken),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Остановка сервера")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	handler.Shutdown()
}

// Настройка маршрутов
func setupRouter(h *actions.Handler, token string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	actionGroup := r.Group("/actions", middleware.AuthRequired(token))
	actions.SetupRoutes(actionGroup, h)

	log.Info().Msg("[ROUTER] Routes initialized")
	return r
}
