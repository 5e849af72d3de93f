package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"taharah_tracker/internal/app"
	"taharah_tracker/internal/domain/cycle"
	"taharah_tracker/internal/domain/notification"
	"taharah_tracker/internal/domain/profile"
	"taharah_tracker/internal/infra/config"
	idb "taharah_tracker/internal/infra/database"
	"taharah_tracker/internal/infra/delivery"
	"taharah_tracker/internal/infra/httpapi"
	"taharah_tracker/internal/infra/logger"
	"taharah_tracker/internal/infra/memory"
	"taharah_tracker/internal/infra/scheduler"
	"taharah_tracker/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 15 * time.Second

type repositories struct {
	cycles        cycle.Repository
	notifications notification.Repository
	profiles      profile.Repository
	db            *sql.DB // nil for the memory driver
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)
	defer logger.Close()
	log := logger.Component("main")

	log.WithFields(logrus.Fields{
		"environment":    cfg.Environment,
		"storage_driver": cfg.StorageDriver,
		"admin_id":       cfg.AdminTelegramID,
	}).Info("Taharah tracker starting...")

	profile.DefaultLeadHours = cfg.DefaultLeadHours

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Could not initialize storage")
	}
	if repos.db != nil {
		defer repos.db.Close()
	}

	clock := app.SystemClock{}

	var bot *telebot.Bot
	var sender notification.Sender
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := logger.Component("telebot").WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
				}
				entry.Error("Telegram handler failed")
			},
		})
		if err != nil {
			log.WithError(err).Fatal("Could not create Telegram bot")
		}
		tgSender := telegram.NewNotificationSender(telegram.NewTelebotAdapter(bot), repos.profiles)
		sender = delivery.NewGuardedSender(tgSender, delivery.DefaultBreakerSettings("telegram"), logger.Component("delivery"))
	} else {
		log.Warn("TELEGRAM_TOKEN is not set. Reminders will only be logged.")
		sender = delivery.NewLogSender(logger.Component("delivery"))
	}

	notifService := app.NewNotificationService(repos.notifications, repos.cycles, repos.profiles, sender, clock,
		logger.Component("app"), app.NotificationConfig{
			BatchSize:       cfg.DispatchBatchSize,
			DeliveryTimeout: cfg.DeliveryTimeout,
		})
	cycleService := app.NewCycleService(repos.cycles, repos.profiles, notifService, clock, logger.Component("app"))
	retentionService := app.NewRetentionService(repos.cycles, cfg.SoftDeleteGrace, logger.Component("app"))
	adminService := app.NewAdminService(repos.notifications, clock, cfg.AdminTelegramID)

	sweeps := scheduler.NewSweepScheduler(notifService, retentionService, clock, logger.Component("scheduler"), scheduler.Config{
		DispatchSpec:    cfg.CronSpecDispatch,
		RetentionSpec:   cfg.CronSpecRetention,
		RetentionPeriod: cfg.RetentionPeriod,
		DispatchTimeout: scheduler.DispatchBudget(cfg.DispatchBatchSize, cfg.DeliveryTimeout),
	})
	if err := sweeps.Start(); err != nil {
		log.WithError(err).Fatal("Could not start sweep scheduler")
	}

	if bot != nil {
		telegram.NewBotCommands(cycleService, repos.profiles, clock, cfg.AdminTelegramID, logger.Component("telegram")).Register(ctx, bot)
		telegram.NewAdminCommands(adminService, cfg.AdminTelegramID, logger.Component("telegram")).Register(ctx, bot)
		go bot.Start()
		log.Info("Telegram bot started.")
	}

	handler := httpapi.NewHandler(cycleService, notifService, repos.profiles, clock, logger.Component("http"))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	if bot != nil {
		bot.Stop()
	}
	sweeps.Stop()
	log.Info("Application shut down gracefully.")
}

func openRepositories(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*repositories, error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("Using in-memory storage. Data is lost on restart.")
		return &repositories{
			cycles:        memory.NewCycleRepository(),
			notifications: memory.NewNotificationRepository(),
			profiles:      memory.NewProfileRepository(),
		}, nil
	}

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := idb.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Database connection established and schema applied.")
	return &repositories{
		cycles:        idb.NewPostgresCycleRepository(db),
		notifications: idb.NewPostgresNotificationRepository(db),
		profiles:      idb.NewPostgresProfileRepository(db),
		db:            db,
	}, nil
}
