/**
 * @description
 * Entry point for the CandicePay bot service. It loads configuration, connects
 * PostgreSQL, Redis and RabbitMQ, builds the gateway, vision and mail clients,
 * and runs the Telegram poller, the admin HTTP server, the gateway event
 * consumer and the cron scheduler until SIGINT/SIGTERM.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL pool.
 * - github.com/redis/go-redis/v9: conversation sessions and rate limiting (optional).
 * - pkg/rabbitmq: domain events and webhook fan-in (optional).
 * - golang.org/x/sync/errgroup: lifecycle of the long-running components.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/candicepay/bot-service/internal/api"
	"github.com/candicepay/bot-service/internal/app"
	"github.com/candicepay/bot-service/internal/bot"
	"github.com/candicepay/bot-service/internal/config"
	"github.com/candicepay/bot-service/internal/domain"
	"github.com/candicepay/bot-service/internal/store"
	"github.com/candicepay/bot-service/pkg/logger"
	"github.com/candicepay/bot-service/pkg/mailer"
	"github.com/candicepay/bot-service/pkg/paystack"
	"github.com/candicepay/bot-service/pkg/rabbitmq"
	"github.com/candicepay/bot-service/pkg/vision"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"logger init failed\" err=%v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zl *zap.Logger) error {
	bootLog := zl.With(zap.String("component", "bootstrap"))
	if strings.TrimSpace(cfg.BotToken) == "" {
		return errors.New("BOT_TOKEN must be configured")
	}
	if strings.TrimSpace(cfg.PaystackSecretKey) == "" {
		return errors.New("PAYSTACK_SECRET_KEY must be configured")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("DATABASE_URL must be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootLog.Info("starting candicepay bot service", zap.String("port", cfg.ServerPort), zap.String("env", cfg.AppEnv))

	// PostgreSQL
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching so pooled connections behind PgBouncer stay valid.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbpool.Close()
	if err := store.Migrate(ctx, dbpool); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	bootLog.Info("database connected")
	repository := store.NewPostgresRepository(dbpool)

	// Redis: optional; the in-memory stores take over without it.
	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute
	var (
		sessions       bot.SessionStore
		limiter        bot.RateLimiter
		sessionSweeper app.Sweeper
		limiterSweeper app.Sweeper
	)
	if redisClient := connectRedis(ctx, cfg.RedisURL, bootLog); redisClient != nil {
		defer redisClient.Close()
		sessions = app.NewRedisSessionStore(redisClient, cfg.RedisPrefix, sessionTTL)
		limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisPrefix)
	} else {
		memSessions := app.NewMemorySessionStore(sessionTTL)
		memLimiter := app.NewMemoryRateLimiter()
		sessions, sessionSweeper = memSessions, memSessions
		limiter, limiterSweeper = memLimiter, memLimiter
	}

	// RabbitMQ: optional; events are dropped and webhooks settled inline without it.
	var (
		publisher     rabbitmq.Publisher
		eventConsumer *rabbitmq.Consumer
	)
	if cfg.RabbitMQURL == "" {
		bootLog.Warn("rabbitmq url missing; using fallback publisher", zap.String("env", "RABBITMQ_URL"))
	} else {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, zl)
		if err != nil {
			bootLog.Warn("rabbitmq producer unavailable; using fallback", zap.Error(err))
		} else {
			defer producer.Close()
			publisher = producer
			consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, zl)
			if err != nil {
				return fmt.Errorf("rabbitmq consumer init: %w", err)
			}
			defer consumer.Close()
			eventConsumer = consumer
			bootLog.Info("rabbitmq connected")
		}
	}

	// Outbound clients
	outboundTimeout := time.Duration(cfg.OutboundTimeoutSeconds) * time.Second
	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, outboundTimeout)
	extractor := vision.NewClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL, cfg.DeepSeekModel, outboundTimeout)

	var notifier app.Notifier = mailer.Disabled{}
	if cfg.MailEnabled() {
		smtpMailer, err := mailer.NewSMTPMailer(mailer.Config{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUser,
			Password:  cfg.SMTPPass,
			FromEmail: cfg.SMTPFromEmail,
			FromName:  cfg.SMTPFromName,
			Timeout:   outboundTimeout,
		})
		if err != nil {
			bootLog.Warn("smtp mailer unavailable; receipts disabled", zap.Error(err))
		} else {
			notifier = smtpMailer
		}
	} else {
		bootLog.Warn("smtp not configured; receipts disabled", zap.String("env", "SMTP_HOST"))
	}

	if err := seedAdmin(ctx, repository, cfg, bootLog); err != nil {
		return err
	}

	service := app.NewService(repository, gateway, notifier, publisher, zl, cfg.PaystackPreferredBank)
	if err := service.CheckGatewayBalance(ctx); err != nil {
		bootLog.Warn("paystack balance check failed", zap.Error(err))
	}

	telegram, err := bot.NewTelegramBot(cfg.BotToken, zl)
	if err != nil {
		return err
	}
	service.SetChatNotifier(telegram)

	orchestrator := bot.NewOrchestrator(telegram, sessions, service, repository, extractor, limiter, bot.Config{
		AdminTelegramIDs:   cfg.AdminTelegramIDs,
		DashboardURL:       cfg.DomainURL,
		RateLimitPerMinute: cfg.BotRateLimitPerMinute,
	}, zl)

	// Admin web service
	adminSessions := api.NewAdminSessions()
	handler := api.NewHandler(repository, adminSessions, cfg.JWTSecret, strings.HasPrefix(cfg.DomainURL, "https://"), zl)
	webhook := api.NewWebhookHandler(cfg.PaystackSecretKey, publisher, service, zl)
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.NewRouter(handler, webhook, zl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Scheduler
	jobs := app.NewJobs(service, service, sessionSweeper, adminSessions, limiterSweeper, zl)
	scheduler := app.NewScheduler(jobs, zl, app.ScheduleConfig{
		BankRefresh: cfg.BankRefreshSchedule,
		Reconcile:   cfg.ReconcileSchedule,
	})
	// Warm the bank cache before the first payment.
	go jobs.RefreshBanks()
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return telegram.Run(gctx, orchestrator.HandleUpdate)
	})

	g.Go(func() error {
		zl.Info("server listening", zap.String("component", "http"), zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutdown started", zap.String("component", "http"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zl.Error("shutdown failed", zap.String("component", "http"), zap.Error(err))
		}
		<-scheduler.Stop().Done()
		return nil
	})

	if eventConsumer != nil {
		g.Go(func() error {
			bindings := make(map[string]rabbitmq.Handler)
			for _, key := range app.GatewayEventBindings() {
				bindings[key] = service.HandleGatewayMessage
			}
			if err := eventConsumer.ConsumeWithBindings(gctx, app.EventsExchange, cfg.EventQueue, bindings); err != nil {
				return fmt.Errorf("gateway event consumer: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	zl.Info("shutdown complete")
	return err
}

func connectRedis(ctx context.Context, url string, bootLog *zap.Logger) *redis.Client {
	if url == "" {
		bootLog.Warn("redis url missing; using in-memory sessions and rate limits", zap.String("env", "REDIS_URL"))
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		bootLog.Warn("redis url parse failed; using in-memory sessions and rate limits", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		bootLog.Warn("redis ping failed; using in-memory sessions and rate limits", zap.Error(err))
		client.Close()
		return nil
	}
	bootLog.Info("redis connected")
	return client
}

// seedAdmin creates the configured dashboard admin on first boot.
func seedAdmin(ctx context.Context, repo store.Repository, cfg config.Config, bootLog *zap.Logger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	hash, err := api.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	created, err := repo.EnsureAdmin(ctx, &domain.AdminUser{
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Email:        cfg.AdminEmail,
		Role:         domain.AdminRoleSuperAdmin,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		bootLog.Info("admin user created", zap.String("username", cfg.AdminUsername))
	}
	if cfg.AdminPassword == "admin123" {
		bootLog.Warn("admin password is the default; set ADMIN_PASSWORD")
	}
	return nil
}
