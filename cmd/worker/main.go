// Package main - точка входа фонового процесса (Worker) Campus Attendance Hub.
//
// Worker отвечает за фоновый цикл посещаемости:
// - Опрос campus API и пересчёт прогресса по каждому отслеживаемому событию
// - Переклассификация статусов сессий по расписанию
// - Выдача кодов самоотметки при старте сессий
// - Детектирование студентов в зоне риска и отправка алертов
// - Очистка истёкших кодов самоотметки
//
// Философия: посещаемость отмечается синхронно и идемпотентно, а всё
// производное (снапшоты прогресса, алерты, коды) пересчитывается здесь,
// в фоне, чтобы чтение прогресса никогда не ждало campus API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/campus-hub/campus-attendance-hub/config"
	"github.com/campus-hub/campus-attendance-hub/internal/application/command"
	"github.com/campus-hub/campus-attendance-hub/internal/application/eventhandler"
	"github.com/campus-hub/campus-attendance-hub/internal/application/refresh"
	"github.com/campus-hub/campus-attendance-hub/internal/domain/shared"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/external/campus"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/external/webhook"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/messaging"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/persistence/postgres"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/persistence/projections"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/persistence/redis"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/scheduler"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/scheduler/jobs"
	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/service"
	"github.com/campus-hub/campus-attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Campus Attendance Hub Worker",
		"env", string(cfg.App.Environment),
		"debug", cfg.App.Debug,
		"events", cfg.Attendance.EventIDs,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	// Проверяем соединение
	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var progressCache *redis.ProgressCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			// Без Redis worker живёт: прогресс остаётся в снапшотах
			// координаторов, а roster-проверки идут к campus API напрямую.
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			progressCache = redis.NewProgressCache(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ РЕПОЗИТОРИЕВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	sessionRepo := postgres.NewSessionRepository(dbConn)
	markRepo := postgres.NewAttendanceRepository(dbConn)
	strategyRepo := postgres.NewStrategyRepository(dbConn)
	checkinRepo := postgres.NewCheckinCodeRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ИНИЦИАЛИЗАЦИЯ EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log
	localBusConfig.AsyncMode = true

	var eventBus closableEventBus
	if cfg.Redis.DistributedBus && redisCache != nil {
		redisBus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redis.NewPubSubBridge(redisCache),
			LocalBusConfig: localBusConfig,
			Logger:         log,
		})
		if err != nil {
			return fmt.Errorf("failed to start distributed event bus: %w", err)
		}
		eventBus = redisBus
		log.Info("distributed event bus started")
	} else {
		eventBus = messaging.NewInMemoryEventBus(localBusConfig)
	}
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ИНИЦИАЛИЗАЦИЯ ВНЕШНИХ КЛИЕНТОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing external clients...")

	// Campus Platform API Client
	campusConfig := campus.DefaultClientConfig(cfg.Campus.BaseURL)
	campusConfig.APIKey = cfg.Campus.APIKey
	campusConfig.Timeout = cfg.Campus.RequestTimeout
	campusConfig.Logger = log
	campusConfig.RateLimiterConfig.RequestsPerSecond = float64(cfg.Campus.RateLimit) / 60.0
	campusConfig.RateLimiterConfig.BurstSize = cfg.Campus.RateLimitBurst
	campusConfig.RetryConfig.MaxRetries = cfg.Campus.MaxRetries
	campusConfig.RetryConfig.InitialBackoff = cfg.Campus.RetryBaseDelay
	campusConfig.RetryConfig.MaxBackoff = cfg.Campus.RetryMaxDelay
	campusConfig.CircuitBreakerConfig.FailureThreshold = cfg.Campus.CircuitBreakerThreshold
	campusConfig.CircuitBreakerConfig.Timeout = cfg.Campus.CircuitBreakerTimeout
	campusConfig.CircuitBreakerConfig.HalfOpenMaxRetries = cfg.Campus.CircuitBreakerHalfOpenMax
	campusClient := campus.NewClient(campusConfig)

	// Сервисный аккаунт: вход по email/паролю, если статический ключ не задан
	if cfg.Campus.APIKey == "" && cfg.Campus.Email != "" {
		if _, err := campusClient.Authenticate(ctx, cfg.Campus.Email, cfg.Campus.Password); err != nil {
			return fmt.Errorf("campus API authentication failed: %w", err)
		}
		log.Info("campus API service account authenticated")
	}

	// Webhook для алертов (опционально)
	var alertSender service.AlertSender
	if cfg.Webhook.URL != "" {
		webhookConfig := webhook.DefaultClientConfig(cfg.Webhook.URL)
		webhookConfig.AuthToken = cfg.Webhook.AuthToken
		webhookConfig.Timeout = cfg.Webhook.Timeout
		webhookConfig.RetryAttempts = cfg.Webhook.RetryAttempts
		webhookConfig.RetryDelay = cfg.Webhook.RetryDelay
		webhookConfig.Logger = log
		webhookConfig.Debug = cfg.App.Debug
		alertSender = webhook.NewClient(webhookConfig)
		log.Info("alert webhook configured")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. КОМАНДЫ И СЕРВИСЫ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing command handlers...")

	// Зеркалирующий адаптер: campus API сверху, Postgres-зеркало снизу
	sourceAdapter := service.NewCampusSourceAdapter(
		campusClient,
		sessionRepo,
		markRepo,
		strategyRepo,
		redisCache,
		log,
	)

	markHandler := command.NewMarkAttendanceHandler(sessionRepo, markRepo, eventBus)

	if cfg.Features.IsEnabled(config.FeatureMarkingBulk, nil) {
		bulkHandler := command.NewBulkMarkAttendanceHandler(markHandler, sourceAdapter, eventBus)
		_ = bulkHandler // вызывается интерфейсным слоем; worker держит его прогретым
	}

	checkinVerifier := service.NewCheckinVerifier(checkinRepo, markHandler, log).
		WithCodeTTL(cfg.Attendance.CheckinCodeTTL)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. КООРДИНАТОРЫ ПРОГРЕССА (один на событие)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting progress coordinators...", "events", len(cfg.Attendance.EventIDs))

	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  coordinatorLogLevel(cfg),
	})

	autoRefresh := cfg.Features.IsEnabled(config.FeatureRefreshAuto, nil)

	coordinators := make([]*refresh.Coordinator, 0, len(cfg.Attendance.EventIDs))
	coordinatorJobs := make([]jobs.EventCoordinator, 0, len(cfg.Attendance.EventIDs))
	progressViews := make([]jobs.ProgressView, 0, len(cfg.Attendance.EventIDs))

	for _, eventID := range cfg.Attendance.EventIDs {
		view := projections.NewProgressView(eventID)
		view.Bind(eventBus)

		sinks := []refresh.ViewCache{view}
		if progressCache != nil && cfg.Features.IsEnabled(config.FeatureProgressCache, nil) {
			sinks = append(sinks, progressCache)
		}

		coordinator := refresh.NewCoordinator(sourceAdapter, refresh.Config{
			EventID:   eventID,
			Interval:  cfg.Scheduler.RefreshInterval,
			Logger:    appLog,
			Publisher: eventBus,
			ViewCache: projections.NewSnapshotFanout(sinks...),
		})

		if autoRefresh {
			coordinator.Start(ctx)
		}

		coordinators = append(coordinators, coordinator)
		coordinatorJobs = append(coordinatorJobs, coordinator)
		progressViews = append(progressViews, coordinator)
	}
	defer func() {
		log.Info("stopping progress coordinators...")
		for _, c := range coordinators {
			c.Stop()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 11. ОБРАБОТЧИКИ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("subscribing event handlers...")

	// Обработчики идут через диспетчер: ретраи, recovery и DLQ для
	// побочных эффектов, которые не должны ронять публикацию события.
	dispatcherConfig := messaging.DefaultDispatcherConfig(eventBus)
	dispatcherConfig.Logger = log
	dispatcher := messaging.NewDispatcher(dispatcherConfig)
	dispatcher.Use(messaging.RecoveryMiddleware(log))
	if cfg.App.Debug {
		dispatcher.Use(messaging.LoggingMiddleware(log))
	}

	refresher := &refreshFanout{coordinators: coordinators}

	// Типизированный nil в интерфейсе прошёл бы проверку cache != nil
	// внутри обработчиков.
	var cacheSink eventhandler.ProgressCache
	if progressCache != nil && cfg.Features.IsEnabled(config.FeatureProgressCache, nil) {
		cacheSink = progressCache
	}

	markedHandler := eventhandler.NewOnAttendanceMarkedHandler(
		cacheSink, refresher, log, eventhandler.DefaultAttendanceMarkedConfig(),
	)
	if err := dispatcher.Register(shared.EventAttendanceMarked, "attendance-marked", markedHandler.Handle); err != nil {
		return fmt.Errorf("failed to register attendance handler: %w", err)
	}

	completedHandler := eventhandler.NewOnSessionCompletedHandler(
		markRepo, cacheSink, refresher, log, eventhandler.DefaultSessionCompletedConfig(),
	)
	if err := dispatcher.Register(shared.EventSessionCompleted, "session-completed", completedHandler.Handle); err != nil {
		return fmt.Errorf("failed to register session completed handler: %w", err)
	}

	if cfg.Features.CheckinEnabled(nil) {
		var announcer eventhandler.CodeAnnouncer
		if alertSender != nil {
			announcer = service.NewWebhookCodeAnnouncer(alertSender, log)
		}
		startedHandler := eventhandler.NewOnSessionStartedHandler(
			checkinVerifier, announcer, log, eventhandler.DefaultSessionStartedConfig(),
		)
		if err := dispatcher.Register(shared.EventSessionStarted, "session-started", startedHandler.Handle); err != nil {
			return fmt.Errorf("failed to register session started handler: %w", err)
		}
	}

	if cfg.Features.IsEnabled(config.FeatureAlertAtRisk, nil) {
		notifier := service.NewWebhookAtRiskNotifier(alertSender, log)
		atRiskHandler := eventhandler.NewOnStudentAtRiskHandler(
			notifier, log, eventhandler.DefaultStudentAtRiskConfig(),
		)
		if err := dispatcher.Register(shared.EventStudentAtRisk, "at-risk-alert", atRiskHandler.Handle); err != nil {
			return fmt.Errorf("failed to register at-risk handler: %w", err)
		}
	}

	if cfg.Features.IsEnabled(config.FeatureAlertRefreshFailure, nil) {
		failureAlerter := service.NewRefreshFailureAlerter(alertSender, log)
		if err := dispatcher.Register(shared.EventRefreshFailed, "refresh-failure-alert", failureAlerter.Handle); err != nil {
			return fmt.Errorf("failed to register refresh failure handler: %w", err)
		}
	}

	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. SCHEDULER И ФОНОВЫЕ ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		log.Info("starting scheduler...")
		sched = scheduler.NewScheduler(scheduler.SchedulerConfig{
			Logger:            log,
			Timezone:          cfg.App.Location,
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		})

		var refreshLocker jobs.RefreshLocker
		if redisCache != nil && cfg.Features.IsEnabled(config.FeatureRefreshDistributedLock, nil) {
			refreshLocker = redis.NewRefreshLock(redisCache)
		}

		refreshJob := jobs.NewRefreshAttendanceJob(
			coordinatorJobs, refreshLocker, log,
			jobs.RefreshAttendanceConfig{Timeout: cfg.Scheduler.JobTimeout},
		)
		if err := sched.Register(refreshJob, scheduler.NewIntervalSchedule(cfg.Scheduler.RefreshInterval)); err != nil {
			return fmt.Errorf("failed to register refresh job: %w", err)
		}

		transitionsConfig := jobs.DefaultSessionTransitionsConfig(cfg.Attendance.EventIDs)
		transitionsConfig.Timeout = cfg.Scheduler.JobTimeout
		transitionsJob := jobs.NewSessionTransitionsJob(sessionRepo, eventBus, log, transitionsConfig)
		if err := sched.Register(transitionsJob, scheduler.NewIntervalSchedule(cfg.Scheduler.SessionTransitionsInterval)); err != nil {
			return fmt.Errorf("failed to register transitions job: %w", err)
		}

		atRiskConfig := jobs.DefaultAtRiskScanConfig()
		atRiskConfig.Timeout = cfg.Scheduler.JobTimeout
		atRiskJob := jobs.NewAtRiskScanJob(progressViews, eventBus, log, atRiskConfig)
		if err := sched.Register(atRiskJob, scheduler.NewIntervalSchedule(cfg.Scheduler.AtRiskScanInterval)); err != nil {
			return fmt.Errorf("failed to register at-risk job: %w", err)
		}

		cleanupJob := jobs.NewCleanupExpiredJob(checkinRepo, log, jobs.DefaultCleanupExpiredConfig())
		if err := sched.Register(cleanupJob, scheduler.NewIntervalSchedule(cfg.Scheduler.CleanupInterval)); err != nil {
			return fmt.Errorf("failed to register cleanup job: %w", err)
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled, background jobs will not run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Campus Attendance Hub Worker is running",
		"events", len(coordinators),
		"auto_refresh", autoRefresh,
	)

	// Ожидаем сигнал завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	// Начинаем graceful shutdown
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Error("scheduler stop failed", "error", err)
		}
	}

	if err := dispatcher.Stop(); err != nil {
		log.Error("dispatcher stop failed", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// closableEventBus — шина событий с управляемым жизненным циклом.
// Её реализуют и локальная, и распределённая шина.
type closableEventBus interface {
	shared.EventBus
	Close() error
}

// refreshFanout запрашивает внеплановый пересчёт у всех координаторов.
// Событие отметки не знает, какой координатор отвечает за его событие,
// а лишний запрос координатор сам схлопнет в идущий цикл.
type refreshFanout struct {
	coordinators []*refresh.Coordinator
}

// Refresh реализует интерфейс eventhandler.RefreshRequester.
func (f *refreshFanout) Refresh(ctx context.Context) bool {
	started := false
	for _, c := range f.coordinators {
		if c.Refresh(ctx) {
			started = true
		}
	}
	return started
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	switch cfg.Observability.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Текстовый формат для development (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// coordinatorLogLevel согласует уровень внутреннего логгера координаторов
// с уровнем основного логгера.
func coordinatorLogLevel(cfg *config.Config) logger.Level {
	if cfg.App.Debug || cfg.Observability.LogLevel == "debug" {
		return logger.LevelDebug
	}
	return logger.LevelInfo
}
