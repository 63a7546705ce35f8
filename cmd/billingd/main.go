// Command billingd runs the billing webhook processor, the checkout and
// portal API and the background worker behind them.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billing/pkg/archive"
	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/billing/paddle"
	"github.com/dmitrymomot/billing/pkg/billing/pgstore"
	"github.com/dmitrymomot/billing/pkg/billing/redisledger"
	"github.com/dmitrymomot/billing/pkg/clientip"
	"github.com/dmitrymomot/billing/pkg/config"
	"github.com/dmitrymomot/billing/pkg/email"
	"github.com/dmitrymomot/billing/pkg/environment"
	"github.com/dmitrymomot/billing/pkg/httpserver"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/notifications"
	"github.com/dmitrymomot/billing/pkg/pg"
	"github.com/dmitrymomot/billing/pkg/queue"
	"github.com/dmitrymomot/billing/pkg/ratelimit"
	"github.com/dmitrymomot/billing/pkg/redis"
	"github.com/dmitrymomot/billing/pkg/requestid"
	"github.com/dmitrymomot/billing/pkg/secrets"
	"github.com/dmitrymomot/billing/pkg/webhook"
	"github.com/dmitrymomot/billing/svc/billingsvc"
)

type appConfig struct {
	Env         string `env:"ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"billingd"`
	LogLevel    string `env:"LOG_LEVEL"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("billingd stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}
	env := environment.Parse(app.Env)
	log, err := newLogger(app, env)
	if err != nil {
		return err
	}
	logger.SetAsDefault(log)

	var (
		pgCfg      pg.Config
		billingCfg billing.Config
		paddleCfg  paddle.Config
		emailCfg   email.Config
		svcCfg     billingsvc.Config
		queueCfg   queue.Config
		httpCfg    httpserver.Config
		archiveCfg archive.Config
	)
	if err := errors.Join(
		config.Load(&pgCfg),
		config.Load(&billingCfg),
		config.Load(&paddleCfg),
		config.Load(&emailCfg),
		config.Load(&svcCfg),
		config.Load(&queueCfg),
		config.Load(&httpCfg),
		config.Load(&archiveCfg),
	); err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}
	checks := map[string]httpserver.Check{"postgres": pg.Healthcheck(pool)}

	catalog, err := billingCfg.LoadCatalog()
	if err != nil {
		return err
	}
	verifier, err := billing.NewVerifierFromConfig(ctx, billingCfg, env, log)
	if err != nil {
		return err
	}
	var rdb *goredis.Client
	if billingCfg.Ledger == "redis" || svcCfg.RateLimitStore == "redis" {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		if rdb, err = redis.Connect(ctx, redisCfg); err != nil {
			return err
		}
		defer closeRedis(rdb, log)
		checks["redis"] = redis.Healthcheck(rdb)
	}
	ledger, err := newLedger(ctx, billingCfg, pool, rdb, log)
	if err != nil {
		return err
	}
	limiter, err := newRateLimiter(svcCfg, rdb)
	if err != nil {
		return err
	}

	provider, err := paddle.New(paddleCfg)
	if err != nil {
		return err
	}
	store := pgstore.NewStore(pool)
	validator := pgstore.NewPlanChangeValidator(pool)
	if err := validator.SyncCatalog(ctx, catalog); err != nil {
		return err
	}

	queueStorage, err := newQueueStorage(queueCfg, pool)
	if err != nil {
		return err
	}
	enqueuer, err := queue.NewEnqueuer(queueStorage, queue.WithDefaultMaxAttempts(queueCfg.MaxAttempts))
	if err != nil {
		return err
	}

	sender, err := email.NewSenderFromConfig(emailCfg, log)
	if err != nil {
		return err
	}
	if emailCfg.DashboardURL == "" {
		emailCfg.DashboardURL = svcCfg.DashboardURL
	}
	inbox := notifications.NewManager(
		notifications.NewPostgresStorage(pool),
		email.NewDeliverer(sender, billingsvc.NewRecipientLookup(store,
			billingsvc.NewCachedEmailSource(provider, svcCfg.EmailCacheSize, svcCfg.EmailCacheTTL)), emailCfg),
		notifications.WithManagerLogger(log),
	)
	notifier := billingsvc.NewNotifier(inbox,
		billingsvc.WithNoticeQueue(enqueuer, svcCfg.NoticesQueue),
		billingsvc.WithDashboardURL(svcCfg.DashboardURL),
		billingsvc.WithNotifierLogger(log),
	)

	alerter := billingsvc.NewAlerter(newAlertSender(svcCfg, app.ServiceName), svcCfg.AlertURL, log)

	dispatcher := billing.NewDispatcher(store, catalog,
		billing.WithNotifier(notifier),
		billing.WithAlerter(alerter),
		billing.WithPeriodSource(provider),
		billing.WithPeriodFetchTimeout(billingCfg.PeriodFetchTimeout),
		billing.WithDispatcherLogger(log),
	)
	processorOpts := []billing.ProcessorOption{
		billing.WithRetryScheduler(billingsvc.NewRetryScheduler(enqueuer, svcCfg.EventsQueue, queueCfg.MaxAttempts, log)),
		billing.WithProcessorAlerter(alerter),
		billing.WithProcessorLogger(log),
	}
	archiveStore, err := archive.NewFromConfig(ctx, archiveCfg)
	if err != nil {
		return err
	}
	if archiveStore != nil {
		processorOpts = append(processorOpts, billing.WithEventArchive(billingsvc.NewEventArchiver(archiveStore, archiveCfg.Timeout)))
		log.InfoContext(ctx, "event archive enabled", slog.String("backend", archiveCfg.Backend))
	}
	processor := billing.NewProcessor(verifier, ledger, dispatcher, processorOpts...)
	sessions := billing.NewSessions(store, catalog,
		billing.NewPlanChangeGuard(validator),
		billing.NewCustomerResolver(store, provider, log),
		provider,
		billing.WithCheckoutEnvironment(paddleCfg.Environment),
		billing.WithSessionsLogger(log),
	)
	svc := billing.NewService(processor, sessions, store)

	worker, err := queue.NewWorker(queueStorage,
		queue.WithQueues(svcCfg.EventsQueue, svcCfg.NoticesQueue),
		queue.WithPullInterval(queueCfg.PollInterval),
		queue.WithLockTimeout(queueCfg.LockTimeout),
		queue.WithMaxConcurrentTasks(queueCfg.MaxConcurrentTasks),
		queue.WithDeadLetterHook(billingsvc.NewDeadLetterHook(alerter, log)),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		return err
	}
	worker.RegisterHandlers(billingsvc.NewReapplyHandler(svc), notifier.Handler())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	server := billingsvc.NewServer(svc, svcCfg,
		billingsvc.WithLogger(log),
		billingsvc.WithIdentityResolver(billingsvc.NewHeaderResolver(svcCfg.UserIDHeader, svcCfg.UserEmailHeader)),
		billingsvc.WithMetrics(billingsvc.NewMetrics(reg), reg),
		billingsvc.WithHealthChecks(checks),
		billingsvc.WithNotifications(inbox),
		billingsvc.WithCatalog(catalog),
		billingsvc.WithRateLimiter(limiter),
	)
	httpSrv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	log.InfoContext(ctx, "billingd starting",
		slog.String("addr", httpCfg.Addr),
		slog.String("ledger", billingCfg.Ledger),
		slog.String("queue_storage", queueCfg.Storage))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(gctx))
	g.Go(func() error {
		return httpSrv.Run(gctx, environment.Middleware(env)(server.Router()))
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.InfoContext(ctx, "billingd stopped")
	return nil
}

func newLogger(app appConfig, env environment.Environment) (*slog.Logger, error) {
	opts := []logger.Option{
		logger.WithEnvironment(env, app.ServiceName),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			clientip.LoggerExtractor(),
			environment.LoggerExtractor(),
		),
	}
	if app.LogLevel != "" {
		level, err := logger.ParseLevel(app.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, logger.WithLevel(level))
	}
	return logger.New(opts...), nil
}

// migrate applies every schema set, each tracked in its own version table.
func migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	sets := []struct {
		table string
		apply func(pg.Config) error
	}{
		{pgstore.MigrationsTable, func(c pg.Config) error {
			return pg.Migrate(ctx, pool, c, pgstore.Migrations, pgstore.MigrationsDir, log)
		}},
		{queue.MigrationsTable, func(c pg.Config) error {
			return pg.Migrate(ctx, pool, c, queue.Migrations, queue.MigrationsDir, log)
		}},
		{notifications.MigrationsTable, func(c pg.Config) error {
			return pg.Migrate(ctx, pool, c, notifications.Migrations, notifications.MigrationsDir, log)
		}},
	}
	for _, set := range sets {
		c := cfg
		c.MigrationsTable = set.table
		if err := set.apply(c); err != nil {
			return fmt.Errorf("migrate %s: %w", set.table, err)
		}
	}
	return nil
}

func newLedger(ctx context.Context, cfg billing.Config, pool *pgxpool.Pool, rdb *goredis.Client, log *slog.Logger) (billing.Ledger, error) {
	var sealer *secrets.Sealer
	if cfg.LedgerKey != "" {
		var err error
		if sealer, err = secrets.NewSealer([]byte(cfg.LedgerKey), pgstore.LedgerSealPurpose); err != nil {
			return nil, err
		}
	}
	switch cfg.Ledger {
	case "redis":
		var opts []redisledger.Option
		if sealer != nil {
			opts = append(opts, redisledger.WithPayloadSealer(sealer))
		}
		return redisledger.New(rdb, opts...), nil
	case "memory":
		log.WarnContext(ctx, "billing ledger is in memory, duplicates are only suppressed until restart")
		return billing.NewMemoryLedger(), nil
	default:
		var opts []pgstore.LedgerOption
		if sealer != nil {
			opts = append(opts, pgstore.WithPayloadSealer(sealer))
		}
		return pgstore.NewLedger(pool, opts...), nil
	}
}

// newRateLimiter returns nil when limiting is disabled.
func newRateLimiter(cfg billingsvc.Config, rdb *goredis.Client) (ratelimit.Limiter, error) {
	if cfg.RateLimit == 0 {
		return nil, nil
	}
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimitStore == "redis" {
		store = ratelimit.NewRedisStore(rdb)
	}
	tb, err := ratelimit.NewTokenBucket(store, cfg.RateLimit, time.Minute,
		ratelimit.WithBurst(cfg.RateBurst),
		ratelimit.WithKeyPrefix("billing:ratelimit:"))
	if err != nil {
		return nil, err
	}
	return tb, nil
}

func closeRedis(client *goredis.Client, log *slog.Logger) {
	if err := client.Close(); err != nil {
		log.Error("failed to close redis client", logger.Error(err))
	}
}

type queueStorage interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
}

func newQueueStorage(cfg queue.Config, pool *pgxpool.Pool) (queueStorage, error) {
	switch cfg.Storage {
	case "postgres", "":
		return queue.NewPostgresStorage(pool), nil
	case "memory":
		return queue.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown queue storage %q", cfg.Storage)
	}
}

func newAlertSender(cfg billingsvc.Config, service string) billingsvc.WebhookSender {
	if cfg.AlertURL == "" {
		return nil
	}
	return webhook.NewSender(
		webhook.WithSigningSecret(cfg.AlertSecret),
		webhook.WithRetries(3, webhook.DefaultBackoff()),
		webhook.WithCircuitBreaker(webhook.NewCircuitBreaker(5, 2, 30*time.Second)),
		webhook.WithTimeout(10*time.Second),
		webhook.WithUserAgent(service),
	)
}
