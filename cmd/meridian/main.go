package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-books/meridian/internal/ap"
	"github.com/meridian-books/meridian/internal/app"
	"github.com/meridian-books/meridian/internal/ar"
	"github.com/meridian-books/meridian/internal/audit"
	"github.com/meridian-books/meridian/internal/fx"
	"github.com/meridian-books/meridian/internal/ledger/accounts"
	"github.com/meridian-books/meridian/internal/ledger/journals"
	"github.com/meridian-books/meridian/internal/ledger/periods"
	"github.com/meridian-books/meridian/internal/ledger/reports"
	"github.com/meridian-books/meridian/internal/observability"
	"github.com/meridian-books/meridian/internal/payments"
	"github.com/meridian-books/meridian/internal/platform/cache"
	"github.com/meridian-books/meridian/internal/platform/db"
	"github.com/meridian-books/meridian/internal/platform/messaging"
	"github.com/meridian-books/meridian/internal/shared"
	"github.com/meridian-books/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reports recompute every call", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	accountRepo := accounts.NewRepository(pool)

	journalRepo := journals.NewRepository(pool)
	journalService := journals.NewService(journalRepo, accountRepo, auditLogger, idempotencyStore, logger)
	if cfg.KafkaBrokers != "" {
		events := messaging.NewJournalEvents(cfg.KafkaBrokers, cfg.KafkaJournalTopic, logger)
		defer func() {
			if err := events.Close(); err != nil {
				logger.Warn("kafka close", slog.Any("error", err))
			}
		}()
		journalService = journalService.WithEvents(events)
	}

	reportService := reports.NewService(reports.NewRepository(pool), accountRepo, logger)
	if redisClient != nil {
		reportService = reportService.WithCache(cache.NewReportCache(redisClient, cfg.ReportCacheTTL, logger))
	}

	periodRepo := periods.NewRepository(pool)
	periodService := periods.NewService(
		periodRepo,
		app.JournalGateAdapter{Repo: journalRepo},
		app.TrialBalancerAdapter{Periods: periodRepo, Reports: reportService, Currency: cfg.BaseCurrency},
		auditLogger,
		approvalRecorder,
		periods.Policy{
			ApprovalThreshold:  cfg.ApprovalThreshold(),
			RequireDualControl: cfg.CloseRequireDualControl,
			LockImmediately:    cfg.CloseLockImmediately,
			AutoOpenNext:       cfg.CloseAutoOpenNext,
		},
		logger,
	)

	rateStore := fx.NewRateStore(pool)
	fxAdvisor := fx.NewAdvisor(rateStore, cfg.StalenessConfig(), cfg.BaseCurrency, logger)

	var sources []fx.SourceConfig
	if cfg.FxPrimaryURL != "" {
		sources = append(sources, fx.SourceConfig{
			Source:  fx.NewHTTPSource("primary", cfg.FxPrimaryURL),
			Tier:    fx.TierPrimary,
			Timeout: cfg.FxSourceTimeout,
			Retries: cfg.FxSourceRetries,
		})
	}
	if cfg.FxFallbackURL != "" {
		sources = append(sources, fx.SourceConfig{
			Source:  fx.NewHTTPSource("fallback", cfg.FxFallbackURL),
			Tier:    fx.TierFallback,
			Timeout: cfg.FxSourceTimeout,
			Retries: cfg.FxSourceRetries,
		})
	}
	var ingestor *fx.Ingestor
	if len(sources) > 0 {
		ingestor, err = fx.NewIngestor(sources, rateStore, cfg.FxPoolSize, logger)
		if err != nil {
			logger.Error("init fx ingestor", slog.Any("error", err))
			os.Exit(1)
		}
		defer ingestor.Release()
		if redisClient != nil {
			ingestor = ingestor.WithMirror(fx.NewRedisMirror(redisClient, 48*time.Hour))
		}
	}

	arService := ar.NewService(
		ar.NewRepository(pool),
		journalService,
		accountRepo,
		auditLogger,
		ar.ControlAccounts{Receivable: cfg.ARControlAccountID, TaxPayable: cfg.ARTaxAccountID},
		cfg.BaseCurrency,
		logger,
	).WithFxAdvisor(fxAdvisor)

	apService := ap.NewService(
		ap.NewRepository(pool),
		journalService,
		accountRepo,
		auditLogger,
		ap.ControlAccounts{Payable: cfg.APControlAccountID, InputTax: cfg.APInputTaxAccountID},
		cfg.BaseCurrency,
		logger,
	).WithFxAdvisor(fxAdvisor)

	paymentService := payments.NewService(
		payments.NewRepository(pool),
		journalService,
		accountRepo,
		app.InvoiceLedgerAdapter{Service: arService},
		app.BillLedgerAdapter{Service: apService},
		auditLogger,
		payments.ControlAccounts{Receivable: cfg.ARControlAccountID, Payable: cfg.APControlAccountID},
		logger,
	)

	auditService := audit.NewService(audit.NewRepository(pool))

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accountRepo),
		JournalsHandler: journals.NewHandler(logger, journalService),
		PeriodsHandler:  periods.NewHandler(logger, periodService),
		ReportsHandler:  reports.NewHandler(logger, reportService),
		ARHandler:       ar.NewHandler(logger, arService),
		APHandler:       ap.NewHandler(logger, apService),
		PaymentsHandler: payments.NewHandler(logger, paymentService),
		FxHandler:       fx.NewHandler(logger, fxAdvisor, ingestor, cfg.FxPairs()),
		AuditHandler:    audit.NewHandler(logger, auditService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
