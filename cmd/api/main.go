package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"agrilend-settlement/internal/adapter/collab/attest"
	"agrilend-settlement/internal/adapter/collab/httpcollab"
	"agrilend-settlement/internal/adapter/collab/oraclecache"
	httpadp "agrilend-settlement/internal/adapter/http"
	mw "agrilend-settlement/internal/adapter/middleware"
	"agrilend-settlement/internal/adapter/repository/mysql"
	"agrilend-settlement/internal/config"
	"agrilend-settlement/internal/infrastructure/cache"
	"agrilend-settlement/internal/infrastructure/db"
	"agrilend-settlement/internal/usecase/accounting"
	"agrilend-settlement/internal/usecase/liquidation"
	"agrilend-settlement/internal/usecase/reconcile"
	"agrilend-settlement/internal/usecase/repayment"
	"agrilend-settlement/internal/usecase/risk"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	gdb, err := db.OpenGorm(cfg.MySQLDSN())
	if err != nil {
		logger.Error("open mysql", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	rdb, err := cache.OpenRedis(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Error("open redis", "error", err)
		os.Exit(1)
	}

	// Collaborators.
	hc := &http.Client{Timeout: 10 * time.Second}
	registry := httpcollab.NewRegistryClient(cfg.RegistryBaseURL, hc)
	oracle := oraclecache.New(
		httpcollab.NewOracleClient(cfg.OracleBaseURL, hc),
		rdb, time.Duration(cfg.OracleCacheTTLSecs)*time.Second)
	rail := httpcollab.NewRailClient(cfg.RailBaseURL, hc)
	treasury := httpcollab.NewTreasuryClient(cfg.TreasuryBaseURL, hc)
	signer, err := attest.NewLocalSigner(cfg.AttestationKeyHex)
	if err != nil {
		logger.Error("attestation signer", "error", err)
		os.Exit(1)
	}
	logger.Info("attestation signer ready", "address", signer.Address())

	acctParams := accounting.Params{
		PenaltyRateMonthlyBps:  cfg.PenaltyRateMonthlyBps,
		PenaltyCapBps:          cfg.PenaltyCapBps,
		ProtocolFeeBps:         cfg.ProtocolFeeBps,
		OverpayToleranceBps:    cfg.OverpayToleranceBps,
		EarlyRepayTermFraction: cfg.EarlyRepayTermFraction,
		EarlyRepayDiscountBps:  cfg.EarlyRepayDiscountBps,
	}
	riskParams := risk.Params{
		GracePeriodDays:      cfg.GracePeriodDays,
		HealthRatioThreshold: cfg.HealthRatioThreshold,
	}

	u := mysql.NewGormUoW(gdb)
	repayUC := repayment.NewUsecase(u, registry, rail, treasury, acctParams, cfg.MinRepaymentUnits, logger)
	liqUC := liquidation.NewUsecase(u, registry, oracle, signer, treasury,
		riskParams, acctParams, cfg.MinOracleConfidence, cfg.LiquidationWallet, logger)

	// Background loops.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := reconcile.NewWorker(mysql.NewReconcileRepository(gdb), treasury, registry, rail,
		time.Duration(cfg.ReconcileIntervalSecs)*time.Second, cfg.ReconcileMaxAttempts, logger)
	go worker.Start(ctx)

	if cfg.MonitorIntervalSecs > 0 {
		monitor := liquidation.NewMonitor(liqUC, time.Duration(cfg.MonitorIntervalSecs)*time.Second, logger)
		go monitor.Start(ctx)
	}

	// HTTP surface.
	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.Logger(), middleware.Recover())

	h := httpadp.NewHandler()
	lh := httpadp.NewLoanHandler(repayUC)
	qh := httpadp.NewLiquidationHandler(liqUC)
	idem := mw.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second)

	e.GET("/health", h.Health)

	e.POST("/loans", lh.CreateLoan, idem)
	e.GET("/loans/:loan_id", lh.GetLoan)
	e.POST("/loans/:loan_id/submit", lh.SubmitLoan, idem)
	e.POST("/loans/:loan_id/approve", lh.ApproveLoan, idem)
	e.POST("/loans/:loan_id/disburse", lh.DisburseLoan, idem)
	e.POST("/loans/:loan_id/default", lh.MarkDefaulted, idem)
	e.POST("/loans/:loan_id/repayments", lh.RecordRepayment, idem)
	e.GET("/loans/:loan_id/summary", lh.GetSummary)
	e.GET("/loans/:loan_id/early-discount", lh.GetEarlyDiscount)

	e.GET("/loans/:loan_id/eligibility", qh.CheckEligibility)
	e.GET("/liquidations/eligible", qh.ListEligible)
	e.POST("/loans/:loan_id/liquidate", qh.Trigger, idem)
	e.POST("/loans/:loan_id/liquidate/emergency", qh.Emergency, idem)
	e.POST("/liquidations/bulk", qh.TriggerBulk, idem)
	e.GET("/loans/:loan_id/liquidation", qh.GetRecord)
	e.GET("/liquidations/stats", qh.Stats)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := ":" + cfg.AppPort
	logger.Info("listening", "addr", addr)
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
