package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/savanna-pay/savanna_pay/internal/beneficiary"
	"github.com/savanna-pay/savanna_pay/internal/config"
	"github.com/savanna-pay/savanna_pay/internal/funding"
	"github.com/savanna-pay/savanna_pay/internal/ledger"
	"github.com/savanna-pay/savanna_pay/internal/middleware"
	"github.com/savanna-pay/savanna_pay/internal/notification"
	"github.com/savanna-pay/savanna_pay/internal/provider"
	"github.com/savanna-pay/savanna_pay/internal/provider/exchange"
	"github.com/savanna-pay/savanna_pay/internal/provider/mpesa"
	"github.com/savanna-pay/savanna_pay/internal/provider/tron"
	"github.com/savanna-pay/savanna_pay/internal/rates"
	"github.com/savanna-pay/savanna_pay/internal/reconcile"
	"github.com/savanna-pay/savanna_pay/internal/timeline"
	"github.com/savanna-pay/savanna_pay/internal/transaction"
	"github.com/savanna-pay/savanna_pay/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes, returning the
// reconciliation worker so main can manage its lifecycle.
func Setup(app *fiber.App, d Deps) (*reconcile.Worker, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	// Stores, with in-memory fallbacks for local development.
	var (
		records       transaction.Store
		ledgerStore   ledger.Store
		timelineStore timeline.Store
		beneRepo      beneficiary.Repository
	)
	if d.DB != nil {
		records = transaction.NewPostgresStore(d.DB)
		ledgerStore = ledger.NewPostgresStore(d.DB)
		timelineStore = timeline.NewPostgresStore(d.DB)
		beneRepo = beneficiary.NewPostgresRepository(d.DB)
	} else {
		records = transaction.NewMemory()
		ledgerStore = ledger.NewMemory(transaction.StatusLookup(records))
		timelineStore = timeline.NewMemory()
		beneRepo = beneficiary.NewMemoryRepository()
	}

	ledgerSvc := ledger.NewService(ledgerStore, d.Logger)
	recorder := timeline.NewRecorder(timelineStore)
	beneSvc := beneficiary.NewService(beneRepo)
	notifier := notification.NewLoggerNotifier(d.Logger)

	rateSvc := rates.NewService(defaultRateSource(), d.Cache, 5*time.Minute, d.Logger)

	// Provider rails.
	mpesaClient := mpesa.New(d.Cfg.Mpesa)
	exchangeClient := exchange.New(d.Cfg.Exchange)
	tronClient, err := tron.New(d.Cfg.Tron, d.Cfg.ConfirmationTimeout, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect tron: %w", err)
	}

	registry := provider.NewRegistry().
		Register(mpesaClient, provider.Capability{
			Currencies: []string{"KES"},
			Kinds:      []provider.Kind{provider.KindCollection, provider.KindPayout},
			MinAmount:  decimal.NewFromInt(1),
			MaxAmount:  decimal.NewFromInt(250000),
		})

	fundingSvc := funding.NewService(ledgerSvc, records, registry, notifier, d.Logger)
	transferSvc := transfer.NewService(ledgerSvc, records, recorder, beneSvc, rateSvc,
		exchangeClient, tronClient, notifier, transfer.Config{
			StableAsset:      d.Cfg.StableAsset,
			HotWalletAddress: d.Cfg.Tron.HotWalletAddress,
			LiquidityBuffer:  d.Cfg.LiquidityBuffer,
			MinConfirmations: d.Cfg.MinConfirmations,
			ChainProvider:    tron.Name,
		}, d.Logger)
	worker := reconcile.NewWorker(records, registry, fundingSvc, reconcile.Config{
		Interval:   d.Cfg.ReconcileInterval,
		MinAge:     d.Cfg.ReconcileMinAge,
		Timeout:    d.Cfg.ReconcileTimeout,
		MaxRetries: d.Cfg.ReconcileMaxRetries,
	}, d.Logger)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.FromCtx(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, ledger.NewHandler(ledgerSvc))
	RegisterBeneficiaryRoutes(api, beneficiary.NewHandler(beneSvc))
	RegisterTransferRoutes(api, transfer.NewHandler(transferSvc))
	RegisterFundingRoutes(api, funding.NewHandler(fundingSvc))
	RegisterReconcileRoutes(api, reconcile.NewHandler(worker))
	RegisterRateRoutes(api, rateSvc)

	return worker, nil
}

// defaultRateSource is the static table used until a market-data feed is
// configured. Rates are quoted against the bridging stable asset.
func defaultRateSource() rates.Source {
	return rates.NewStaticSource(map[string]decimal.Decimal{
		"KES/USDT": decimal.NewFromFloat(0.0077),
		"NGN/USDT": decimal.NewFromFloat(0.00065),
		"UGX/USDT": decimal.NewFromFloat(0.00027),
		"GHS/USDT": decimal.NewFromFloat(0.064),
	})
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
