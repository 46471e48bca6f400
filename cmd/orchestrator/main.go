package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loanflow/internal/assess"
	"loanflow/internal/audit"
	"loanflow/internal/common/aws"
	"loanflow/internal/common/config"
	"loanflow/internal/common/database"
	"loanflow/internal/common/logger"
	"loanflow/internal/common/observability"
	"loanflow/internal/decision"
	"loanflow/internal/gateway"
	"loanflow/internal/models"
	"loanflow/internal/notify"
	"loanflow/internal/orchestrator"
	"loanflow/internal/reasoning"
)

// retryWithBackoff attempts to execute a function with exponential backoff.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting loan workflow orchestrator",
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Audit store (Redis preferred, in-memory fallback) ---
	var auditStore audit.Store
	var redisClient *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()
		auditStore = audit.NewRedisStore(redisClient.GetClient(), time.Duration(cfg.Audit.StreamTTL)*time.Second)
		zapLog.Info("Redis connected")
	} else {
		zapLog.Warn("no Redis configured, audit trail kept in memory only")
		auditStore = audit.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore, cfg.Audit.MaskedPrefix, log)

	// --- Optional Elasticsearch audit sink ---
	if cfg.Database.Elasticsearch.Enabled {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch client failed", zap.Error(err))
		}
		if err := esClient.Ping(ctx); err != nil {
			zapLog.Warn("elasticsearch unreachable, indexing may lag", zap.Error(err))
		}
		recorder.AddSink(audit.NewElasticSink(esClient.Client, cfg.Database.Elasticsearch.Index))
		zapLog.Info("Elasticsearch audit sink enabled")
	}

	// --- Decision persistence ---
	var store *decision.Store
	if cfg.Database.Postgres.Host != "" {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		store = decision.NewStore(pg.GetDB())
		zapLog.Info("PostgreSQL connected")
	}

	// --- Notifications ---
	var notifier *notify.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		var sesClient *aws.SESClient
		var snsClient *aws.SNSClient
		if cfg.Notifications.Email.Enabled {
			sesClient, err = aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("SES client failed", zap.Error(err))
			}
		}
		if cfg.Notifications.SMS.Enabled {
			snsClient, err = aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("SNS client failed", zap.Error(err))
			}
		}
		notifier = notify.New(sesClient, snsClient, cfg.Notifications, log)
	}

	// --- Tool gateways ---
	pool := gateway.NewPool()
	gateways := make(map[string]*gateway.Gateway, len(cfg.Tools))
	for name, toolCfg := range cfg.Tools {
		gateways[name] = gateway.New(name, toolCfg, pool, recorder, log)
	}

	// --- Reasoning engine and workers ---
	engine := reasoning.NewClient(reasoning.Config{
		BaseURL:    cfg.Reasoning.BaseURL,
		APIKey:     cfg.Reasoning.APIKey,
		Timeout:    time.Duration(cfg.Reasoning.Timeout) * time.Millisecond,
		MaxRetries: cfg.Reasoning.MaxRetries,
	}, log)

	workers := buildWorkers(engine, gateways, log)

	runner := orchestrator.NewRunner(recorder, cfg.Orchestrator.RetryDelay(), log)
	synth := decision.NewSynthesizer(cfg.Orchestrator.RiskMinConfidence)

	orch := orchestrator.New(orchestrator.Config{
		SLA:                    cfg.Orchestrator.SLA(),
		StageDeadline:          cfg.Orchestrator.StageDeadline(),
		FastTrackMinConfidence: cfg.Orchestrator.FastTrackMinConfidence,
		MaxConcurrent:          cfg.Orchestrator.MaxConcurrent,
	}, workers, runner, synth, recorder, obs.Tracer(), log)

	// --- HTTP servers ---
	api := newAPIServer(orch, recorder, store, notifier, obs, log)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddress, Handler: metricsMux}
	go func() {
		zapLog.Info("metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("metrics server failed", zap.Error(err))
		}
	}()

	apiSrv := &http.Server{Addr: cfg.Server.Address, Handler: api.routes()}
	go func() {
		zapLog.Info("intake server listening", zap.String("address", cfg.Server.Address))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("intake server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	apiSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)
}

// toolOperations maps each tool service to the operations it implements.
// A gateway only ever advertises its own service's operations.
var toolOperations = map[string]map[string]string{
	"identity-verification": {
		"verify-identity": "Verify the applicant's identity from the applicant id",
	},
	"credit-bureau": {
		"credit-report": "Fetch the applicant's credit report",
	},
	"employment-verification": {
		"verify-employment": "Verify current employment and tenure",
	},
	"document-processing": {
		"extract-documents": "Extract figures from submitted income documents",
	},
	"financial-calculator": {
		"affordability": "Compute affordability and debt-to-income ratios",
		"price-loan":    "Price the loan for a given risk band",
	},
}

// toolDefs builds the tool definitions a stage advertises, one entry per
// operation the gateway's own service implements.
func toolDefs(gws []*gateway.Gateway) []reasoning.ToolDef {
	var defs []reasoning.ToolDef
	for _, gw := range gws {
		for op, desc := range toolOperations[gw.Service()] {
			defs = append(defs, reasoning.ToolDef{
				Service:     gw.Service(),
				Operation:   op,
				Description: desc,
			})
		}
	}
	return defs
}

// buildWorkers wires the fixed persona of each stage to its assigned tool
// gateways: intake gets identity verification, credit the credit bureau,
// income employment verification plus document processing, risk the
// financial calculators.
func buildWorkers(engine reasoning.Engine, gateways map[string]*gateway.Gateway, log logger.Logger) map[models.Stage]*assess.Worker {
	assigned := func(names ...string) []*gateway.Gateway {
		var out []*gateway.Gateway
		for _, name := range names {
			if gw, ok := gateways[name]; ok {
				out = append(out, gw)
			}
		}
		return out
	}

	intakeGws := assigned("identity-verification")
	creditGws := assigned("credit-bureau")
	incomeGws := assigned("employment-verification", "document-processing")
	riskGws := assigned("financial-calculator")

	return map[models.Stage]*assess.Worker{
		models.StageIntake: assess.NewWorker(
			assess.IntakePersona(toolDefs(intakeGws)), engine, intakeGws, log),
		models.StageCredit: assess.NewWorker(
			assess.CreditPersona(toolDefs(creditGws)), engine, creditGws, log),
		models.StageIncome: assess.NewWorker(
			assess.IncomePersona(toolDefs(incomeGws)), engine, incomeGws, log),
		models.StageRisk: assess.NewWorker(
			assess.RiskPersona(toolDefs(riskGws)), engine, riskGws, log),
	}
}
