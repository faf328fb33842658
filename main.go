package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/api"
	"github.com/linlinbupt123-crypto/treasury_service/audit"
	"github.com/linlinbupt123-crypto/treasury_service/chain"
	"github.com/linlinbupt123-crypto/treasury_service/config"
	"github.com/linlinbupt123-crypto/treasury_service/db"
	"github.com/linlinbupt123-crypto/treasury_service/domain"
	"github.com/linlinbupt123-crypto/treasury_service/logger"
	"github.com/linlinbupt123-crypto/treasury_service/queue"
	"github.com/linlinbupt123-crypto/treasury_service/rates"
	"github.com/linlinbupt123-crypto/treasury_service/repository"
	"github.com/linlinbupt123-crypto/treasury_service/service"
	"github.com/linlinbupt123-crypto/treasury_service/worker"
)

func main() {
	// .env 可选
	_ = godotenv.Load()

	cfgPath := os.Getenv("TREASURY_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("treasury service exited", zap.Error(err))
	}
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. MongoDB
	mongoRepo, err := db.NewMongoRepo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() { _ = mongoRepo.Close(context.Background()) }()

	walletRepo := repository.NewWalletRepo(mongoRepo.WalletColl)
	whitelistRepo := repository.NewWhitelistRepo(mongoRepo.WhitelistColl)
	withdrawalRepo := repository.NewWithdrawalRepo(mongoRepo.WithdrawalColl)
	auditRecorder := audit.NewMongoRecorder(mongoRepo.AuditColl)

	for _, ix := range []interface{ EnsureIndexes(context.Context) error }{
		walletRepo, whitelistRepo, withdrawalRepo, auditRecorder,
	} {
		if err := ix.EnsureIndexes(ctx); err != nil {
			return err
		}
	}

	// 2. Redis 队列
	rdb, err := db.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()
	jobs := queue.NewRedisQueue(rdb, cfg.Redis.Prefix)

	// 3. 签名 + 链
	registry, err := chain.NewRegistry(cfg.Chains)
	if err != nil {
		return err
	}
	keyring, err := domain.OpenKeyring(cfg.Keyring.SeedFile, os.Getenv(cfg.Keyring.PassphraseEnv))
	if err != nil {
		return err
	}
	defer keyring.Close()
	signer, err := keyring.Address(cfg.Treasury.SigningKeyRef)
	if err != nil {
		return err
	}
	lg.Info("treasury signer loaded", zap.String("key_ref", cfg.Treasury.SigningKeyRef), zap.String("address", signer))
	if err := worker.VerifySigner(ctx, walletRepo, signer); err != nil {
		return err
	}

	chains, err := chain.Dial(ctx, registry, keyring, lg)
	if err != nil {
		return err
	}
	defer chains.Close()

	rateConverter := rates.NewOKXConverter(cfg.Rates.BaseURL, cfg.Timeouts.Rate, cfg.Rates.CacheTTL, cfg.Rates.Pegged, lg)

	// 4. service
	opts, err := service.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	svc := service.NewTreasuryService(service.Deps{
		Wallets:     walletRepo,
		Whitelist:   whitelistRepo,
		Withdrawals: withdrawalRepo,
		Balances:    chains,
		Rates:       rateConverter,
		Audit:       auditRecorder,
		Queue:       jobs,
		Registry:    registry,
	}, opts, lg)

	// 5. executor
	executor := worker.NewExecutor(withdrawalRepo, walletRepo, chains, registry, auditRecorder, worker.ExecutorConfig{
		SigningKeyRef:    cfg.Treasury.SigningKeyRef,
		SignerAddress:    signer,
		BroadcastTimeout: cfg.Executor.BroadcastTimeout,
		AuditTimeout:     cfg.Timeouts.Audit,
	}, lg)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	pool := worker.NewPool(jobs, executor, cfg.Executor.Workers, cfg.Executor.DequeueTimeout, lg)
	pool.Start(workerCtx)

	sweeper := worker.NewSweeper(withdrawalRepo, jobs, cfg.Executor.SweepInterval, cfg.Executor.StuckAfter, lg)
	go sweeper.Start(workerCtx)

	// 6. Gin
	gin.SetMode(cfg.Server.Mode)
	superAdmins := api.NewSuperAdmins(cfg.Treasury.SuperAdmins)
	if superAdmins.Count() <= 1 {
		lg.Warn("single approver configured, withdrawals are approved on request", zap.Int("super_admins", superAdmins.Count()))
	}
	handler := api.NewTreasuryHandler(svc, superAdmins, lg)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(handler, lg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	case err = <-errCh:
		lg.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown failed", zap.Error(err))
	}

	// 在途任务跑完再退出
	stopWorkers()
	sweeper.Stop()
	pool.Wait()
	return err
}
