package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linlinbupt123-crypto/treasury_service/audit"
	"github.com/linlinbupt123-crypto/treasury_service/chain"
	"github.com/linlinbupt123-crypto/treasury_service/config"
	"github.com/linlinbupt123-crypto/treasury_service/db"
	"github.com/linlinbupt123-crypto/treasury_service/entity"
	"github.com/linlinbupt123-crypto/treasury_service/repository"
)

// 初始化索引, 并按配置写入各链平台钱包
func main() {
	cfgPath := flag.String("config", "config/config.yaml", "config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal("load config:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoRepo, err := db.NewMongoRepo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatal("MongoDB connect error:", err)
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			log.Printf("MongoDB disconnect error: %v", err)
		}
	}()

	walletRepo := repository.NewWalletRepo(mongoRepo.WalletColl)
	if err := initIndexes(ctx, mongoRepo, walletRepo); err != nil {
		log.Fatal("Init indexes failed:", err)
	}
	fmt.Println("All indexes initialized successfully.")

	registry, err := chain.NewRegistry(cfg.Chains)
	if err != nil {
		log.Fatal("chain registry:", err)
	}
	if err := provisionWallets(ctx, walletRepo, registry, cfg.Platform); err != nil {
		log.Fatal("Provision platform wallets failed:", err)
	}
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func initIndexes(ctx context.Context, m *db.MongoRepo, wallets *repository.Wallet) error {
	all := map[string]indexer{
		db.PlatformWalletCollection: wallets,
		db.WhitelistCollection:      repository.NewWhitelistRepo(m.WhitelistColl),
		db.WithdrawalCollection:     repository.NewWithdrawalRepo(m.WithdrawalColl),
		db.AuditLogCollection:       audit.NewMongoRecorder(m.AuditColl),
	}
	for name, ix := range all {
		if err := ix.EnsureIndexes(ctx); err != nil {
			// 忽略已存在索引
			if strings.Contains(strings.ToLower(err.Error()), "already exists") {
				continue
			}
			return fmt.Errorf("%s index error: %w", name, err)
		}
	}
	return nil
}

func provisionWallets(ctx context.Context, wallets *repository.Wallet, registry *chain.Registry, entries []config.WalletConfig) error {
	for _, e := range entries {
		name := strings.ToLower(strings.TrimSpace(e.Chain))
		if _, ok := registry.ByName(name); !ok {
			return fmt.Errorf("platform wallet for unknown chain %q", e.Chain)
		}
		addr, err := chain.NormalizeAddress(e.Address)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := wallets.Upsert(ctx, &entity.PlatformWallet{
			ID:            uuid.NewString(),
			Chain:         name,
			WalletAddress: addr,
			IsActive:      true,
		}); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("platform wallet %s -> %s\n", name, addr)
	}
	return nil
}
