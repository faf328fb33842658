package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	PlatformWalletCollection = "platform_wallets"
	WhitelistCollection      = "whitelist_addresses"
	WithdrawalCollection     = "withdrawals"
	AuditLogCollection       = "audit_logs"
)

type MongoRepo struct {
	Client         *mongo.Client
	DB             *mongo.Database
	WalletColl     *mongo.Collection
	WhitelistColl  *mongo.Collection
	WithdrawalColl *mongo.Collection
	AuditColl      *mongo.Collection
}

func NewMongoRepo(ctx context.Context, uri, dbName string) (*MongoRepo, error) {
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	// ping
	ctx2, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx2, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return FromDatabase(client, client.Database(dbName)), nil
}

// FromDatabase binds the treasury collections of an already connected database.
func FromDatabase(client *mongo.Client, db *mongo.Database) *MongoRepo {
	return &MongoRepo{
		Client:         client,
		DB:             db,
		WalletColl:     db.Collection(PlatformWalletCollection),
		WhitelistColl:  db.Collection(WhitelistCollection),
		WithdrawalColl: db.Collection(WithdrawalCollection),
		AuditColl:      db.Collection(AuditLogCollection),
	}
}

func (m *MongoRepo) Close(ctx context.Context) error {
	if m.Client == nil {
		return nil
	}
	return m.Client.Disconnect(ctx)
}
