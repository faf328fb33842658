/*
platform_wallets
chain → 唯一索引 (每条链一个平台钱包)
total_withdrawn_all_time 以 18 位小数字符串保存, 用乐观锁更新
*/
package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
	"github.com/linlinbupt123-crypto/treasury_service/utils"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxCounterRetries = 5

var ErrCounterContention = stderrors.New("platform wallet counter update lost too many races")

type Wallet struct {
	col *mongo.Collection
}

func NewWalletRepo(col *mongo.Collection) *Wallet {
	return &Wallet{col: col}
}

func (r *Wallet) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chain", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "is_active", Value: 1}}},
	})
	return err
}

// Upsert creates the wallet of a chain or refreshes its address. Counters are
// only initialised on insert.
func (r *Wallet) Upsert(ctx context.Context, w *entity.PlatformWallet) error {
	if w == nil {
		return fmt.Errorf("wallet is nil")
	}
	now := time.Now().UTC()
	zero := utils.FormatAmount(decimal.Zero)
	update := bson.M{
		"$set": bson.M{
			"wallet_address": w.WalletAddress,
			"is_active":      w.IsActive,
			"updated_at":     now,
		},
		"$setOnInsert": bson.M{
			"_id":                           w.ID,
			"total_fees_collected_all_time": zero,
			"total_withdrawn_all_time":      zero,
			"created_at":                    now,
		},
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"chain": w.Chain}, update, options.Update().SetUpsert(true))
	return err
}

func (r *Wallet) GetActiveByChain(ctx context.Context, chain string) (*entity.PlatformWallet, error) {
	var w entity.PlatformWallet
	err := r.col.FindOne(ctx, bson.M{"chain": chain, "is_active": true}).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Wallet) ListActive(ctx context.Context) ([]*entity.PlatformWallet, error) {
	cur, err := r.col.Find(ctx, bson.M{"is_active": true}, options.Find().SetSort(bson.M{"chain": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entity.PlatformWallet
	for cur.Next(ctx) {
		var w entity.PlatformWallet
		if err := cur.Decode(&w); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, cur.Err()
}

// RecordWithdrawal adds amount to the lifetime withdrawn counter of the chain's
// wallet and stamps LastWithdrawalAt. The write is conditional on the counter
// value that was read, so concurrent executors never lose an increment.
// Returns nil, nil when the chain has no wallet.
func (r *Wallet) RecordWithdrawal(ctx context.Context, chain string, amount decimal.Decimal, at time.Time) (*entity.PlatformWallet, error) {
	for attempt := 0; attempt < maxCounterRetries; attempt++ {
		var w entity.PlatformWallet
		err := r.col.FindOne(ctx, bson.M{"chain": chain}).Decode(&w)
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		prev := decimal.Zero
		if w.TotalWithdrawnAllTime != "" {
			prev, err = decimal.NewFromString(w.TotalWithdrawnAllTime)
			if err != nil {
				return nil, fmt.Errorf("wallet %s has corrupt total_withdrawn_all_time %q: %w", w.ID, w.TotalWithdrawnAllTime, err)
			}
		}
		next := utils.FormatAmount(prev.Add(amount))

		res, err := r.col.UpdateOne(ctx,
			bson.M{"_id": w.ID, "total_withdrawn_all_time": w.TotalWithdrawnAllTime},
			bson.M{"$set": bson.M{
				"total_withdrawn_all_time": next,
				"last_withdrawal_at":       at,
				"updated_at":               at,
			}},
		)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			w.TotalWithdrawnAllTime = next
			w.LastWithdrawalAt = &at
			w.UpdatedAt = at
			return &w, nil
		}
	}
	return nil, ErrCounterContention
}
