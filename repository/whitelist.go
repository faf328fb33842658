/*
whitelist_addresses
address → 部分唯一索引 (is_active = true), 同一地址只允许一条有效记录
created_at 为 timelock 起点, 不允许修改
*/
package repository

import (
	"context"
	"time"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/treasury_service/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Whitelist struct {
	col *mongo.Collection
}

func NewWhitelistRepo(col *mongo.Collection) *Whitelist {
	return &Whitelist{col: col}
}

func (r *Whitelist) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "address", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}).
				SetName("uniq_active_address"),
		},
		{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

// Create inserts a new entry. A second active entry for the same address is
// rejected by the partial unique index and reported as Conflict.
func (r *Whitelist) Create(ctx context.Context, w *entity.WhitelistAddress) error {
	_, err := r.col.InsertOne(ctx, w)
	if mongo.IsDuplicateKeyError(err) {
		return wrapErrors.WrapWithCode(wrapErrors.Conflict, "whitelist.create", err)
	}
	return err
}

func (r *Whitelist) GetByID(ctx context.Context, id string) (*entity.WhitelistAddress, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *Whitelist) GetActiveByAddress(ctx context.Context, address string) (*entity.WhitelistAddress, error) {
	return r.findOne(ctx, bson.M{"address": address, "is_active": true})
}

func (r *Whitelist) findOne(ctx context.Context, filter bson.M) (*entity.WhitelistAddress, error) {
	var w entity.WhitelistAddress
	err := r.col.FindOne(ctx, filter).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Whitelist) ListActive(ctx context.Context) ([]*entity.WhitelistAddress, error) {
	cur, err := r.col.Find(ctx, bson.M{"is_active": true}, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entity.WhitelistAddress
	for cur.Next(ctx) {
		var w entity.WhitelistAddress
		if err := cur.Decode(&w); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, cur.Err()
}

// Deactivate flips an active entry to inactive. It returns nil, nil when the
// entry does not exist or was already inactive.
func (r *Whitelist) Deactivate(ctx context.Context, id, actorID string, at time.Time) (*entity.WhitelistAddress, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var w entity.WhitelistAddress
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "is_active": true},
		bson.M{"$set": bson.M{
			"is_active":     false,
			"removed_by_id": actorID,
			"removed_at":    at,
			"updated_at":    at,
		}},
		opts,
	).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
