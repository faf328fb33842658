/*
withdrawals
status / chain / created_at 索引; 状态变更全部通过 Transition 完成,
过滤条件带上期望的旧状态, 保证同一笔记录只有一个写入者成功
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

type Withdrawal struct {
	col *mongo.Collection
}

func NewWithdrawalRepo(col *mongo.Collection) *Withdrawal {
	return &Withdrawal{col: col}
}

func (r *Withdrawal) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "chain", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "to_address", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *Withdrawal) Create(ctx context.Context, w *entity.TreasuryWithdrawal) error {
	_, err := r.col.InsertOne(ctx, w)
	return err
}

func (r *Withdrawal) GetByID(ctx context.Context, id string) (*entity.TreasuryWithdrawal, error) {
	var w entity.TreasuryWithdrawal
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Withdrawal) List(ctx context.Context, f entity.WithdrawalFilter) ([]*entity.TreasuryWithdrawal, error) {
	cur, err := r.col.Find(ctx, filterQuery(f), options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entity.TreasuryWithdrawal
	for cur.Next(ctx) {
		var w entity.TreasuryWithdrawal
		if err := cur.Decode(&w); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, cur.Err()
}

func filterQuery(f entity.WithdrawalFilter) bson.M {
	q := bson.M{}
	if f.Chain != "" {
		q["chain"] = f.Chain
	}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.ToAddress != "" {
		q["to_address"] = f.ToAddress
	}
	created := bson.M{}
	if f.CreatedAfter != nil {
		created["$gte"] = *f.CreatedAfter
	}
	if f.CreatedBefore != nil {
		created["$lte"] = *f.CreatedBefore
	}
	if len(created) > 0 {
		q["created_at"] = created
	}
	return q
}

func (r *Withdrawal) ExistsByAddressAndStatus(ctx context.Context, address string, status entity.WithdrawalStatus) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"to_address": address, "status": status}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Transition applies u only if the record is still in status from. It returns
// the updated record, or nil, nil when the record is missing or another writer
// moved it first.
func (r *Withdrawal) Transition(ctx context.Context, id string, from entity.WithdrawalStatus, u entity.WithdrawalUpdate, at time.Time) (*entity.TreasuryWithdrawal, error) {
	if !from.CanTransitionTo(u.Status) {
		return nil, wrapErrors.Newf(wrapErrors.InvalidState, "withdrawal.transition", "illegal transition %s -> %s", from, u.Status)
	}
	set := bson.M{
		"status":     u.Status,
		"updated_at": at,
	}
	if u.ApprovedByID != nil {
		set["approved_by_id"] = *u.ApprovedByID
	}
	if u.ApprovedAt != nil {
		set["approved_at"] = *u.ApprovedAt
	}
	if u.RejectedByID != nil {
		set["rejected_by_id"] = *u.RejectedByID
	}
	if u.RejectionReason != nil {
		set["rejection_reason"] = *u.RejectionReason
	}
	if u.TxHash != nil {
		set["tx_hash"] = *u.TxHash
	}
	if u.FailureReason != nil {
		set["failure_reason"] = *u.FailureReason
	}
	if u.CompletedAt != nil {
		set["completed_at"] = *u.CompletedAt
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var w entity.TreasuryWithdrawal
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set}, opts).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListStale returns withdrawals in status whose last update is older than before.
func (r *Withdrawal) ListStale(ctx context.Context, status entity.WithdrawalStatus, before time.Time) ([]*entity.TreasuryWithdrawal, error) {
	cur, err := r.col.Find(ctx, bson.M{"status": status, "updated_at": bson.M{"$lt": before}},
		options.Find().SetSort(bson.M{"updated_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entity.TreasuryWithdrawal
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
