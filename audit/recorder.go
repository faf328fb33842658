package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
)

// MongoRecorder appends audit entries to the audit_logs collection. Entries
// are never updated.
type MongoRecorder struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRecorder(col *mongo.Collection) *MongoRecorder {
	return &MongoRecorder{col: col, now: time.Now}
}

func (r *MongoRecorder) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_type", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

func (r *MongoRecorder) Record(ctx context.Context, entry *entity.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	_, err := r.col.InsertOne(ctx, entry)
	return err
}

// ListForEntity returns the trail of one entity, oldest first.
func (r *MongoRecorder) ListForEntity(ctx context.Context, entityType, entityID string) ([]*entity.AuditLog, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"entity_type": entityType, "entity_id": entityID},
		options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*entity.AuditLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
