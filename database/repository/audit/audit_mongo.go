package auditRepo

import (
	"context"
	"fmt"
	"time"

	"guardget/database"
	"guardget/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoAuditRepo implements AuditRepository using MongoDB.
type MongoAuditRepo struct {
	coll *mongo.Collection
}

func NewMongoAuditRepo(ctx context.Context, db *mongo.Database) (*MongoAuditRepo, error) {
	repo := &MongoAuditRepo{coll: db.Collection("audit_log")}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *MongoAuditRepo) ensureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "transferRequestId", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"transferRequestId": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "occurredAt", Value: 1}, {Key: "seq", Value: 1}}},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

func (r *MongoAuditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("audit entry for device %s: %w", entry.DeviceID, database.ErrDuplicate)
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *MongoAuditRepo) ListByDevice(ctx context.Context, deviceID string, kinds ...models.AuditKind) ([]models.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{"deviceId": deviceID}
	if len(kinds) > 0 {
		filter["kind"] = bson.M{"$in": kinds}
	}
	opts := options.Find().SetSort(bson.D{{Key: "occurredAt", Value: 1}, {Key: "seq", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries for %s: %w", deviceID, err)
	}
	defer cursor.Close(ctx)

	entries := []models.AuditEntry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	return entries, nil
}
