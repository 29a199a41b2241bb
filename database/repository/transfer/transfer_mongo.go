package transferRepo

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

// MongoTransferRepo implements TransferRepository using MongoDB.
type MongoTransferRepo struct {
	coll *mongo.Collection
}

func NewMongoTransferRepo(ctx context.Context, db *mongo.Database) (*MongoTransferRepo, error) {
	repo := &MongoTransferRepo{coll: db.Collection("transfer_requests")}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

func (r *MongoTransferRepo) Create(ctx context.Context, req *models.TransferRequest) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, req); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("transfer for device %s: %w", req.DeviceID, database.ErrDuplicate)
		}
		return fmt.Errorf("failed to create transfer request: %w", err)
	}
	return nil
}

func (r *MongoTransferRepo) findOne(ctx context.Context, filter bson.M) (*models.TransferRequest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var req models.TransferRequest
	if err := r.coll.FindOne(ctx, filter).Decode(&req); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *MongoTransferRepo) GetByID(ctx context.Context, id string) (*models.TransferRequest, error) {
	req, err := r.findOne(ctx, bson.M{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfer %s: %w", id, err)
	}
	return req, nil
}

func (r *MongoTransferRepo) GetOpenByDevice(ctx context.Context, deviceID string) (*models.TransferRequest, error) {
	req, err := r.findOne(ctx, bson.M{"openDeviceKey": deviceID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open transfer for device %s: %w", deviceID, err)
	}
	return req, nil
}

// LockForUpdate writes to the request document so that any other
// transaction touching it conflicts until this one ends.
func (r *MongoTransferRepo) LockForUpdate(ctx context.Context, id string) (*models.TransferRequest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var req models.TransferRequest
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"id": id}, bson.M{"$inc": bson.M{"lockVersion": 1}}, opts).Decode(&req)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock transfer %s: %w", id, err)
	}
	return &req, nil
}

func (r *MongoTransferRepo) Transition(ctx context.Context, t Transition) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := bson.M{"id": t.ID, "status": bson.M{"$in": t.From}}
	if t.AbsoluteExpiredBy != nil {
		filter["absoluteExpiresAt"] = bson.M{"$lte": *t.AbsoluteExpiredBy}
	}
	if t.SessionExpiredBy != nil {
		filter["sessionExpiresAt"] = bson.M{"$lte": *t.SessionExpiredBy}
	}

	set := bson.M{"status": t.To, "updatedAt": t.At}
	if t.ToUserID != "" {
		set["toUserId"] = t.ToUserID
	}
	update := bson.M{"$set": set}
	if t.To.IsTerminal() {
		set["resolvedAt"] = t.At
		update["$unset"] = bson.M{"openDeviceKey": ""}
	}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to move transfer %s to %s: %w", t.ID, t.To, err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoTransferRepo) IncrementResend(ctx context.Context, id string, max int, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := bson.M{"id": id, "resendCount": bson.M{"$lt": max}}
	update := bson.M{"$inc": bson.M{"resendCount": 1}, "$set": bson.M{"updatedAt": at}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to count resend for transfer %s: %w", id, err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoTransferRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.TransferRequest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := bson.M{
		"status":            bson.M{"$in": models.OpenTransferStatuses},
		"absoluteExpiresAt": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "absoluteExpiresAt", Value: 1}}).SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired transfers: %w", err)
	}
	defer cursor.Close(ctx)

	reqs := []models.TransferRequest{}
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("failed to decode transfers: %w", err)
	}
	return reqs, nil
}
