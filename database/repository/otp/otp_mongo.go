package otpRepo

import (
	"context"
	"fmt"
	"time"

	"guardget/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOtpRepo implements OtpRepository using MongoDB.
type MongoOtpRepo struct {
	coll *mongo.Collection
}

func NewMongoOtpRepo(ctx context.Context, db *mongo.Database) (*MongoOtpRepo, error) {
	repo := &MongoOtpRepo{coll: db.Collection("otp_sessions")}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

// live matches sessions that can still be verified or invalidated.
func live(filter bson.M) bson.M {
	filter["consumedAt"] = nil
	filter["invalidatedAt"] = nil
	return filter
}

func (r *MongoOtpRepo) Create(ctx context.Context, session *models.OtpSession) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to store otp session: %w", err)
	}
	return nil
}

func (r *MongoOtpRepo) Latest(ctx context.Context, transferRequestID string) (*models.OtpSession, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	var session models.OtpSession
	if err := r.coll.FindOne(ctx, bson.M{"transferRequestId": transferRequestID}, opts).Decode(&session); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch otp session for %s: %w", transferRequestID, err)
	}
	return &session, nil
}

func (r *MongoOtpRepo) DecrementAttempts(ctx context.Context, id string) (int, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := live(bson.M{"id": id, "attemptsRemaining": bson.M{"$gt": 0}})
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var session models.OtpSession
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"attemptsRemaining": -1}}, opts).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to record otp attempt: %w", err)
	}
	return session.AttemptsRemaining, true, nil
}

func (r *MongoOtpRepo) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := live(bson.M{"id": id, "attemptsRemaining": bson.M{"$gt": 0}})
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"consumedAt": at}})
	if err != nil {
		return false, fmt.Errorf("failed to consume otp session: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoOtpRepo) InvalidateAll(ctx context.Context, transferRequestID string, at time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := live(bson.M{"transferRequestId": transferRequestID})
	res, err := r.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"invalidatedAt": at}})
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate otp sessions: %w", err)
	}
	return res.ModifiedCount, nil
}
