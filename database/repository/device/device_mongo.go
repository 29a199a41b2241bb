package deviceRepo

import (
	"context"
	"fmt"
	"time"

	"guardget/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDeviceRepo implements DeviceRepository using MongoDB.
type MongoDeviceRepo struct {
	coll *mongo.Collection
}

// NewMongoDeviceRepo binds the devices collection of db.
func NewMongoDeviceRepo(ctx context.Context, db *mongo.Database) (*MongoDeviceRepo, error) {
	repo := &MongoDeviceRepo{coll: db.Collection("devices")}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

func (r *MongoDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, device); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (r *MongoDeviceRepo) findOne(ctx context.Context, filter bson.M) (*models.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var device models.Device
	if err := r.coll.FindOne(ctx, filter).Decode(&device); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

func (r *MongoDeviceRepo) GetByID(ctx context.Context, id string) (*models.Device, error) {
	device, err := r.findOne(ctx, bson.M{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device with id %s: %w", id, err)
	}
	return device, nil
}

func (r *MongoDeviceRepo) GetByIdentifier(ctx context.Context, identifier string, kind models.IdentifierKind) (*models.Device, error) {
	var filter bson.M
	switch kind {
	case models.IdentifierSerial:
		filter = bson.M{"serialNumber": identifier}
	case models.IdentifierIMEI:
		filter = bson.M{"$or": bson.A{bson.M{"imei1": identifier}, bson.M{"imei2": identifier}}}
	default:
		filter = bson.M{"$or": bson.A{
			bson.M{"serialNumber": identifier},
			bson.M{"imei1": identifier},
			bson.M{"imei2": identifier},
		}}
	}
	device, err := r.findOne(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to look up device by identifier: %w", err)
	}
	return device, nil
}

func (r *MongoDeviceRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.Device, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for owner %s: %w", ownerID, err)
	}
	defer cursor.Close(ctx)

	devices := []models.Device{}
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}
	return devices, nil
}

func (r *MongoDeviceRepo) CompareAndSwap(ctx context.Context, u StatusUpdate) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	filter := bson.M{"id": u.DeviceID, "status": bson.M{"$in": u.From}}
	if u.OwnerID != "" {
		filter["ownerId"] = u.OwnerID
	}

	set := bson.M{"status": u.To, "updatedAt": u.At}
	if u.NewOwnerID != "" {
		set["ownerId"] = u.NewOwnerID
	}
	if u.Location != nil {
		set["lastKnownLocation"] = *u.Location
	}
	if u.ReportedAt != nil {
		set["statusReportedAt"] = *u.ReportedAt
	}

	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update device %s: %w", u.DeviceID, err)
	}
	return res.MatchedCount == 1, nil
}
