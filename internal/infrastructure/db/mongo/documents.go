package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

const (
	collectionUsers  = "users"
	collectionEvents = "recycling_events"
)

type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Phone     string             `bson:"phone"`
	Points    int64              `bson:"points"`
	Status    string             `bson:"status"`
	Version   int64              `bson:"version"`
	LockSeq   int64              `bson:"lock_seq"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func newUserDocument(u *domain.User) userDocument {
	return userDocument{
		Name:      u.Name,
		Phone:     u.Phone,
		Points:    u.Points,
		Status:    string(u.Status),
		Version:   u.Version,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: u.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Phone:     d.Phone,
		Points:    d.Points,
		Status:    domain.UserStatus(d.Status),
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

type eventDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	UserID        primitive.ObjectID `bson:"user_id"`
	Material      string             `bson:"material"`
	Quantity      int                `bson:"quantity"`
	PointsAwarded int64              `bson:"points_awarded"`
	Timestamp     time.Time          `bson:"timestamp"`
}

func newEventDocument(userID primitive.ObjectID, ev *domain.RecyclingEvent) eventDocument {
	return eventDocument{
		UserID:        userID,
		Material:      string(ev.Material),
		Quantity:      ev.Quantity,
		PointsAwarded: ev.PointsAwarded,
		Timestamp:     ev.Timestamp.UTC(),
	}
}

func (d eventDocument) toDomain() *domain.RecyclingEvent {
	return &domain.RecyclingEvent{
		ID:            d.ID.Hex(),
		UserID:        d.UserID.Hex(),
		Material:      domain.Material(d.Material),
		Quantity:      d.Quantity,
		PointsAwarded: d.PointsAwarded,
		Timestamp:     d.Timestamp.UTC(),
	}
}

// activeUserFilter matches id only while the user is active. Invalid hex ids
// can never match, so they report not found rather than a driver error.
func activeUserFilter(id string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "status": string(domain.UserActive)}, true
}

func eventIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "material", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}
}

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "phone", Value: 1}}},
	}
}
