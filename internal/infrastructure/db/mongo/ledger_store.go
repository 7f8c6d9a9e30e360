package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
	"github.com/greenpoint/recycling-ledger/internal/core/ports"
)

// LedgerStore implements ports.LedgerStore with a multi-document transaction
// per unit of work.
//
// The first statement of every transaction increments lock_seq on the user
// document. That write takes the document lock for the rest of the
// transaction, so a second transaction touching the same user gets a
// WriteConflict, is retried by WithTransaction, and then reads the event
// committed by the first one.
type LedgerStore struct {
	client *mongo.Client
	users  *mongo.Collection
	events *mongo.Collection
}

func NewLedgerStore(db *mongo.Database) *LedgerStore {
	return &LedgerStore{
		client: db.Client(),
		users:  db.Collection(collectionUsers),
		events: db.Collection(collectionEvents),
	}
}

// WithUserLock implements ports.LedgerStore.
func (s *LedgerStore) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	filter, ok := activeUserFilter(userID)
	if !ok {
		return domain.ErrUserNotFound
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var doc userDocument
		err := s.users.FindOneAndUpdate(sc, filter,
			bson.M{"$inc": bson.M{"lock_seq": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, domain.ErrUserNotFound
			}
			return nil, fmt.Errorf("lock user: %w", err)
		}

		tx := &ledgerTx{store: s, userOID: doc.ID, user: doc.toDomain()}
		return nil, fn(sc, tx)
	})
	return err
}

// FindEventByID implements ports.LedgerStore.
func (s *LedgerStore) FindEventByID(ctx context.Context, id string) (*domain.RecyclingEvent, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrEventNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc eventDocument
	if err := s.events.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return doc.toDomain(), nil
}

type ledgerTx struct {
	store   *LedgerStore
	userOID primitive.ObjectID
	user    *domain.User
}

func (t *ledgerTx) User() *domain.User {
	return t.user
}

// LatestEvent implements ports.EventHistory.
func (t *ledgerTx) LatestEvent(ctx context.Context, userID string, material domain.Material) (*domain.RecyclingEvent, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, nil
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	var doc eventDocument
	err = t.store.events.FindOne(ctx, bson.M{"user_id": oid, "material": string(material)}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest event: %w", err)
	}
	return doc.toDomain(), nil
}

// Commit inserts the event and moves the balance, both inside the session
// transaction carried by ctx.
func (t *ledgerTx) Commit(ctx context.Context, event *domain.RecyclingEvent, newBalance int64) error {
	doc := newEventDocument(t.userOID, event)
	res, err := t.store.events.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("insert event: unexpected id type %T", res.InsertedID)
	}

	filter := bson.M{"_id": t.userOID, "version": t.user.Version}
	update := bson.M{
		"$set": bson.M{"points": newBalance, "updated_at": event.Timestamp.UTC()},
		"$inc": bson.M{"version": 1},
	}
	upd, err := t.store.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if upd.MatchedCount == 0 {
		return domain.ErrVersionConflict
	}

	event.ID = oid.Hex()
	return nil
}
