package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/greenpoint/recycling-ledger/internal/core/domain"
)

func TestUserDocument_RoundTrip(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	u := &domain.User{Name: "Ana", Phone: "09123456789", Points: 35, Status: domain.UserActive, Version: 4, CreatedAt: now, UpdatedAt: now}

	doc := newUserDocument(u)
	if !doc.ID.IsZero() {
		t.Fatalf("new documents must leave the id to the server")
	}
	doc.ID = primitive.NewObjectID()

	got := doc.toDomain()
	if got.ID != doc.ID.Hex() || got.Points != 35 || got.Version != 4 || !got.IsActive() {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestEventDocument_ToDomain(t *testing.T) {
	uid := primitive.NewObjectID()
	ts := time.Date(2026, 2, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	doc := newEventDocument(uid, &domain.RecyclingEvent{Material: domain.MaterialCan, Quantity: 2, PointsAwarded: 20, Timestamp: ts})
	doc.ID = primitive.NewObjectID()

	ev := doc.toDomain()
	if ev.UserID != uid.Hex() || ev.Material != domain.MaterialCan || ev.PointsAwarded != 20 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.Location() != time.UTC || !ev.Timestamp.Equal(ts) {
		t.Fatalf("expected UTC timestamp equal to input, got %v", ev.Timestamp)
	}
}

func TestActiveUserFilter(t *testing.T) {
	if _, ok := activeUserFilter("not-an-object-id"); ok {
		t.Error("expected invalid hex to be rejected")
	}

	oid := primitive.NewObjectID()
	f, ok := activeUserFilter(oid.Hex())
	if !ok {
		t.Fatal("expected valid filter")
	}
	if f["_id"] != oid || f["status"] != "active" {
		t.Errorf("unexpected filter: %v", f)
	}
}
