package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
)

const (
	authEventsCollection = "auth_events"
	maxHistoryLimit      = 100
)

// AuditLog records authentication events. Recording is best-effort: a
// failure is logged and never fails the operation being audited.
type AuditLog interface {
	Record(ctx context.Context, event models.AuthEvent)
	History(ctx context.Context, email string, limit int) ([]models.AuthEvent, error)
}

// MongoAuditLog stores events in the auth_events collection.
type MongoAuditLog struct {
	coll *mongo.Collection
	log  *zap.Logger
}

func NewMongoAuditLog(db *mongo.Database, log *zap.Logger) *MongoAuditLog {
	return &MongoAuditLog{
		coll: db.Collection(authEventsCollection),
		log:  log.Named("audit"),
	}
}

// EnsureIndexes creates the (user_email, created_at) index used by History.
func (a *MongoAuditLog) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_email", Value: 1},
			{Key: "created_at", Value: -1},
		},
		Options: options.Index().SetName("idx_email_created_at"),
	})
	return err
}

func (a *MongoAuditLog) Record(ctx context.Context, event models.AuthEvent) {
	// The request may already be cancelled; the audit write still goes through.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if _, err := a.coll.InsertOne(ctx, event); err != nil {
		a.log.Warn("failed to record auth event",
			zap.String("type", string(event.Type)),
			zap.String("email", event.Email),
			zap.Error(err),
		)
	}
}

// History returns the newest events for email, newest first.
func (a *MongoAuditLog) History(ctx context.Context, email string, limit int) ([]models.AuthEvent, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := a.coll.Find(ctx, bson.M{"user_email": email}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	events := []models.AuthEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// NopAuditLog discards events; used when MongoDB is not configured.
type NopAuditLog struct{}

func (NopAuditLog) Record(context.Context, models.AuthEvent) {}

func (NopAuditLog) History(context.Context, string, int) ([]models.AuthEvent, error) {
	return []models.AuthEvent{}, nil
}
