package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/remindmail/remindmail/internal/database"
	"github.com/remindmail/remindmail/internal/model"
)

const remindersCollection = "reminders"

var byScheduledTime = bson.D{{Key: "scheduledTime", Value: 1}, {Key: "createdAt", Value: 1}}

// reminderDocument is the stored shape of a reminder. Field names match the
// documents written by earlier deployments of the service.
type reminderDocument struct {
	// ID is a primitive.ObjectID for documents this service writes; older
	// documents may hold a string
	ID            interface{} `bson:"_id"`
	Email         string      `bson:"email"`
	Message       string      `bson:"message"`
	ScheduledTime time.Time   `bson:"scheduledTime"`
	Sent          bool        `bson:"sent"`
	CreatedAt     time.Time   `bson:"createdAt"`
}

func (d reminderDocument) toModel() (model.Reminder, error) {
	var id string
	switch v := d.ID.(type) {
	case primitive.ObjectID:
		id = v.Hex()
	case string:
		id = v
	default:
		return model.Reminder{}, fmt.Errorf("unsupported reminder _id type %T", d.ID)
	}
	return model.Reminder{
		ID:            id,
		Email:         d.Email,
		Message:       d.Message,
		ScheduledTime: d.ScheduledTime.UTC(),
		Sent:          d.Sent,
		CreatedAt:     d.CreatedAt.UTC(),
	}, nil
}

// idFilter matches a reminder by its external id, whichever form the _id takes
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

// MongoReminderRepository handles reminder persistence in a MongoDB collection
type MongoReminderRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoReminderRepository creates a new MongoReminderRepository
func NewMongoReminderRepository(db *database.Mongo) *MongoReminderRepository {
	return &MongoReminderRepository{
		coll: db.DB.Collection(remindersCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the index backing the due query
func (r *MongoReminderRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "sent", Value: 1}, {Key: "scheduledTime", Value: 1}},
		Options: options.Index().SetName("sent_scheduledTime"),
	})
	if err != nil {
		return fmt.Errorf("failed to create reminder index: %w", err)
	}
	return nil
}

// Insert assigns ID and CreatedAt and stores the reminder
func (r *MongoReminderRepository) Insert(ctx context.Context, reminder *model.Reminder) error {
	oid := primitive.NewObjectID()
	reminder.ID = oid.Hex()
	reminder.CreatedAt = r.now().UTC()
	reminder.ScheduledTime = reminder.ScheduledTime.UTC()

	doc := reminderDocument{
		ID:            oid,
		Email:         reminder.Email,
		Message:       reminder.Message,
		ScheduledTime: reminder.ScheduledTime,
		Sent:          reminder.Sent,
		CreatedAt:     reminder.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// List returns every reminder ordered by scheduled time
func (r *MongoReminderRepository) List(ctx context.Context) ([]model.Reminder, error) {
	return r.find(ctx, bson.M{}, "list reminders")
}

// FindDue returns unsent reminders scheduled at or before now
func (r *MongoReminderRepository) FindDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	filter := bson.M{
		"sent":          false,
		"scheduledTime": bson.M{"$lte": now.UTC()},
	}
	return r.find(ctx, filter, "find due reminders")
}

// MarkSent flags the reminder as delivered
func (r *MongoReminderRepository) MarkSent(ctx context.Context, id string) error {
	result, err := r.coll.UpdateOne(ctx,
		idFilter(id),
		bson.M{"$set": bson.M{"sent": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark reminder %s sent: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoReminderRepository) find(ctx context.Context, filter bson.M, op string) ([]model.Reminder, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(byScheduledTime))
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var docs []reminderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode reminders: %w", err)
	}

	reminders := make([]model.Reminder, 0, len(docs))
	for _, doc := range docs {
		reminder, err := doc.toModel()
		if err != nil {
			return nil, fmt.Errorf("failed to decode reminders: %w", err)
		}
		reminders = append(reminders, reminder)
	}
	return reminders, nil
}
