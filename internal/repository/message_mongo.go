package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/inspirecraft/realtime/internal/models"
)

type MongoMessageRepo struct {
	coll *mongo.Collection
}

func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{coll: db.Collection(collMessages)}
}

func (r *MongoMessageRepo) Insert(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *MongoMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoMessageRepo) ListByConversation(ctx context.Context, convID string, limit int64, before time.Time) ([]*models.Message, error) {
	filter := bson.M{"conversation_id": convID, "is_unsent": false}
	if !before.IsZero() {
		filter["created_at"] = bson.M{"$lt": before}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		// take the newest window but keep the returned order ascending
		opts = options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit)
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Message{}
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func (r *MongoMessageRepo) LastVisible(ctx context.Context, convID string) (*models.Message, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var m models.Message
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": convID, "is_unsent": false}, opts).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ToggleReaction pulls the exact (user, emoji) pair first; when nothing
// matched it adds one. Both are single-document array operators, so
// concurrent reactions from different users never clobber each other.
func (r *MongoMessageRepo) ToggleReaction(ctx context.Context, msgID, userID, emoji string) (*models.Message, error) {
	reaction := bson.M{"user_id": userID, "emoji": emoji}
	res, err := r.coll.UpdateByID(ctx, msgID, bson.M{"$pull": bson.M{"reactions": reaction}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	if res.ModifiedCount == 0 {
		_, err = r.coll.UpdateByID(ctx, msgID, bson.M{"$addToSet": bson.M{"reactions": reaction}})
		if err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, msgID)
}

func (r *MongoMessageRepo) AddSeen(ctx context.Context, msgID, userID string) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m models.Message
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": msgID},
		bson.M{"$addToSet": bson.M{"seen_by": userID}},
		opts,
	).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *MongoMessageRepo) AddDelivered(ctx context.Context, msgID, userID string) error {
	res, err := r.coll.UpdateByID(ctx, msgID, bson.M{"$addToSet": bson.M{"delivered_to": userID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoMessageRepo) MarkUnsent(ctx context.Context, msgID string) error {
	res, err := r.coll.UpdateByID(ctx, msgID, bson.M{"$set": bson.M{"is_unsent": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
