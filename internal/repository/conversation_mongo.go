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

type MongoConversationRepo struct {
	coll *mongo.Collection
}

func NewMongoConversationRepo(db *mongo.Database) *MongoConversationRepo {
	return &MongoConversationRepo{coll: db.Collection(collConversations)}
}

// GetOrCreateDirect upserts on the unique sorted pair key. FindOneAndUpdate
// with $setOnInsert is a single atomic operation, so two participants opening
// the chat at the same time converge on one document.
func (r *MongoConversationRepo) GetOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, bool, error) {
	now := time.Now().UTC()
	key := models.PairKey(a, b)
	participants := []string{a, b}
	if b < a {
		participants = []string{b, a}
	}
	doc := models.Conversation{
		ID:           uuid.NewString(),
		Kind:         models.ConversationDirect,
		Participants: participants,
		PairKey:      key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var out models.Conversation
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"pair_key": key},
		bson.M{"$setOnInsert": doc},
		opts,
	).Decode(&out)
	if err != nil {
		if isDuplicateKey(err) {
			// lost the upsert race; the winner's document is there now
			if ferr := r.coll.FindOne(ctx, bson.M{"pair_key": key}).Decode(&out); ferr == nil {
				return &out, false, nil
			}
		}
		return nil, false, err
	}
	return &out, out.ID == doc.ID, nil
}

func (r *MongoConversationRepo) CreateGroup(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	_, err := r.coll.InsertOne(ctx, conv)
	return err
}

func (r *MongoConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *MongoConversationRepo) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Conversation{}
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (r *MongoConversationRepo) TouchLastMessage(ctx context.Context, convID string, snap *models.LastMessage) error {
	res, err := r.coll.UpdateByID(ctx, convID, bson.M{"$set": bson.M{
		"last_message": snap,
		"updated_at":   time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoConversationRepo) ClearLastMessage(ctx context.Context, convID, messageID string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": convID, "last_message.message_id": messageID},
		bson.M{"$unset": bson.M{"last_message": ""}},
	)
	return err
}

func (r *MongoConversationRepo) AddParticipant(ctx context.Context, convID, userID string) error {
	res, err := r.coll.UpdateByID(ctx, convID, bson.M{
		"$addToSet": bson.M{"participants": userID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoConversationRepo) RemoveParticipant(ctx context.Context, convID, userID string) error {
	res, err := r.coll.UpdateByID(ctx, convID, bson.M{
		"$pull": bson.M{"participants": userID, "admins": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoConversationRepo) Rename(ctx context.Context, convID, name string) error {
	res, err := r.coll.UpdateByID(ctx, convID, bson.M{"$set": bson.M{
		"name":       name,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
