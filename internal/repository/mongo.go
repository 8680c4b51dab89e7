package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collConversations = "conversations"
	collMessages      = "messages"
	collLikes         = "likes"
	collUsers         = "users"
	collPosts         = "posts"
	collTutorials     = "tutorials"
	collArtworks      = "artworks"
)

func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return mongo.Connect(ctx, options.Client().ApplyURI(uri))
}

// EnsureIndexes creates the indexes the dedupe guarantees depend on:
// the unique direct-pair key, the unique like key, and the message
// history sort.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collConversations).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pair_key", Value: 1}},
		Options: options.Index().
			SetName("direct_pair_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"pair_key": bson.M{"$type": "string"}}),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(collLikes).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "target_type", Value: 1},
			{Key: "target_id", Value: 1},
		},
		Options: options.Index().SetName("like_key_unique").SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(collMessages).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("conv_created_idx"),
	})
	return err
}

func isDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

func targetCollection(db *mongo.Database, targetType string) *mongo.Collection {
	switch targetType {
	case "tutorial":
		return db.Collection(collTutorials)
	case "artwork":
		return db.Collection(collArtworks)
	default:
		return db.Collection(collPosts)
	}
}
