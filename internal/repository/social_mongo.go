package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/inspirecraft/realtime/internal/models"
)

type MongoLikeRepo struct {
	coll *mongo.Collection
}

func NewMongoLikeRepo(db *mongo.Database) *MongoLikeRepo {
	return &MongoLikeRepo{coll: db.Collection(collLikes)}
}

func (r *MongoLikeRepo) Find(ctx context.Context, userID, targetType, targetID string) (*models.Like, error) {
	var l models.Like
	err := r.coll.FindOne(ctx, bson.M{
		"user_id":     userID,
		"target_type": targetType,
		"target_id":   targetID,
	}).Decode(&l)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *MongoLikeRepo) Insert(ctx context.Context, like *models.Like) error {
	if like.ID == "" {
		like.ID = uuid.NewString()
	}
	if like.CreatedAt.IsZero() {
		like.CreatedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, like)
	if err != nil && isDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}

func (r *MongoLikeRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoLikeRepo) ListByTarget(ctx context.Context, targetType, targetID string) ([]*models.Like, error) {
	cur, err := r.coll.Find(ctx, bson.M{"target_type": targetType, "target_id": targetID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*models.Like{}
	for cur.Next(ctx) {
		var l models.Like
		if err := cur.Decode(&l); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, cur.Err()
}

// MongoContentRepo mutates the denormalized like arrays on the content
// collections. These writes are best-effort caches; the likes collection is
// the source of truth and the reconciler repairs divergence.
type MongoContentRepo struct {
	db *mongo.Database
}

func NewMongoContentRepo(db *mongo.Database) *MongoContentRepo {
	return &MongoContentRepo{db: db}
}

func (r *MongoContentRepo) AddLikeRef(ctx context.Context, targetType, targetID, likeID string) error {
	_, err := targetCollection(r.db, targetType).UpdateByID(ctx, targetID,
		bson.M{"$addToSet": bson.M{"likes": likeID}})
	return err
}

func (r *MongoContentRepo) RemoveLikeRef(ctx context.Context, targetType, targetID, likeID string) error {
	_, err := targetCollection(r.db, targetType).UpdateByID(ctx, targetID,
		bson.M{"$pull": bson.M{"likes": likeID}})
	return err
}

func (r *MongoContentRepo) SetLikeRefs(ctx context.Context, targetType, targetID string, likeIDs []string) error {
	_, err := targetCollection(r.db, targetType).UpdateByID(ctx, targetID,
		bson.M{"$set": bson.M{"likes": likeIDs}})
	return err
}

type MongoUserRepo struct {
	coll *mongo.Collection
}

func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{coll: db.Collection(collUsers)}
}

func (r *MongoUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoUserRepo) AddFollower(ctx context.Context, userID, followerID string) error {
	return r.updateSet(ctx, userID, "$addToSet", "followers", followerID)
}

func (r *MongoUserRepo) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return r.updateSet(ctx, userID, "$pull", "followers", followerID)
}

func (r *MongoUserRepo) AddFollowing(ctx context.Context, userID, followedID string) error {
	return r.updateSet(ctx, userID, "$addToSet", "following", followedID)
}

func (r *MongoUserRepo) RemoveFollowing(ctx context.Context, userID, followedID string) error {
	return r.updateSet(ctx, userID, "$pull", "following", followedID)
}

func (r *MongoUserRepo) updateSet(ctx context.Context, userID, op, field, value string) error {
	res, err := r.coll.UpdateByID(ctx, userID, bson.M{op: bson.M{field: value}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepo) FollowedBy(ctx context.Context, userID string) ([]string, error) {
	cur, err := r.coll.Find(ctx, bson.M{"followers": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []string{}
	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out = append(out, u.ID)
	}
	return out, cur.Err()
}

func (r *MongoUserRepo) SetFollowing(ctx context.Context, userID string, following []string) error {
	res, err := r.coll.UpdateByID(ctx, userID, bson.M{"$set": bson.M{"following": following}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
