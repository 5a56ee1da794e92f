package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/taskhive/backend/models"
)

type MongoUserStore struct {
	col *mongo.Collection
}

func NewMongoUserStore(col *mongo.Collection) *MongoUserStore {
	return &MongoUserStore{col: col}
}

func (s *MongoUserStore) Insert(ctx context.Context, user *models.User) error {
	result, err := s.col.InsertOne(ctx, user)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	if id, ok := result.InsertedID.(bson.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (s *MongoUserStore) FindByID(ctx context.Context, id bson.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	if err := s.col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// RecordFailedLogin is an aggregation-pipeline update so the counter bump
// and the lock decision land in one document write. Concurrent failed
// attempts therefore never under-count.
func (s *MongoUserStore) RecordFailedLogin(ctx context.Context, id bson.ObjectID, maxAttempts int, lockFor time.Duration, now time.Time) error {
	lockUntil := bson.M{"$ifNull": bson.A{"$lockUntil", bson.Null{}}}

	// A lock whose deadline already passed restarts the count at 1.
	staleLock := bson.M{"$and": bson.A{
		bson.M{"$ne": bson.A{lockUntil, bson.Null{}}},
		bson.M{"$lte": bson.A{lockUntil, now}},
	}}
	nextAttempts := bson.M{"$cond": bson.A{
		staleLock,
		1,
		bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$loginAttempts", 0}}, 1}},
	}}
	nextLock := bson.M{"$switch": bson.M{
		"branches": bson.A{
			bson.M{"case": staleLock, "then": bson.Null{}},
			bson.M{
				"case": bson.M{"$and": bson.A{
					bson.M{"$gte": bson.A{nextAttempts, maxAttempts}},
					bson.M{"$eq": bson.A{lockUntil, bson.Null{}}},
				}},
				"then": now.Add(lockFor),
			},
		},
		"default": lockUntil,
	}}

	update := bson.A{bson.M{"$set": bson.M{
		"loginAttempts": nextAttempts,
		"lockUntil":     nextLock,
		"updatedAt":     now,
	}}}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) ResetLoginAttempts(ctx context.Context, id bson.ObjectID) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"loginAttempts": 0},
		"$unset": bson.M{"lockUntil": 1},
	})
	return err
}

func (s *MongoUserStore) UpdateProfile(ctx context.Context, id bson.ObjectID, update ProfileUpdate, now time.Time) error {
	set := bson.M{"updatedAt": now}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.Avatar != nil {
		set["avatar"] = *update.Avatar
	}
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEmail
		}
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) SetActive(ctx context.Context, id bson.ObjectID, active bool, now time.Time) error {
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"isActive": active, "updatedAt": now},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) SetPassword(ctx context.Context, id bson.ObjectID, passwordHash string, changedAt time.Time) error {
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"passwordHash":      passwordHash,
			"passwordChangedAt": changedAt,
			"updatedAt":         changedAt,
		},
		"$unset": bson.M{
			"passwordResetToken":   1,
			"passwordResetExpires": 1,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) SetResetToken(ctx context.Context, id bson.ObjectID, tokenHash string, expires time.Time) error {
	result, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"passwordResetToken":   tokenHash,
			"passwordResetExpires": expires,
		},
	})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoUserStore) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	return s.findOne(ctx, bson.M{
		"passwordResetToken":   tokenHash,
		"passwordResetExpires": bson.M{"$gt": now},
	})
}

func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == 11000 || e.Code == 11001 {
				return true
			}
		}
	}
	return strings.Contains(err.Error(), "E11000 duplicate key error")
}
