package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/taskhive/backend/models"
)

type MongoRefreshTokenStore struct {
	col *mongo.Collection
}

func NewMongoRefreshTokenStore(col *mongo.Collection) *MongoRefreshTokenStore {
	return &MongoRefreshTokenStore{col: col}
}

func (s *MongoRefreshTokenStore) Insert(ctx context.Context, token *models.RefreshToken) error {
	result, err := s.col.InsertOne(ctx, token)
	if err != nil {
		return err
	}
	if id, ok := result.InsertedID.(bson.ObjectID); ok {
		token.ID = id
	}
	return nil
}

func (s *MongoRefreshTokenStore) FindByToken(ctx context.Context, value string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := s.col.FindOne(ctx, bson.M{"token": value}).Decode(&token); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// Revoke filters on revokedAt being unset, so of two concurrent rotations
// presenting the same token exactly one modifies the document. The loser
// sees ModifiedCount zero and must reject the request.
func (s *MongoRefreshTokenStore) Revoke(ctx context.Context, value string, now time.Time, ip string, replacedBy string) (bool, error) {
	set := bson.M{
		"revokedAt":   now,
		"revokedByIp": ip,
	}
	if replacedBy != "" {
		set["replacedByToken"] = replacedBy
	}
	result, err := s.col.UpdateOne(ctx, bson.M{
		"token":     value,
		"revokedAt": nil,
	}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

func (s *MongoRefreshTokenStore) RevokeAllForUser(ctx context.Context, userID bson.ObjectID, now time.Time, ip string) (int64, error) {
	result, err := s.col.UpdateMany(ctx, bson.M{
		"userId":    userID,
		"revokedAt": nil,
	}, bson.M{
		"$set": bson.M{
			"revokedAt":   now,
			"revokedByIp": ip,
		},
	})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

func (s *MongoRefreshTokenStore) PurgeExpired(ctx context.Context, now time.Time, auditWindow time.Duration) error {
	_, err := s.col.DeleteMany(ctx, bson.M{
		"$or": bson.A{
			bson.M{"expiresAt": bson.M{"$lt": now}, "revokedAt": nil},
			bson.M{"revokedAt": bson.M{"$lt": now.Add(-auditWindow)}},
		},
	})
	return err
}
