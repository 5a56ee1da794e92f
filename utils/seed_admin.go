package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/taskhive/backend/models"
)

// SeedAdminUser upserts the bootstrap admin account from ADMIN_EMAIL and
// ADMIN_PASSWORD. Existing accounts are left untouched.
func SeedAdminUser(ctx context.Context, usersCol *mongo.Collection) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL")))
	pass := os.Getenv("ADMIN_PASSWORD")

	if email == "" || pass == "" {
		return fmt.Errorf("missing ADMIN_EMAIL or ADMIN_PASSWORD env vars")
	}

	hash, err := HashPassword(pass, DefaultBcryptCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now().UTC()

	// Only insert if it doesn't exist
	filter := bson.M{"email": email}
	update := bson.M{
		"$setOnInsert": bson.M{
			"name":          "Administrator",
			"email":         email,
			"passwordHash":  hash,
			"role":          models.RoleAdmin,
			"isActive":      true,
			"emailVerified": true,
			"loginAttempts": 0,
			"createdAt":     now,
			"updatedAt":     now,
		},
	}

	opts := options.UpdateOne().SetUpsert(true)

	res, err := usersCol.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("seed admin upsert failed: %w", err)
	}

	if res.UpsertedCount == 1 {
		log.Println("Admin user seeded:", email)
	} else {
		log.Println("Admin user already exists:", email)
	}

	return nil
}
