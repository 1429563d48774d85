package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matrimony/backend/internal/models"
)

// MongoAccountService is the visibility directory over the accounts collection.
type MongoAccountService struct {
	accountsCol *mongo.Collection
}

func NewMongoAccountService(ctx context.Context, db *mongo.Database) *MongoAccountService {
	col := db.Collection(AccountsCollection)

	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "status", Value: 1}}},
	})

	return &MongoAccountService{accountsCol: col}
}

func (s *MongoAccountService) Upsert(ctx context.Context, acc *models.Account) error {
	if acc.UpdatedAt.IsZero() {
		acc.UpdatedAt = time.Now().UTC()
	}
	_, err := s.accountsCol.ReplaceOne(ctx, bson.M{"user_id": acc.UserID}, acc, options.Replace().SetUpsert(true))
	return err
}

// VisibleUserIDs returns the ids among userIDs backed by active, non-suspended member accounts.
func (s *MongoAccountService) VisibleUserIDs(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}

	filter := bson.M{
		"user_id":   bson.M{"$in": userIDs},
		"role":      models.RoleMember,
		"status":    models.AccountActive,
		"suspended": bson.M{"$ne": true},
	}
	cur, err := s.accountsCol.Find(ctx, filter, options.Find().SetProjection(bson.M{"user_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]string, 0, len(userIDs))
	for cur.Next(ctx) {
		var doc struct {
			UserID string `bson:"user_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.UserID)
	}
	return out, cur.Err()
}
