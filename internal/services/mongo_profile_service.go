package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/models"
)

type MongoProfileService struct {
	profilesCol *mongo.Collection
}

func NewMongoProfileService(ctx context.Context, db *mongo.Database) *MongoProfileService {
	col := db.Collection(ProfilesCollection)

	// Best-effort indexes.
	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Backs the linear-scan candidate query.
		{Keys: bson.D{{Key: "gender", Value: 1}, {Key: "is_submitted", Value: 1}, {Key: "user_id", Value: 1}}},
	})

	return &MongoProfileService{profilesCol: col}
}

// Collection exposes the profiles collection to the candidate sources.
func (s *MongoProfileService) Collection() *mongo.Collection {
	return s.profilesCol
}

func (s *MongoProfileService) GetProfile(ctx context.Context, userID string) (*models.ProfileSnapshot, error) {
	var prof models.ProfileSnapshot
	err := s.profilesCol.FindOne(ctx, bson.M{"user_id": userID}).Decode(&prof)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prof, nil
}

// Upsert replaces the snapshot for p.UserID. Used when seeding.
func (s *MongoProfileService) Upsert(ctx context.Context, p *models.ProfileSnapshot) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err := s.profilesCol.ReplaceOne(ctx, bson.M{"user_id": p.UserID}, p, options.Replace().SetUpsert(true))
	return err
}

// ForEachSubmitted streams submitted profile ids in batches, ordered by user id.
func (s *MongoProfileService) ForEachSubmitted(ctx context.Context, batchSize int, fn func(userIDs []string) error) error {
	opts := options.Find().
		SetProjection(bson.M{"user_id": 1}).
		SetSort(bson.D{{Key: "user_id", Value: 1}}).
		SetBatchSize(int32(batchSize))

	cur, err := s.profilesCol.Find(ctx, bson.M{"is_submitted": true}, opts)
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	batch := make([]string, 0, batchSize)
	for cur.Next(ctx) {
		var doc struct {
			UserID string `bson:"user_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		batch = append(batch, doc.UserID)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]string, 0, batchSize)
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
