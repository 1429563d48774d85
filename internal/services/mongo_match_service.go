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

type MongoMatchService struct {
	matchesCol *mongo.Collection
}

func NewMongoMatchService(ctx context.Context, db *mongo.Database) *MongoMatchService {
	col := db.Collection(MatchesCollection)

	// Best-effort indexes. pair_key uniqueness is the only guard against
	// duplicate matches between racing jobs.
	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "seeker_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "candidate_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})

	return &MongoMatchService{matchesCol: col}
}

func (s *MongoMatchService) CreateMatch(ctx context.Context, m *models.Match) error {
	if m.PairKey == "" {
		m.PairKey = models.PairKey(m.SeekerID, m.CandidateID)
	}
	_, err := s.matchesCol.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperrors.ErrDuplicatePair
		}
		return err
	}
	return nil
}

func (s *MongoMatchService) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoMatchService) GetMatchByPair(ctx context.Context, a, b string) (*models.Match, error) {
	return s.findOne(ctx, bson.M{"pair_key": models.PairKey(a, b)})
}

func (s *MongoMatchService) findOne(ctx context.Context, filter bson.M) (*models.Match, error) {
	var m models.Match
	err := s.matchesCol.FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// PairedUserIDs returns everyone the user already shares a match with, in either direction.
func (s *MongoMatchService) PairedUserIDs(ctx context.Context, userID string) ([]string, error) {
	cur, err := s.matchesCol.Find(ctx, participantFilter(userID), options.Find().SetProjection(bson.M{
		"seeker_id":    1,
		"candidate_id": 1,
	}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]string, 0)
	for cur.Next(ctx) {
		var m models.Match
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, m.Counterpart(userID))
	}
	return out, cur.Err()
}

// ListForUser returns the user's matches, newest first.
func (s *MongoMatchService) ListForUser(ctx context.Context, userID string) ([]*models.Match, error) {
	cur, err := s.matchesCol.Find(ctx, participantFilter(userID),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*models.Match, 0)
	for cur.Next(ctx) {
		var m models.Match
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (s *MongoMatchService) Introduce(ctx context.Context, id, note string, now time.Time) (*models.Match, error) {
	return s.update(ctx, id, func(m *models.Match) error {
		return m.Introduce(note, now)
	})
}

func (s *MongoMatchService) Respond(ctx context.Context, id, userID string, accept bool, now time.Time) (*models.Match, error) {
	return s.update(ctx, id, func(m *models.Match) error {
		return m.Respond(userID, accept, now)
	})
}

// update applies fn and writes back only if nobody changed the match in between.
func (s *MongoMatchService) update(ctx context.Context, id string, fn func(*models.Match) error) (*models.Match, error) {
	m, err := s.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := m.UpdatedAt
	if err := fn(m); err != nil {
		return nil, transitionError(err)
	}

	res, err := s.matchesCol.ReplaceOne(ctx, bson.M{"_id": id, "updated_at": prev}, m)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrMatchChanged
	}
	return m, nil
}

func participantFilter(userID string) bson.M {
	return bson.M{"$or": []bson.M{
		{"seeker_id": userID},
		{"candidate_id": userID},
	}}
}
