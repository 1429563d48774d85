package candidates

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matrimony/backend/internal/models"
)

// countryBoost multiplies the relevance of candidates in an accepted country.
const countryBoost = 3

// SearchSource queries an Atlas Search index on the profiles collection.
type SearchSource struct {
	col   *mongo.Collection
	index string
	limit int
}

func NewSearchSource(col *mongo.Collection, index string, limit int) *SearchSource {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &SearchSource{col: col, index: index, limit: limit}
}

func (s *SearchSource) Name() string { return "search:" + s.index }

// Healthy reports whether the search index exists and is queryable.
func (s *SearchSource) Healthy(ctx context.Context) bool {
	cur, err := s.col.SearchIndexes().List(ctx, options.SearchIndexes().SetName(s.index))
	if err != nil {
		return false
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var idx struct {
			Queryable bool `bson:"queryable"`
		}
		if err := cur.Decode(&idx); err == nil && idx.Queryable {
			return true
		}
	}
	return false
}

func (s *SearchSource) Candidates(ctx context.Context, seeker *models.ProfileSnapshot) ([]*models.ProfileSnapshot, error) {
	cur, err := s.col.Aggregate(ctx, s.pipeline(seeker))
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func (s *SearchSource) pipeline(seeker *models.ProfileSnapshot) mongo.Pipeline {
	compound := bson.D{
		{Key: "filter", Value: bson.A{
			bson.D{{Key: "equals", Value: bson.D{
				{Key: "path", Value: "gender"},
				{Key: "value", Value: models.OppositeGender(seeker.Gender)},
			}}},
			bson.D{{Key: "equals", Value: bson.D{
				{Key: "path", Value: "is_submitted"},
				{Key: "value", Value: true},
			}}},
		}},
		{Key: "mustNot", Value: bson.A{
			bson.D{{Key: "equals", Value: bson.D{
				{Key: "path", Value: "user_id"},
				{Key: "value", Value: seeker.UserID},
			}}},
		}},
	}

	if countries := seeker.Preferences.AcceptedCountries; len(countries) > 0 {
		compound = append(compound, bson.E{Key: "should", Value: bson.A{
			bson.D{{Key: "in", Value: bson.D{
				{Key: "path", Value: "country"},
				{Key: "value", Value: countries},
				{Key: "score", Value: bson.D{{Key: "boost", Value: bson.D{{Key: "value", Value: countryBoost}}}}},
			}}},
		}})
	}

	return mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "index", Value: s.index},
			{Key: "compound", Value: compound},
		}}},
		{{Key: "$limit", Value: s.limit}},
	}
}

// ScanSource is the equality-query fallback. It has no relevance boost and
// truncates deterministically by user id.
type ScanSource struct {
	col   *mongo.Collection
	limit int
}

func NewScanSource(col *mongo.Collection, limit int) *ScanSource {
	return &ScanSource{col: col, limit: limit}
}

func (s *ScanSource) Name() string { return "scan" }

func (s *ScanSource) Healthy(context.Context) bool { return true }

func (s *ScanSource) Candidates(ctx context.Context, seeker *models.ProfileSnapshot) ([]*models.ProfileSnapshot, error) {
	filter := bson.M{
		"gender":       models.OppositeGender(seeker.Gender),
		"is_submitted": true,
		"user_id":      bson.M{"$ne": seeker.UserID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	if s.limit > 0 {
		opts.SetLimit(int64(s.limit))
	}

	cur, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]*models.ProfileSnapshot, error) {
	defer cur.Close(ctx)

	out := make([]*models.ProfileSnapshot, 0)
	for cur.Next(ctx) {
		var p models.ProfileSnapshot
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
