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

// MongoMatchRequestService is the durable job queue. Workers coordinate only
// through the atomic lease in Lease.
type MongoMatchRequestService struct {
	col *mongo.Collection
}

func NewMongoMatchRequestService(ctx context.Context, db *mongo.Database) *MongoMatchRequestService {
	col := db.Collection(MatchRequestsCollection)

	dedup := options.Index().
		SetUnique(true).
		SetPartialFilterExpression(bson.M{"dedup_key": bson.M{"$exists": true}})

	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "tier_rank", Value: 1},
			{Key: "queued_at", Value: 1},
		}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lease_expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "queued_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "dedup_key", Value: 1}},
			Options: dedup,
		},
	})

	return &MongoMatchRequestService{col: col}
}

// Enqueue inserts r. When r carries a dedup key that already exists, the
// existing request is returned with created=false.
func (s *MongoMatchRequestService) Enqueue(ctx context.Context, r *models.MatchRequest) (*models.MatchRequest, bool, error) {
	_, err := s.col.InsertOne(ctx, r)
	if err == nil {
		return r, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) || r.DedupKey == "" {
		return nil, false, err
	}

	var existing models.MatchRequest
	if err := s.col.FindOne(ctx, bson.M{"dedup_key": r.DedupKey}).Decode(&existing); err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func (s *MongoMatchRequestService) Get(ctx context.Context, id string) (*models.MatchRequest, error) {
	var r models.MatchRequest
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Lease claims the next runnable request: queued and available, or processing
// with an expired lease and attempts left. Priority first, then oldest.
func (s *MongoMatchRequestService) Lease(ctx context.Context, now time.Time, lease time.Duration) (*models.MatchRequest, error) {
	filter := bson.M{"$or": []bson.M{
		{"status": models.RequestQueued, "available_at": bson.M{"$lte": now}},
		{
			"status":           models.RequestProcessing,
			"lease_expires_at": bson.M{"$lte": now},
			"$expr":            bson.M{"$lt": bson.A{"$attempts", "$max_attempts"}},
		},
	}}
	update := bson.M{
		"$set": bson.M{
			"status":           models.RequestProcessing,
			"started_at":       now,
			"lease_expires_at": now.Add(lease),
		},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "tier_rank", Value: 1}, {Key: "queued_at", Value: 1}}).
		SetReturnDocument(options.After)

	var r models.MatchRequest
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Finish writes back a request the caller leased. It fails with ErrLeaseLost
// if the lease was taken over in the meantime.
func (s *MongoMatchRequestService) Finish(ctx context.Context, r *models.MatchRequest) error {
	res, err := s.col.ReplaceOne(ctx, bson.M{
		"_id":      r.ID,
		"status":   models.RequestProcessing,
		"attempts": r.Attempts,
	}, r)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Cancel withdraws a queued request.
func (s *MongoMatchRequestService) Cancel(ctx context.Context, id string, now time.Time) (*models.MatchRequest, error) {
	var r models.MatchRequest
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.RequestQueued},
		bson.M{"$set": bson.M{"status": models.RequestCancelled, "completed_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&r)
	if err == nil {
		return &r, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, cancelRejection(current)
}

// ReapExpired fails processing requests whose lease expired with no attempts
// left, and returns them.
func (s *MongoMatchRequestService) ReapExpired(ctx context.Context, now time.Time) ([]*models.MatchRequest, error) {
	filter := bson.M{
		"status":           models.RequestProcessing,
		"lease_expires_at": bson.M{"$lte": now},
		"$expr":            bson.M{"$gte": bson.A{"$attempts", "$max_attempts"}},
	}
	cur, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var stale []*models.MatchRequest
	if err := cur.All(ctx, &stale); err != nil {
		return nil, err
	}

	reaped := make([]*models.MatchRequest, 0, len(stale))
	for _, r := range stale {
		expireLease(r, now)
		res, err := s.col.ReplaceOne(ctx, bson.M{
			"_id":      r.ID,
			"status":   models.RequestProcessing,
			"attempts": r.Attempts,
		}, r)
		if err != nil {
			return reaped, err
		}
		if res.MatchedCount == 1 {
			reaped = append(reaped, r)
		}
	}
	return reaped, nil
}

const leaseExpiredMessage = "lease expired after final attempt"

func expireLease(r *models.MatchRequest, now time.Time) {
	_ = r.Fail(errors.New(leaseExpiredMessage), false, now)
}

func cancelRejection(r *models.MatchRequest) error {
	if r.Status == models.RequestProcessing {
		return apperrors.ErrRequestInProgress
	}
	return apperrors.ErrRequestNotQueued
}
