package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/logger"
	"github.com/matrimony/backend/internal/models"
)

const hookErrorLimit = 300

// UnfulfilledHook is called when a priority request ends without a match,
// either no_candidates or a terminal failure. Credit release belongs here.
type UnfulfilledHook func(ctx context.Context, r *models.MatchRequest)

// LogUnfulfilled records the event and does nothing else.
func LogUnfulfilled(log *zap.Logger) UnfulfilledHook {
	return func(_ context.Context, r *models.MatchRequest) {
		log.Warn("priority request unfulfilled",
			zap.String("request_id", r.ID),
			zap.String("user_id", r.RequesterID),
			zap.String("status", string(r.Status)),
			zap.String("last_error", logger.TruncateForLog(r.LastError, hookErrorLimit)),
		)
	}
}
