package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matrimony/backend/internal/apperrors"
	"github.com/matrimony/backend/internal/logger"
	"github.com/matrimony/backend/internal/middleware"
	"github.com/matrimony/backend/internal/models"
	"github.com/matrimony/backend/internal/services"
	"github.com/matrimony/backend/internal/worker"
)

var (
	ErrPaymentReused    = apperrors.New(apperrors.KindConflict, "payment reference already used")
	ErrRequestCancelled = apperrors.New(apperrors.KindConflict, "match request was cancelled")
)

type Dispatcher interface {
	Submit(ctx context.Context, sub worker.Submission) (*models.MatchRequest, bool, error)
	Await(ctx context.Context, id string, wait time.Duration) (*models.MatchRequest, error)
}

type RequestStore interface {
	Get(ctx context.Context, id string) (*models.MatchRequest, error)
	Cancel(ctx context.Context, id string, now time.Time) (*models.MatchRequest, error)
}

type MatchService interface {
	ListForUser(ctx context.Context, userID string) ([]*models.Match, error)
	Respond(ctx context.Context, id, userID string, accept bool, now time.Time) (*models.Match, error)
	Introduce(ctx context.Context, id, note string, now time.Time) (*models.Match, error)
}

type NightlyRunner interface {
	Run(ctx context.Context) (worker.FanOutReport, error)
}

type Options struct {
	// PriorityWait bounds how long a priority call blocks before answering 202.
	PriorityWait time.Duration
	VIPWait      time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

type MatchingHandler struct {
	dispatcher Dispatcher
	requests   RequestStore
	matches    MatchService
	nightly    NightlyRunner
	opts       Options
	logger     *zap.Logger
}

func NewMatchingHandler(dispatcher Dispatcher, requests RequestStore, matches MatchService, nightly NightlyRunner, opts Options) *MatchingHandler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.VIPWait <= 0 {
		opts.VIPWait = opts.PriorityWait
	}
	return &MatchingHandler{
		dispatcher: dispatcher,
		requests:   requests,
		matches:    matches,
		nightly:    nightly,
		opts:       opts,
		logger:     logger.OrNop(opts.Logger),
	}
}

// RequestPriority queues a paid priority run and waits a bounded time for it.
func (h *MatchingHandler) RequestPriority(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.PriorityMatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// One request per payment, so client retries do not spend a second credit.
	queued, _, err := h.dispatcher.Submit(r.Context(), worker.Submission{
		Tier:      models.TierPriority,
		UserID:    userID,
		PaymentID: req.PaymentID,
		DedupKey:  "priority:" + req.PaymentID,
	})
	if err != nil {
		writeError(w, h.logger, err, "Failed to queue match request")
		return
	}
	if queued.RequesterID != userID {
		writeError(w, h.logger, ErrPaymentReused, "")
		return
	}

	h.awaitAndWrite(w, r, queued.ID, h.opts.PriorityWait, func(done *models.MatchRequest) interface{} {
		return models.PriorityMatchResponse{
			RequestID:            done.ID,
			MatchID:              done.MatchID,
			CandidatesConsidered: done.CandidatesConsidered,
			CandidatesFiltered:   done.CandidatesFiltered,
			TopScore:             done.TopScore,
		}
	})
}

func (h *MatchingHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.ownedRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(req))
}

// CancelRequest withdraws a request that has not been picked up by a worker.
func (h *MatchingHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.ownedRequest(w, r)
	if !ok {
		return
	}

	cancelled, err := h.requests.Cancel(r.Context(), req.ID, h.opts.Now())
	if err != nil {
		writeError(w, h.logger, err, "Failed to cancel match request")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(cancelled))
}

func (h *MatchingHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	all, err := h.matches.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "Failed to list matches")
		return
	}

	// VIP proposals stay with the matchmaker until introduced.
	visible := make([]*models.Match, 0, len(all))
	for _, m := range all {
		if m.Tier == models.TierVIP && m.Status == models.MatchPending {
			continue
		}
		visible = append(visible, m)
	}

	writeJSON(w, http.StatusOK, models.NewSuccessResponse(models.MatchList{
		Matches:     visible,
		UniquePairs: services.UniquePairs(visible),
	}))
}

func (h *MatchingHandler) RespondToMatch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return
	}

	var req models.RespondRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.matches.Respond(r.Context(), chi.URLParam(r, "matchId"), userID, *req.Accept, h.opts.Now())
	if err != nil {
		writeError(w, h.logger, err, "Failed to record response")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(m))
}

// RunNightly triggers the standard fan-out now. Users already queued today are skipped.
func (h *MatchingHandler) RunNightly(w http.ResponseWriter, r *http.Request) {
	report, err := h.nightly.Run(r.Context())
	if err != nil {
		writeError(w, h.logger, err, "Nightly fan-out failed")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(report))
}

// RunVIP queues a VIP run for the user in the path on a matchmaker's behalf.
func (h *MatchingHandler) RunVIP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	queued, _, err := h.dispatcher.Submit(r.Context(), worker.Submission{
		Tier:   models.TierVIP,
		UserID: userID,
	})
	if err != nil {
		writeError(w, h.logger, err, "Failed to queue match request")
		return
	}

	h.logger.Info("vip run requested",
		zap.String("user_id", userID),
		zap.String("requested_by", middleware.GetUserID(r.Context())),
		zap.String("request_id", queued.ID),
	)

	h.awaitAndWrite(w, r, queued.ID, h.opts.VIPWait, func(done *models.MatchRequest) interface{} {
		ids := done.MatchIDs
		if ids == nil {
			ids = []string{}
		}
		return models.VIPMatchResponse{RequestID: done.ID, MatchIDs: ids}
	})
}

func (h *MatchingHandler) IntroduceMatch(w http.ResponseWriter, r *http.Request) {
	var req models.IntroduceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := h.matches.Introduce(r.Context(), chi.URLParam(r, "matchId"), req.Note, h.opts.Now())
	if err != nil {
		writeError(w, h.logger, err, "Failed to introduce match")
		return
	}
	writeJSON(w, http.StatusOK, models.NewSuccessResponse(m))
}

// ownedRequest loads the path's request and checks the caller may see it.
func (h *MatchingHandler) ownedRequest(w http.ResponseWriter, r *http.Request) (*models.MatchRequest, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
		return nil, false
	}

	req, err := h.requests.Get(r.Context(), chi.URLParam(r, "requestId"))
	if err != nil {
		writeError(w, h.logger, err, "Failed to load match request")
		return nil, false
	}
	if req.RequesterID != userID && !middleware.IsStaff(r.Context()) {
		writeError(w, h.logger, apperrors.ErrNotRequestOwner, "")
		return nil, false
	}
	return req, true
}

// awaitAndWrite answers with the finished result, or 202 and a poll URL if
// the request is still running when wait elapses.
func (h *MatchingHandler) awaitAndWrite(w http.ResponseWriter, r *http.Request, id string, wait time.Duration, result func(*models.MatchRequest) interface{}) {
	req, err := h.dispatcher.Await(r.Context(), id, wait)
	if err != nil {
		writeError(w, h.logger, err, "Failed to load match request")
		return
	}

	switch {
	case req.Status == models.RequestCompleted:
		writeJSON(w, http.StatusOK, models.NewSuccessResponse(result(req)))
	case req.Status == models.RequestNoCandidates:
		writeError(w, h.logger, apperrors.ErrNoSuitableMatches, "")
	case req.Status == models.RequestCancelled:
		writeError(w, h.logger, ErrRequestCancelled, "")
	case req.Status == models.RequestFailed && req.Terminal():
		writeError(w, h.logger, failure(req), "Matching failed")
	default:
		writeJSON(w, http.StatusAccepted, models.NewSuccessResponse(models.PendingRequestResponse{
			RequestID: req.ID,
			Status:    req.Status,
			PollURL:   "/api/matching/requests/" + req.ID,
		}))
	}
}

// failure rebuilds a typed error from a failed request record.
func failure(req *models.MatchRequest) error {
	kind := apperrors.Kind(req.ErrorKind)
	if kind == apperrors.KindTransient {
		// Store details stay on the record and in the worker logs.
		return apperrors.New(kind, "matching temporarily unavailable")
	}
	return apperrors.New(kind, strings.TrimPrefix(req.LastError, req.ErrorKind+": "))
}
