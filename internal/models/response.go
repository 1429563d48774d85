package models

// APIResponse is a generic API response wrapper
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
	}
}

// NewValidationErrorResponse creates a validation error response
func NewValidationErrorResponse(errors map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   "Validation failed",
		Errors:  errors,
	}
}

// PriorityMatchResponse is returned once a priority request has completed.
type PriorityMatchResponse struct {
	RequestID            string `json:"request_id"`
	MatchID              string `json:"match_id"`
	CandidatesConsidered int    `json:"candidates_considered"`
	CandidatesFiltered   int    `json:"candidates_filtered"`
	TopScore             int    `json:"top_score"`
}

// PendingRequestResponse points the caller at a request still in flight.
type PendingRequestResponse struct {
	RequestID string        `json:"request_id"`
	Status    RequestStatus `json:"status"`
	PollURL   string        `json:"poll_url"`
}

// VIPMatchResponse lists the proposals created for matchmaker review.
type VIPMatchResponse struct {
	RequestID string   `json:"request_id"`
	MatchIDs  []string `json:"match_ids"`
}

// MatchList is the caller's matches with pairs counted once.
type MatchList struct {
	Matches     []*Match `json:"matches"`
	UniquePairs int      `json:"unique_pairs"`
}

type PriorityMatchRequest struct {
	PaymentID string `json:"payment_id"`
}

func (r *PriorityMatchRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.PaymentID == "" {
		errors["payment_id"] = "Payment reference is required"
	}

	return errors
}

type RespondRequest struct {
	Accept *bool `json:"accept"`
}

func (r *RespondRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Accept == nil {
		errors["accept"] = "Accept decision is required"
	}

	return errors
}

type IntroduceRequest struct {
	Note string `json:"note"`
}

func (r *IntroduceRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Note == "" {
		errors["note"] = "Introduction note is required"
	}

	return errors
}
