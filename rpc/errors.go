package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"fundchain/native/crowdfund"
)

// ErrorBody is the JSON envelope returned for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure with a stable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{crowdfund.ErrCampaignNotFound, http.StatusNotFound, "campaign_not_found"},
	{crowdfund.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{crowdfund.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},

	{crowdfund.ErrInvalidStartTime, http.StatusBadRequest, "invalid_start_time"},
	{crowdfund.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{crowdfund.ErrWindowTooShort, http.StatusBadRequest, "window_too_short"},
	{crowdfund.ErrInvalidGoal, http.StatusBadRequest, "invalid_goal"},
	{crowdfund.ErrZeroAmount, http.StatusBadRequest, "zero_amount"},

	{crowdfund.ErrCampaignNotActive, http.StatusConflict, "campaign_not_active"},
	{crowdfund.ErrAlreadyStarted, http.StatusConflict, "already_started"},
	{crowdfund.ErrNotStarted, http.StatusConflict, "not_started"},
	{crowdfund.ErrCampaignOver, http.StatusConflict, "campaign_over"},
	{crowdfund.ErrGoalAlreadyMet, http.StatusConflict, "goal_already_met"},
	{crowdfund.ErrNotYetOver, http.StatusConflict, "not_yet_over"},
	{crowdfund.ErrGoalNotMet, http.StatusConflict, "goal_not_met"},
	{crowdfund.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{crowdfund.ErrNothingToRefund, http.StatusConflict, "nothing_to_refund"},
}

// statusForError maps a domain failure to its HTTP status and error code.
// Unrecognised errors are internal.
func statusForError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(w, status, code, message)
}
