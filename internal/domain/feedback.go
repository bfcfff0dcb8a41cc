package domain

import (
	"fmt"
	"strings"
	"time"
)

// ModerationState is the review state of a piece of feedback
type ModerationState string

const (
	ModerationPending  ModerationState = "PENDIENTE"
	ModerationApproved ModerationState = "APROBADO"
	ModerationRejected ModerationState = "RECHAZADO"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 500
)

// Feedback is one participant's rating of another after a finished scrim
type Feedback struct {
	ID              string          `json:"id"`
	ScrimID         string          `json:"scrimId"`
	ReviewerID      string          `json:"reviewerId"`
	TargetUserID    string          `json:"targetUserId"`
	Rating          int             `json:"rating"`
	Comment         string          `json:"comment,omitempty"`
	ModerationState ModerationState `json:"moderationState"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// FeedbackView is approved feedback with the usernames of both sides
type FeedbackView struct {
	Feedback
	ReviewerUsername string `json:"reviewerUsername,omitempty"`
	TargetUsername   string `json:"targetUsername,omitempty"`
}

// FeedbackRequest represents a request to rate another participant
type FeedbackRequest struct {
	TargetUserID string `json:"targetUserId"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment,omitempty"`
}

// Validate checks the target and the rating bounds
func (r *FeedbackRequest) Validate() error {
	if strings.TrimSpace(r.TargetUserID) == "" {
		return fmt.Errorf("%w: targetUserId is required", ErrInvalidRequest)
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrInvalidRequest, MinRating, MaxRating)
	}
	if len([]rune(r.Comment)) > MaxCommentLength {
		return fmt.Errorf("%w: comment exceeds %d characters", ErrInvalidRequest, MaxCommentLength)
	}
	return nil
}

// ModerationRequest carries a moderator's verdict
type ModerationRequest struct {
	NewState ModerationState `json:"newState"`
}

// Validate accepts only final verdicts
func (r *ModerationRequest) Validate() error {
	switch r.NewState {
	case ModerationApproved, ModerationRejected:
		return nil
	case ModerationPending:
		return fmt.Errorf("%w: feedback cannot be moderated back to %s", ErrInvalidRequest, ModerationPending)
	default:
		return fmt.Errorf("%w: unknown moderation state %q", ErrInvalidRequest, r.NewState)
	}
}
