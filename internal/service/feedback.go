package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/store"
)

// FeedbackService collects post-match ratings between participants and
// their moderation
type FeedbackService struct {
	store  store.Backend
	scrims *ScrimService
	users  UserFinder
	logger *slog.Logger

	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(backend store.Backend, scrims *ScrimService, users UserFinder, logger *slog.Logger) *FeedbackService {
	return &FeedbackService{
		store:  backend,
		scrims: scrims,
		users:  users,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetClock replaces the time source
func (s *FeedbackService) SetClock(now func() time.Time) {
	s.now = now
}

// SubmitFeedback stores a rating from one participant of a finished scrim to
// another. New feedback waits for moderation.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, scrimID, reviewerID string, req domain.FeedbackRequest) (*domain.Feedback, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("%w: feedback requires a reviewer", domain.ErrUnauthorized)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	scrim, err := s.scrims.GetScrim(ctx, scrimID)
	if err != nil {
		return nil, err
	}
	if scrim.State != domain.ScrimStateFinished {
		return nil, fmt.Errorf("%w: feedback is only accepted for %s scrims, scrim %s is %s",
			domain.ErrInvalidState, domain.ScrimStateFinished, scrimID, scrim.State)
	}
	if req.TargetUserID == reviewerID {
		return nil, fmt.Errorf("%w: users cannot rate themselves", domain.ErrUnauthorized)
	}

	participants, err := s.scrims.FindUsersParticipating(ctx, scrimID, scrim.OrganizerID)
	if err != nil {
		return nil, err
	}
	if !containsUser(participants, reviewerID) {
		return nil, fmt.Errorf("%w: user %s did not play scrim %s", domain.ErrUnauthorized, reviewerID, scrimID)
	}
	if !containsUser(participants, req.TargetUserID) {
		return nil, fmt.Errorf("%w: user %s did not play scrim %s", domain.ErrUnauthorized, req.TargetUserID, scrimID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadFeedback()
	if err != nil {
		return nil, err
	}
	for _, f := range all {
		if f.ScrimID == scrimID && f.ReviewerID == reviewerID && f.TargetUserID == req.TargetUserID {
			return nil, fmt.Errorf("%w: feedback for %s in scrim %s already sent", domain.ErrConflict, req.TargetUserID, scrimID)
		}
	}

	fb := domain.Feedback{
		ID:              s.newID(),
		ScrimID:         scrimID,
		ReviewerID:      reviewerID,
		TargetUserID:    req.TargetUserID,
		Rating:          req.Rating,
		Comment:         strings.TrimSpace(req.Comment),
		ModerationState: domain.ModerationPending,
		CreatedAt:       s.now().UTC(),
	}
	if err := store.WriteAll(s.store, domain.CollectionFeedback, append(all, fb)); err != nil {
		return nil, fmt.Errorf("saving feedback: %w", err)
	}

	s.logger.InfoContext(ctx, "feedback submitted",
		"feedback_id", fb.ID,
		"scrim_id", scrimID,
		"reviewer_id", reviewerID,
		"target_user_id", fb.TargetUserID,
		"rating", fb.Rating,
	)
	return &fb, nil
}

// ListApprovedFeedback returns the approved feedback of a scrim with the
// usernames of both sides
func (s *FeedbackService) ListApprovedFeedback(ctx context.Context, scrimID string) ([]domain.FeedbackView, error) {
	if _, err := s.scrims.GetScrim(ctx, scrimID); err != nil {
		return nil, err
	}
	all, err := s.loadFeedback()
	if err != nil {
		return nil, err
	}

	views := make([]domain.FeedbackView, 0)
	for _, f := range all {
		if f.ScrimID != scrimID || f.ModerationState != domain.ModerationApproved {
			continue
		}
		views = append(views, domain.FeedbackView{
			Feedback:         f,
			ReviewerUsername: s.username(ctx, f.ReviewerID),
			TargetUsername:   s.username(ctx, f.TargetUserID),
		})
	}
	return views, nil
}

// ListPendingFeedback returns every feedback awaiting moderation. Only
// admins may see it.
func (s *FeedbackService) ListPendingFeedback(ctx context.Context, actorID string) ([]domain.Feedback, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	all, err := s.loadFeedback()
	if err != nil {
		return nil, err
	}

	pending := make([]domain.Feedback, 0)
	for _, f := range all {
		if f.ModerationState == domain.ModerationPending {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// ModerateFeedback approves or rejects a feedback
func (s *FeedbackService) ModerateFeedback(ctx context.Context, feedbackID string, req domain.ModerationRequest, actorID string) (*domain.Feedback, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.loadFeedback()
	if err != nil {
		return nil, err
	}
	idx := -1
	for i := range all {
		if all[i].ID == feedbackID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: feedback %s", domain.ErrNotFound, feedbackID)
	}

	prev := all[idx].ModerationState
	all[idx].ModerationState = req.NewState
	if err := store.WriteAll(s.store, domain.CollectionFeedback, all); err != nil {
		return nil, fmt.Errorf("saving feedback %s: %w", feedbackID, err)
	}

	s.logger.InfoContext(ctx, "feedback moderated",
		"feedback_id", feedbackID,
		"moderator_id", actorID,
		"from", prev,
		"to", req.NewState,
	)
	fb := all[idx]
	return &fb, nil
}

func (s *FeedbackService) requireAdmin(ctx context.Context, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("%w: moderation requires an actor", domain.ErrUnauthorized)
	}
	u, err := s.users.FindUserByID(ctx, actorID)
	if err != nil {
		if domain.IsNotFound(err) {
			return fmt.Errorf("%w: user %s is not an admin", domain.ErrUnauthorized, actorID)
		}
		return err
	}
	if !u.IsAdmin() {
		return fmt.Errorf("%w: user %s is not an admin", domain.ErrUnauthorized, actorID)
	}
	return nil
}

func (s *FeedbackService) username(ctx context.Context, userID string) string {
	u, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return ""
	}
	return u.Username
}

func (s *FeedbackService) loadFeedback() ([]domain.Feedback, error) {
	all, err := store.ReadAll[domain.Feedback](s.store, domain.CollectionFeedback)
	if err != nil {
		return nil, fmt.Errorf("reading feedback: %w", err)
	}
	return all, nil
}

func containsUser(users []domain.User, id string) bool {
	for _, u := range users {
		if u.ID == id {
			return true
		}
	}
	return false
}
