package service

import (
	"context"

	"bookswap/internal/domain"
	"bookswap/internal/events"
	"bookswap/internal/models"

	"github.com/rs/zerolog"
)

type RatingService struct {
	base
	repo domain.RatingStore
}

func NewRatingService(repo domain.RatingStore, eventBus domain.EventPublisher, logger *zerolog.Logger) *RatingService {
	return &RatingService{
		base: newBase(eventBus, nil, nil, logger, "rating_service"),
		repo: repo,
	}
}

// Rate records the rater's score of the other party. A second rating by the
// same rater is a conflict and never overwrites the first.
func (s *RatingService) Rate(ctx context.Context, cmd RateCmd) (*models.Rating, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, s.observe("rate", err)
	}

	r, err := s.repo.CreateRating(ctx, cmd.ExchangeID, cmd.RaterID, cmd.Score, clean(cmd.Comment, models.MaxCommentLength))
	if err != nil {
		return nil, s.observe("rate", err)
	}
	s.observe("rate", nil)

	s.publish(events.EventRatingCreated, map[string]interface{}{
		"rating_id":   r.ID,
		"exchange_id": r.ExchangeID,
		"rater_id":    r.RaterID,
		"ratee_id":    r.RateeID,
		"score":       r.Score,
	})
	return r, nil
}

func (s *RatingService) Mine(ctx context.Context, exchangeID, raterID int64) (*models.Rating, error) {
	return s.repo.GetRatingByRater(ctx, exchangeID, raterID)
}

func (s *RatingService) Summary(ctx context.Context, userID int64) (*models.RatingSummary, error) {
	return s.repo.GetUserRatingSummary(ctx, userID)
}
