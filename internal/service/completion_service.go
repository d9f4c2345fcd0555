package service

import (
	"context"
	"errors"
	"time"

	"bookswap/internal/database"
	"bookswap/internal/domain"
	"bookswap/internal/events"
	"bookswap/internal/metrics"
	"bookswap/internal/models"

	"github.com/rs/zerolog"
)

const codeAttempts = 5

// CompletionService runs the code handshake that closes an exchange.
type CompletionService struct {
	base
	repo       domain.CompletionStore
	codeTTL    time.Duration
	codeLength int
}

func NewCompletionService(
	repo domain.CompletionStore,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	codeTTL time.Duration,
	codeLength int,
	clock Clock,
	logger *zerolog.Logger,
) *CompletionService {
	if codeTTL <= 0 {
		codeTTL = models.CodeTTL
	}
	if codeLength <= 0 {
		codeLength = models.DefaultCodeLength
	}
	return &CompletionService{
		base:       newBase(eventBus, notifier, clock, logger, "completion_service"),
		repo:       repo,
		codeTTL:    codeTTL,
		codeLength: codeLength,
	}
}

// GenerateCode issues the exchange's completion code. A well-formed custom
// code is used as given; otherwise a random one is drawn.
func (s *CompletionService) GenerateCode(ctx context.Context, cmd GenerateCodeCmd) (*models.CompletionCode, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, s.observe("generate_code", err)
	}

	expiresAt := s.clock().Add(s.codeTTL)
	custom := cmd.Code != ""

	var (
		code *models.CompletionCode
		err  error
	)
	for attempt := 0; attempt < codeAttempts; attempt++ {
		value := cmd.Code
		if !custom {
			if value, err = NewCode(s.codeLength); err != nil {
				return nil, s.observe("generate_code", err)
			}
		}
		code, err = s.repo.SaveCompletionCode(ctx, cmd.ExchangeID, cmd.OwnerID, value, expiresAt)
		if custom || !errors.Is(err, database.ErrCodeTaken) {
			break
		}
		s.logger.Debug().Int64("exchange_id", cmd.ExchangeID).Int("attempt", attempt+1).Msg("completion code collision")
	}
	if err != nil {
		return nil, s.observe("generate_code", err)
	}
	s.observe("generate_code", nil)

	s.logger.Info().Int64("exchange_id", cmd.ExchangeID).Time("expires_at", code.ExpiresAt).Msg("completion code issued")
	s.publish(events.EventCodeIssued, events.ExchangeEventPayload{
		ExchangeID:  cmd.ExchangeID,
		State:       models.ExchangeAccepted,
		ChangedByID: cmd.OwnerID,
	})
	return code, nil
}

// Complete claims the code and then finalizes the exchange. When the second
// step fails the claim is released so the same code can be retried.
func (s *CompletionService) Complete(ctx context.Context, cmd CompleteCmd) (*models.Exchange, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, s.observe("complete", err)
	}

	at := s.clock()
	completedAt := at
	if cmd.CompletedAt != nil && !cmd.CompletedAt.IsZero() {
		completedAt = cmd.CompletedAt.UTC()
	}

	claim, err := s.repo.ClaimCompletionCode(ctx, cmd.ExchangeID, cmd.CallerID, cmd.Code, at)
	if err != nil {
		return nil, s.observe("complete", err)
	}

	// Past the claim the handshake runs to the end even if the caller goes away.
	settle := context.WithoutCancel(ctx)
	ex, err := s.repo.FinalizeCompletion(settle, cmd.ExchangeID, completedAt)
	if err != nil {
		metrics.IncCompensation()
		if relErr := s.repo.ReleaseCompletionCode(settle, claim); relErr != nil {
			s.logger.Error().Err(relErr).Int64("exchange_id", cmd.ExchangeID).Msg("failed to release completion code")
		} else {
			s.logger.Warn().Err(err).Int64("exchange_id", cmd.ExchangeID).Msg("completion rolled back, code released")
		}
		return nil, s.observe("complete", err)
	}
	s.observe("complete", nil)

	s.logger.Info().
		Int64("exchange_id", ex.ID).
		Int64("committed_book_id", ex.CommittedBookID).
		Int64("desired_book_id", ex.DesiredBookID).
		Msg("exchange completed")

	s.publish(events.EventExchangeCompleted, exchangePayload(ex, cmd.CallerID))
	s.notify(ctx, ex.ID, "Exchange completed. Thanks for swapping!")
	return ex, nil
}
