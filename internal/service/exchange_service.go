package service

import (
	"context"
	"fmt"

	"bookswap/internal/domain"
	"bookswap/internal/events"
	"bookswap/internal/metrics"
	"bookswap/internal/models"

	"github.com/rs/zerolog"
)

// ExchangeRepository is what the request and exchange lifecycle needs.
type ExchangeRepository interface {
	domain.RequestStore
	domain.ExchangeStore
}

// ExchangeService drives requests from creation to acceptance and lets either
// party cancel an accepted exchange.
type ExchangeService struct {
	base
	repo ExchangeRepository
}

func NewExchangeService(
	repo ExchangeRepository,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	clock Clock,
	logger *zerolog.Logger,
) *ExchangeService {
	return &ExchangeService{
		base: newBase(eventBus, notifier, clock, logger, "exchange_service"),
		repo: repo,
	}
}

func (s *ExchangeService) CreateRequest(ctx context.Context, cmd CreateRequestCmd) (*models.RequestCreation, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, s.observe("create_request", err)
	}

	res, err := s.repo.CreateRequest(ctx, cmd.RequesterID, cmd.DesiredBookID, cmd.OfferedBookIDs[0])
	if err != nil {
		return nil, s.observe("create_request", err)
	}
	s.observe("create_request", nil)
	metrics.AddCascadeRejections("create", res.Rejected)

	s.logger.Info().
		Int64("request_id", res.Request.ID).
		Int64("requester_id", res.Request.RequesterID).
		Int64("desired_book_id", res.Request.DesiredBookID).
		Int64("cascaded", res.Rejected).
		Msg("request created")

	s.publish(events.EventRequestCreated, requestPayload(res.Request, cmd.RequesterID, res.Rejected))
	return res, nil
}

func (s *ExchangeService) AcceptRequest(ctx context.Context, cmd AcceptRequestCmd) (*models.Acceptance, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, s.observe("accept_request", err)
	}

	res, err := s.repo.AcceptRequest(ctx, cmd.RequestID, cmd.ReceiverID, cmd.BookID)
	if err != nil {
		return nil, s.observe("accept_request", err)
	}
	s.observe("accept_request", nil)
	metrics.AddCascadeRejections("accept", res.Rejected)

	if res.Reaccepted {
		return res, nil
	}

	s.logger.Info().
		Int64("request_id", res.Request.ID).
		Int64("exchange_id", res.Exchange.ID).
		Int64("committed_book_id", res.Exchange.CommittedBookID).
		Int64("cascaded", res.Rejected).
		Msg("request accepted")

	s.publish(events.EventRequestAccepted, requestPayload(res.Request, cmd.ReceiverID, res.Rejected))
	s.notify(ctx, res.Exchange.ID, fmt.Sprintf("Exchange request accepted. Meeting place: %s", res.Exchange.Place))
	return res, nil
}

func (s *ExchangeService) RejectRequest(ctx context.Context, requestID, receiverID int64) (*models.ExchangeRequest, error) {
	req, err := s.repo.RejectRequest(ctx, requestID, receiverID)
	if err != nil {
		return nil, s.observe("reject_request", err)
	}
	s.observe("reject_request", nil)
	s.publish(events.EventRequestRejected, requestPayload(req, receiverID, 0))
	return req, nil
}

func (s *ExchangeService) CancelRequest(ctx context.Context, requestID, requesterID int64) (*models.ExchangeRequest, error) {
	req, err := s.repo.CancelRequest(ctx, requestID, requesterID)
	if err != nil {
		return nil, s.observe("cancel_request", err)
	}
	s.observe("cancel_request", nil)
	s.publish(events.EventRequestCancelled, requestPayload(req, requesterID, 0))
	return req, nil
}

func (s *ExchangeService) CancelExchange(ctx context.Context, exchangeID, callerID int64) (*models.Exchange, error) {
	ex, err := s.repo.CancelExchange(ctx, exchangeID, callerID)
	if err != nil {
		return nil, s.observe("cancel_exchange", err)
	}
	s.observe("cancel_exchange", nil)

	s.logger.Info().Int64("exchange_id", ex.ID).Int64("caller_id", callerID).Msg("exchange cancelled")
	s.publish(events.EventExchangeCancelled, exchangePayload(ex, callerID))
	s.notify(ctx, ex.ID, "Exchange cancelled.")
	return ex, nil
}

// GetRequest returns the request with its effective state. Only the two
// parties may read it.
func (s *ExchangeService) GetRequest(ctx context.Context, requestID, callerID int64) (*models.RequestView, error) {
	view, err := s.repo.GetRequestView(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if view.RequesterID != callerID && view.ReceiverID != callerID {
		return nil, domain.Authorization("caller is not a party of the request")
	}
	return view, nil
}

func (s *ExchangeService) GetExchange(ctx context.Context, exchangeID, callerID int64) (*models.Exchange, error) {
	ex, err := s.repo.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if !ex.IsParty(callerID) {
		return nil, domain.Authorization("caller is not a party of the exchange")
	}
	return ex, nil
}

func (s *ExchangeService) ListIncoming(ctx context.Context, q domain.RequestQuery) ([]*models.RequestView, error) {
	return s.repo.ListIncomingRequests(ctx, q)
}

func (s *ExchangeService) ListOutgoing(ctx context.Context, q domain.RequestQuery) ([]*models.RequestView, error) {
	return s.repo.ListOutgoingRequests(ctx, q)
}

func (s *ExchangeService) PendingSummary(ctx context.Context, receiverID int64) ([]models.PendingSummary, error) {
	return s.repo.PendingSummary(ctx, receiverID)
}

func requestPayload(r *models.ExchangeRequest, changedBy, cascaded int64) events.RequestEventPayload {
	return events.RequestEventPayload{
		RequestID:     r.ID,
		RequesterID:   r.RequesterID,
		ReceiverID:    r.ReceiverID,
		DesiredBookID: r.DesiredBookID,
		OfferedBookID: r.OfferedBookID,
		State:         r.State,
		Cascaded:      cascaded,
		ChangedByID:   changedBy,
	}
}

func exchangePayload(ex *models.Exchange, changedBy int64) events.ExchangeEventPayload {
	return events.ExchangeEventPayload{
		ExchangeID:      ex.ID,
		RequestID:       ex.RequestID,
		CommittedBookID: ex.CommittedBookID,
		DesiredBookID:   ex.DesiredBookID,
		State:           ex.State,
		Place:           ex.Place,
		ScheduledAt:     ex.ScheduledAt,
		ChangedByID:     changedBy,
	}
}
