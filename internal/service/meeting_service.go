package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/events"
	"bookswap/internal/models"

	"github.com/rs/zerolog"
)

type MeetingRepository interface {
	domain.MeetingStore
	domain.PointStore
}

// MeetingService coordinates where and when the books change hands.
type MeetingService struct {
	base
	repo     MeetingRepository
	leadTime time.Duration
}

func NewMeetingService(
	repo MeetingRepository,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	leadTime time.Duration,
	clock Clock,
	logger *zerolog.Logger,
) *MeetingService {
	if leadTime < 0 {
		leadTime = models.MeetingLeadTime
	}
	return &MeetingService{
		base:     newBase(eventBus, notifier, clock, logger, "meeting_service"),
		repo:     repo,
		leadTime: leadTime,
	}
}

func (s *MeetingService) Propose(ctx context.Context, cmd ProposeMeetingCmd) (*models.MeetingProposal, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, s.observe("propose_meeting", err)
	}

	p := &models.MeetingProposal{
		ExchangeID:  cmd.ExchangeID,
		ProposedBy:  cmd.ProposerID,
		Method:      cmd.Method,
		Address:     strings.TrimSpace(cmd.Address),
		Latitude:    cmd.Latitude,
		Longitude:   cmd.Longitude,
		ScheduledAt: cmd.ScheduledAt.UTC(),
		Notes:       clean(cmd.Notes, models.MaxNotesLength),
	}
	if cmd.Method == models.MethodPredefined {
		p.PointID = cmd.PointID
	}

	earliest := s.clock().Add(s.leadTime)
	if err := s.repo.CreateProposal(ctx, p, earliest); err != nil {
		return nil, s.observe("propose_meeting", err)
	}
	s.observe("propose_meeting", nil)

	s.logger.Info().
		Int64("exchange_id", p.ExchangeID).
		Int64("proposal_id", p.ID).
		Str("method", p.Method).
		Time("scheduled_at", p.ScheduledAt).
		Msg("meeting proposed")

	s.publish(events.EventMeetingProposed, events.ExchangeEventPayload{
		ExchangeID:  p.ExchangeID,
		State:       p.State,
		Place:       p.Address,
		ScheduledAt: &p.ScheduledAt,
		ChangedByID: p.ProposedBy,
	})
	s.notify(ctx, p.ExchangeID, "Meeting proposal: "+describeMeeting(p.Address, p.ScheduledAt))
	return p, nil
}

func (s *MeetingService) Confirm(ctx context.Context, cmd ConfirmMeetingCmd) (*models.MeetingProposal, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, s.observe("confirm_meeting", err)
	}

	p, err := s.repo.DecideProposal(ctx, cmd.ExchangeID, cmd.ConfirmerID, *cmd.Accept, cmd.Notes, s.clock())
	if err != nil {
		return nil, s.observe("confirm_meeting", err)
	}
	s.observe("confirm_meeting", nil)

	s.publish(events.EventMeetingDecided, events.ExchangeEventPayload{
		ExchangeID:  p.ExchangeID,
		State:       p.State,
		Place:       p.Address,
		ScheduledAt: &p.ScheduledAt,
		ChangedByID: cmd.ConfirmerID,
	})

	text := "Meeting proposal rejected."
	if *cmd.Accept {
		text = "Meeting confirmed: " + describeMeeting(p.Address, p.ScheduledAt)
	}
	s.notify(ctx, p.ExchangeID, text)
	return p, nil
}

// Current returns the meeting proposal a party should look at.
func (s *MeetingService) Current(ctx context.Context, exchangeID, callerID int64) (*models.MeetingProposal, error) {
	ex, err := s.repo.GetExchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if !ex.IsParty(callerID) {
		return nil, domain.Authorization("caller is not a party of the exchange")
	}
	return s.repo.CurrentProposal(ctx, exchangeID)
}

func (s *MeetingService) ListPoints(ctx context.Context, kind string, onlyEnabled bool) ([]*models.MeetingPoint, error) {
	if kind != "" && !validPointKind(kind) {
		return nil, domain.Validation(fmt.Sprintf("unknown meeting point kind %q", kind))
	}
	return s.repo.ListMeetingPoints(ctx, kind, onlyEnabled)
}

// ImportPoints upserts a batch of registry entries and returns how many were written.
func (s *MeetingService) ImportPoints(ctx context.Context, points []*models.MeetingPoint) (int, error) {
	for i, p := range points {
		if strings.TrimSpace(p.Name) == "" {
			return i, domain.Validation(fmt.Sprintf("meeting point #%d has no name", i+1))
		}
		if p.Kind == "" {
			p.Kind = models.PointOther
		}
		if !validPointKind(p.Kind) {
			return i, domain.Validation(fmt.Sprintf("meeting point %q has unknown kind %q", p.Name, p.Kind))
		}
		if err := s.repo.UpsertMeetingPoint(ctx, p); err != nil {
			return i, err
		}
	}
	return len(points), nil
}

func validPointKind(kind string) bool {
	switch kind {
	case models.PointCampus, models.PointLibrary, models.PointBookExchange, models.PointMetro, models.PointOther:
		return true
	}
	return false
}
