package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptedExchange(t *testing.T, db *DB) *models.Exchange {
	t.Helper()
	a := addBook(t, db, 1, "A")
	b := addBook(t, db, 2, "B")
	return mustAccept(t, db, mustCreateRequest(t, db, 1, b.ID, a.ID))
}

func TestCreateProposalRules(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)
	at := time.Now()

	manual := func(by int64, when time.Time) *models.MeetingProposal {
		return &models.MeetingProposal{
			ExchangeID:  ex.ID,
			ProposedBy:  by,
			Method:      models.MethodManual,
			Address:     "Central Library",
			ScheduledAt: when,
		}
	}

	err := db.CreateProposal(ctx, manual(1, at.Add(time.Hour)), at.Add(models.MeetingLeadTime))
	assert.ErrorIs(t, err, ErrNotReceiver)

	err = db.CreateProposal(ctx, manual(2, at.Add(5*time.Minute)), at.Add(models.MeetingLeadTime))
	assert.ErrorIs(t, err, ErrMeetingTooSoon)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	p := manual(2, at.Add(time.Hour))
	require.NoError(t, db.CreateProposal(ctx, p, at.Add(models.MeetingLeadTime)))
	assert.NotZero(t, p.ID)
	assert.Equal(t, models.ProposalPending, p.State)
	assert.True(t, p.Active)

	err = db.CreateProposal(ctx, manual(2, at.Add(2*time.Hour)), at.Add(models.MeetingLeadTime))
	assert.ErrorIs(t, err, ErrProposalExists)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCreateProposalPredefinedPoint(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)

	point := &models.MeetingPoint{Name: "North Campus", Kind: models.PointCampus, Address: "1 College Rd", Latitude: 40.1, Longitude: -3.7, Enabled: true}
	require.NoError(t, db.UpsertMeetingPoint(ctx, point))
	closed := &models.MeetingPoint{Name: "Old Metro", Kind: models.PointMetro}
	require.NoError(t, db.UpsertMeetingPoint(ctx, closed))

	at := time.Now()
	p := &models.MeetingProposal{
		ExchangeID:  ex.ID,
		ProposedBy:  2,
		Method:      models.MethodPredefined,
		PointID:     &closed.ID,
		ScheduledAt: at.Add(time.Hour),
	}
	assert.ErrorIs(t, db.CreateProposal(ctx, p, at), ErrPointDisabled)

	p.PointID = &point.ID
	require.NoError(t, db.CreateProposal(ctx, p, at))
	assert.Equal(t, "1 College Rd", p.Address)
	require.NotNil(t, p.Latitude)
	assert.InDelta(t, 40.1, *p.Latitude, 1e-9)

	current, err := db.CurrentProposal(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, current.ID)
	require.NotNil(t, current.PointID)
	assert.Equal(t, point.ID, *current.PointID)
}

func TestDecideProposal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)
	at := time.Now()

	_, err := db.DecideProposal(ctx, ex.ID, 1, true, "", at)
	assert.ErrorIs(t, err, ErrNoPendingProposal)
	assert.Equal(t, domain.KindState, domain.KindOf(err))

	first := &models.MeetingProposal{ExchangeID: ex.ID, ProposedBy: 2, Method: models.MethodManual,
		Address: "Cafe", ScheduledAt: at.Add(time.Hour), Notes: "bring the bag"}
	require.NoError(t, db.CreateProposal(ctx, first, at))

	_, err = db.DecideProposal(ctx, ex.ID, 2, true, "", at)
	assert.ErrorIs(t, err, ErrNotRequester)

	rejected, err := db.DecideProposal(ctx, ex.ID, 1, false, strings.Repeat("x", 300), at)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, rejected.State)
	assert.False(t, rejected.Active)
	assert.True(t, strings.HasPrefix(rejected.Notes, "bring the bag\n[REJECTED] "))
	assert.Len(t, []rune(rejected.Notes), models.MaxNotesLength)

	// A rejection leaves room for a new proposal.
	when := time.Date(2031, 1, 10, 15, 0, 0, 0, time.UTC)
	second := &models.MeetingProposal{ExchangeID: ex.ID, ProposedBy: 2, Method: models.MethodManual,
		Address: "Library", ScheduledAt: when}
	require.NoError(t, db.CreateProposal(ctx, second, at))

	accepted, err := db.DecideProposal(ctx, ex.ID, 1, true, "", at)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalAccepted, accepted.State)
	require.NotNil(t, accepted.DecidedBy)
	assert.Equal(t, int64(1), *accepted.DecidedBy)

	got, err := db.GetExchange(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, "Library", got.Place)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, when.Equal(*got.ScheduledAt))

	view, err := db.GetRequestView(ctx, ex.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "Library", view.Place)

	// Accepted proposal blocks further proposals.
	third := &models.MeetingProposal{ExchangeID: ex.ID, ProposedBy: 2, Method: models.MethodManual,
		Address: "Park", ScheduledAt: when}
	assert.ErrorIs(t, db.CreateProposal(ctx, third, at), ErrProposalExists)

	current, err := db.CurrentProposal(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
}

func TestMeetingPointsListing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, p := range []*models.MeetingPoint{
		{Name: "Main Library", Kind: models.PointLibrary, Enabled: true},
		{Name: "East Campus", Kind: models.PointCampus, Enabled: true},
		{Name: "Closed Library", Kind: models.PointLibrary},
	} {
		require.NoError(t, db.UpsertMeetingPoint(ctx, p))
	}

	all, err := db.ListMeetingPoints(ctx, "", false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	libs, err := db.ListMeetingPoints(ctx, models.PointLibrary, true)
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "Main Library", libs[0].Name)

	libs[0].Enabled = false
	require.NoError(t, db.UpsertMeetingPoint(ctx, libs[0]))
	got, err := db.GetMeetingPoint(ctx, libs[0].ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = db.GetMeetingPoint(ctx, 404)
	assert.ErrorIs(t, err, ErrMeetingPointNotFound)
}
