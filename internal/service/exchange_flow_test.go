package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bookswap/internal/database"
	"bookswap/internal/domain"
	"bookswap/internal/events"
	"bookswap/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier keeps system messages in memory.
type recordingNotifier struct {
	mu       sync.Mutex
	messages map[int64][]string
}

func (n *recordingNotifier) Notify(_ context.Context, exchangeID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = make(map[int64][]string)
	}
	n.messages[exchangeID] = append(n.messages[exchangeID], text)
	return nil
}

type engine struct {
	db         *database.DB
	bus        *events.EventBus
	notifier   *recordingNotifier
	exchanges  *ExchangeService
	books      *BookService
	meetings   *MeetingService
	completion *CompletionService
	ratings    *RatingService

	lastBookID int64
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "engine.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus(&logger)
	notifier := &recordingNotifier{}
	return &engine{
		db:         db,
		bus:        bus,
		notifier:   notifier,
		exchanges:  NewExchangeService(db, bus, notifier, fixedClock, &logger),
		books:      NewBookService(db, bus, notifier, &logger),
		meetings:   NewMeetingService(db, bus, notifier, models.MeetingLeadTime, fixedClock, &logger),
		completion: NewCompletionService(db, bus, notifier, models.CodeTTL, models.DefaultCodeLength, fixedClock, &logger),
		ratings:    NewRatingService(db, bus, &logger),
	}
}

func (e *engine) book(t *testing.T, owner int64, title string) *models.Book {
	t.Helper()
	e.lastBookID++
	b := &models.Book{ID: e.lastBookID, OwnerID: owner, Title: title, Available: true}
	require.NoError(t, e.books.SyncBook(context.Background(), b))
	return b
}

func TestExchangeScenario(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	var published []string
	var mu sync.Mutex
	for _, typ := range []string{events.EventRequestAccepted, events.EventExchangeCompleted, events.EventRatingCreated} {
		e.bus.Subscribe(typ, func(ev *events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			published = append(published, ev.Type)
			return nil
		})
	}

	const u1, u2, u3 = int64(1), int64(2), int64(3)
	a := e.book(t, u1, "A")
	b := e.book(t, u2, "B")
	c := e.book(t, u3, "C")

	created, err := e.exchanges.CreateRequest(ctx, CreateRequestCmd{RequesterID: u1, DesiredBookID: b.ID, OfferedBookIDs: []int64{a.ID}})
	require.NoError(t, err)
	rival, err := e.exchanges.CreateRequest(ctx, CreateRequestCmd{RequesterID: u3, DesiredBookID: b.ID, OfferedBookIDs: []int64{c.ID}})
	require.NoError(t, err)

	acc, err := e.exchanges.AcceptRequest(ctx, AcceptRequestCmd{RequestID: created.Request.ID, ReceiverID: u2, BookID: a.ID})
	require.NoError(t, err)
	ex := acc.Exchange
	assert.Equal(t, models.ExchangeAccepted, ex.State)
	assert.Equal(t, int64(1), acc.Rejected)

	view, err := e.exchanges.GetRequest(ctx, rival.Request.ID, u3)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, view.EffectiveState)

	when := time.Date(2030, 1, 10, 15, 0, 0, 0, time.UTC)
	p, err := e.meetings.Propose(ctx, ProposeMeetingCmd{
		ExchangeID: ex.ID, ProposerID: u2, Method: models.MethodManual, Address: "Library", ScheduledAt: when,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalPending, p.State)

	accept := true
	_, err = e.meetings.Confirm(ctx, ConfirmMeetingCmd{ExchangeID: ex.ID, ConfirmerID: u1, Accept: &accept})
	require.NoError(t, err)

	got, err := e.exchanges.GetExchange(ctx, ex.ID, u1)
	require.NoError(t, err)
	assert.Equal(t, "Library", got.Place)
	assert.True(t, when.Equal(*got.ScheduledAt))

	code, err := e.completion.GenerateCode(ctx, GenerateCodeCmd{ExchangeID: ex.ID, OwnerID: u2, Code: "K7M2QX"})
	require.NoError(t, err)
	assert.True(t, fixedNow.Add(models.CodeTTL).Equal(code.ExpiresAt))

	done, err := e.completion.Complete(ctx, CompleteCmd{ExchangeID: ex.ID, CallerID: u1, Code: "K7M2QX"})
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeCompleted, done.State)

	for _, id := range []int64{a.ID, b.ID} {
		book, err := e.books.GetBook(ctx, id)
		require.NoError(t, err)
		assert.False(t, book.Available)
		assert.Equal(t, models.ReasonCompleted, book.StatusReason)
	}
	_, err = e.books.SetAvailability(ctx, a.ID, u1, true)
	assert.ErrorIs(t, err, domain.ErrConflict)

	r, err := e.ratings.Rate(ctx, RateCmd{ExchangeID: ex.ID, RaterID: u1, Score: 5})
	require.NoError(t, err)
	assert.Equal(t, u2, r.RateeID)

	_, err = e.ratings.Rate(ctx, RateCmd{ExchangeID: ex.ID, RaterID: u1, Score: 3})
	assert.ErrorIs(t, err, domain.ErrConflict)

	mine, err := e.ratings.Mine(ctx, ex.ID, u1)
	require.NoError(t, err)
	assert.Equal(t, 5, mine.Score)

	summary, err := e.ratings.Summary(ctx, u2)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 5.0, summary.Average, 1e-9)

	assert.Equal(t, []string{
		"Exchange request accepted. Meeting place: To be arranged",
		"Meeting proposal: Library - 2030-01-10 15:00 UTC",
		"Meeting confirmed: Library - 2030-01-10 15:00 UTC",
		"Exchange completed. Thanks for swapping!",
	}, e.notifier.messages[ex.ID])
	assert.Equal(t, []string{events.EventRequestAccepted, events.EventExchangeCompleted, events.EventRatingCreated}, published)
}

func TestDeleteOfferedBookRejectsOwnRequest(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	a := e.book(t, 1, "A")
	b := e.book(t, 2, "B")

	created, err := e.exchanges.CreateRequest(ctx, CreateRequestCmd{RequesterID: 1, DesiredBookID: b.ID, OfferedBookIDs: []int64{a.ID}})
	require.NoError(t, err)

	res, err := e.books.DeleteBook(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RejectedRequests)

	view, err := e.exchanges.GetRequest(ctx, created.Request.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, view.EffectiveState)
}

func TestDeleteBookNotifiesCancelledExchanges(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	a := e.book(t, 1, "A")
	b := e.book(t, 2, "B")
	created, err := e.exchanges.CreateRequest(ctx, CreateRequestCmd{RequesterID: 1, DesiredBookID: b.ID, OfferedBookIDs: []int64{a.ID}})
	require.NoError(t, err)
	acc, err := e.exchanges.AcceptRequest(ctx, AcceptRequestCmd{RequestID: created.Request.ID, ReceiverID: 2, BookID: a.ID})
	require.NoError(t, err)

	res, err := e.books.DeleteBook(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{acc.Exchange.ID}, res.CancelledExchanges)

	msgs := e.notifier.messages[acc.Exchange.ID]
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "withdrawn")

	_, err = e.exchanges.CancelExchange(ctx, acc.Exchange.ID, 1)
	assert.ErrorIs(t, err, domain.ErrState)
}

func TestCommandValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.exchanges.CreateRequest(ctx, CreateRequestCmd{RequesterID: 1, DesiredBookID: 2, OfferedBookIDs: []int64{3, 4}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, domain.ReasonOf(err), "offered_book_ids")

	_, err = e.exchanges.CreateRequest(ctx, CreateRequestCmd{RequesterID: 1, DesiredBookID: 2})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.meetings.Propose(ctx, ProposeMeetingCmd{ExchangeID: 1, ProposerID: 2, Method: models.MethodManual, ScheduledAt: fixedNow.Add(time.Hour)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, domain.ReasonOf(err), "address")

	_, err = e.meetings.Propose(ctx, ProposeMeetingCmd{ExchangeID: 1, ProposerID: 2, Method: models.MethodPredefined, ScheduledAt: fixedNow.Add(time.Hour)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, domain.ReasonOf(err), "point_id")

	_, err = e.meetings.Propose(ctx, ProposeMeetingCmd{ExchangeID: 1, ProposerID: 2, Method: "TELEPORT", Address: "x", ScheduledAt: fixedNow})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.meetings.Confirm(ctx, ConfirmMeetingCmd{ExchangeID: 1, ConfirmerID: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	for _, score := range []int{0, 6} {
		_, err = e.ratings.Rate(ctx, RateCmd{ExchangeID: 1, RaterID: 1, Score: score})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestProposeHonoursLeadTime(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	a := e.book(t, 1, "A")
	b := e.book(t, 2, "B")
	created, err := e.exchanges.CreateRequest(ctx, CreateRequestCmd{RequesterID: 1, DesiredBookID: b.ID, OfferedBookIDs: []int64{a.ID}})
	require.NoError(t, err)
	acc, err := e.exchanges.AcceptRequest(ctx, AcceptRequestCmd{RequestID: created.Request.ID, ReceiverID: 2, BookID: a.ID})
	require.NoError(t, err)

	_, err = e.meetings.Propose(ctx, ProposeMeetingCmd{
		ExchangeID: acc.Exchange.ID, ProposerID: 2, Method: models.MethodManual,
		Address: "Cafe", ScheduledAt: fixedNow.Add(10 * time.Minute),
	})
	assert.ErrorIs(t, err, database.ErrMeetingTooSoon)

	p, err := e.meetings.Propose(ctx, ProposeMeetingCmd{
		ExchangeID: acc.Exchange.ID, ProposerID: 2, Method: models.MethodManual,
		Address: "Cafe", ScheduledAt: fixedNow.Add(models.MeetingLeadTime),
	})
	require.NoError(t, err)

	_, err = e.meetings.Current(ctx, acc.Exchange.ID, 3)
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	current, err := e.meetings.Current(ctx, acc.Exchange.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, p.ID, current.ID)

	// The code needs an accepted meeting first.
	_, err = e.completion.GenerateCode(ctx, GenerateCodeCmd{ExchangeID: acc.Exchange.ID, OwnerID: 2})
	assert.ErrorIs(t, err, database.ErrNoAcceptedMeeting)
}

func TestImportAndListPoints(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	n, err := e.meetings.ImportPoints(ctx, []*models.MeetingPoint{
		{Name: "Main Library", Kind: models.PointLibrary, Enabled: true},
		{Name: "Somewhere"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	points, err := e.meetings.ListPoints(ctx, models.PointOther, false)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "Somewhere", points[0].Name)

	_, err = e.meetings.ListPoints(ctx, "MOON", false)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.meetings.ImportPoints(ctx, []*models.MeetingPoint{{Name: ""}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
