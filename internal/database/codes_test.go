package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveCompletionCodeRequiresAcceptedMeeting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)

	_, err := db.SaveCompletionCode(ctx, ex.ID, 2, "K7M2QX", now().Add(models.CodeTTL))
	assert.ErrorIs(t, err, ErrNoAcceptedMeeting)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	lockMeeting(t, db, ex)

	_, err = db.SaveCompletionCode(ctx, ex.ID, 1, "K7M2QX", now().Add(models.CodeTTL))
	assert.ErrorIs(t, err, ErrNotReceiver)

	code, err := db.SaveCompletionCode(ctx, ex.ID, 2, " k7m2qx ", now().Add(models.CodeTTL))
	require.NoError(t, err)
	assert.Equal(t, "K7M2QX", code.Code)

	other := acceptedExchange(t, db)
	lockMeeting(t, db, other)
	_, err = db.SaveCompletionCode(ctx, other.ID, 2, "K7M2QX", now().Add(models.CodeTTL))
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestClaimCompletionCodeFailures(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)
	lockMeeting(t, db, ex)

	_, err := db.ClaimCompletionCode(ctx, ex.ID, 1, "K7M2QX", now())
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Equal(t, domain.KindState, domain.KindOf(err))

	issued := now()
	_, err = db.SaveCompletionCode(ctx, ex.ID, 2, "K7M2QX", issued.Add(time.Hour))
	require.NoError(t, err)

	_, err = db.ClaimCompletionCode(ctx, ex.ID, 2, "K7M2QX", issued)
	assert.ErrorIs(t, err, ErrNotRequester)

	_, err = db.ClaimCompletionCode(ctx, ex.ID, 1, "AAAAAA", issued)
	assert.ErrorIs(t, err, ErrCodeMismatch)

	_, err = db.ClaimCompletionCode(ctx, ex.ID, 1, "K7M2QX", issued.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	// Failed attempts leave the code usable.
	claim, err := db.ClaimCompletionCode(ctx, ex.ID, 1, "k7m2qx", issued)
	require.NoError(t, err)
	assert.Equal(t, ex.ID, claim.ExchangeID)

	_, err = db.ClaimCompletionCode(ctx, ex.ID, 1, "K7M2QX", issued)
	assert.ErrorIs(t, err, ErrCodeUsed)
}

func TestReleaseCompletionCode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)
	lockMeeting(t, db, ex)

	_, err := db.SaveCompletionCode(ctx, ex.ID, 2, "HJKL", now().Add(models.CodeTTL))
	require.NoError(t, err)

	_, err = db.FinalizeCompletion(ctx, ex.ID, now())
	assert.ErrorIs(t, err, ErrCodeNotClaimed)

	claim, err := db.ClaimCompletionCode(ctx, ex.ID, 1, "HJKL", now())
	require.NoError(t, err)
	require.NoError(t, db.ReleaseCompletionCode(ctx, claim))

	code, err := db.GetCompletionCode(ctx, ex.ID)
	require.NoError(t, err)
	assert.Nil(t, code.UsedAt)

	assert.ErrorIs(t, db.ReleaseCompletionCode(ctx, claim), ErrClaimNotFound)

	claim, err = db.ClaimCompletionCode(ctx, ex.ID, 1, "HJKL", now())
	require.NoError(t, err)
	_, err = db.FinalizeCompletion(ctx, ex.ID, now())
	require.NoError(t, err)

	// A completed exchange keeps its consumed code.
	assert.ErrorIs(t, db.ReleaseCompletionCode(ctx, claim), ErrClaimNotFound)
}

func TestConcurrentCompleteConsumesCodeOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)
	lockMeeting(t, db, ex)

	_, err := db.SaveCompletionCode(ctx, ex.ID, 2, "K7M2QX", now().Add(models.CodeTTL))
	require.NoError(t, err)

	complete := func() error {
		if _, err := db.ClaimCompletionCode(ctx, ex.ID, 1, "K7M2QX", now()); err != nil {
			return err
		}
		_, err := db.FinalizeCompletion(ctx, ex.ID, now())
		return err
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = complete()
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	got, err := db.GetExchange(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeCompleted, got.State)
}

// Walks the whole negotiation for two users from request to rating.
func TestExchangeHappyPath(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := addBook(t, db, 1, "A")
	b := addBook(t, db, 2, "B")
	c := addBook(t, db, 3, "C")

	req := mustCreateRequest(t, db, 1, b.ID, a.ID)
	rival := mustCreateRequest(t, db, 3, b.ID, c.ID)

	acc, err := db.AcceptRequest(ctx, req.ID, 2, a.ID)
	require.NoError(t, err)
	ex := acc.Exchange
	assert.Equal(t, models.ExchangeAccepted, ex.State)
	assert.Equal(t, models.RequestRejected, requestState(t, db, rival.ID))

	when := time.Date(2030, 1, 10, 15, 0, 0, 0, time.UTC)
	p := &models.MeetingProposal{ExchangeID: ex.ID, ProposedBy: 2, Method: models.MethodManual,
		Address: "Library", ScheduledAt: when}
	require.NoError(t, db.CreateProposal(ctx, p, now()))
	_, err = db.DecideProposal(ctx, ex.ID, 1, true, "", now())
	require.NoError(t, err)

	got, err := db.GetExchange(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, "Library", got.Place)
	assert.True(t, when.Equal(*got.ScheduledAt))

	_, err = db.SaveCompletionCode(ctx, ex.ID, 2, "K7M2QX", now().Add(models.CodeTTL))
	require.NoError(t, err)
	_, err = db.ClaimCompletionCode(ctx, ex.ID, 1, "K7M2QX", now())
	require.NoError(t, err)
	done, err := db.FinalizeCompletion(ctx, ex.ID, now())
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeCompleted, done.State)
	require.NotNil(t, done.CompletedAt)

	for _, id := range []int64{a.ID, b.ID} {
		book, err := db.GetBook(ctx, id)
		require.NoError(t, err)
		assert.False(t, book.Available)
		assert.Equal(t, models.ReasonCompleted, book.StatusReason)
	}

	again, err := db.FinalizeCompletion(ctx, ex.ID, now())
	require.NoError(t, err)
	assert.Equal(t, models.ExchangeCompleted, again.State)

	r, err := db.CreateRating(ctx, ex.ID, 1, 5, "great swap")
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.RateeID)

	_, err = db.CreateRating(ctx, ex.ID, 1, 1, "changed my mind")
	assert.ErrorIs(t, err, ErrAlreadyRated)
	assert.ErrorIs(t, err, domain.ErrConflict)

	mine, err := db.GetRatingByRater(ctx, ex.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, mine.Score)
	assert.Equal(t, "great swap", mine.Comment)
}
