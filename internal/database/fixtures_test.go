package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bookswap/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "bookswap.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func addBook(t *testing.T, db *DB, owner int64, title string) *models.Book {
	t.Helper()
	b := &models.Book{OwnerID: owner, Title: title, Available: true}
	require.NoError(t, db.UpsertBook(context.Background(), b))
	return b
}

func mustCreateRequest(t *testing.T, db *DB, requester, desired, offered int64) *models.ExchangeRequest {
	t.Helper()
	res, err := db.CreateRequest(context.Background(), requester, desired, offered)
	require.NoError(t, err)
	return res.Request
}

func mustAccept(t *testing.T, db *DB, req *models.ExchangeRequest) *models.Exchange {
	t.Helper()
	res, err := db.AcceptRequest(context.Background(), req.ID, req.ReceiverID, req.OfferedBookID)
	require.NoError(t, err)
	return res.Exchange
}

func requestState(t *testing.T, db *DB, id int64) string {
	t.Helper()
	var state string
	require.NoError(t, db.QueryRow(`SELECT state FROM exchange_requests WHERE id = ?`, id).Scan(&state))
	return state
}

// lockMeeting proposes and accepts a meeting so that a code can be issued.
func lockMeeting(t *testing.T, db *DB, ex *models.Exchange) *models.MeetingProposal {
	t.Helper()
	ctx := context.Background()
	p := &models.MeetingProposal{
		ExchangeID:  ex.ID,
		ProposedBy:  ex.ReceiverID,
		Method:      models.MethodManual,
		Address:     "Library",
		ScheduledAt: time.Now().Add(48 * time.Hour),
	}
	require.NoError(t, db.CreateProposal(ctx, p, time.Now()))
	decided, err := db.DecideProposal(ctx, ex.ID, ex.RequesterID, true, "", time.Now())
	require.NoError(t, err)
	return decided
}
