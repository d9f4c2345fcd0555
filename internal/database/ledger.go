package database

import (
	"context"
	"database/sql"
	"fmt"

	"bookswap/internal/models"

	sq "github.com/Masterminds/squirrel"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// The ledger predicates are pure reads over current rows. Transitions call them
// inside their own immediate transaction and never cache the answers.

// offeredInPending reports whether requesterID offers bookID in a Pending
// request other than exceptRequestID.
func offeredInPending(ctx context.Context, q queryer, requesterID, bookID, exceptRequestID int64) (bool, error) {
	return exists(ctx, q, `
        SELECT 1 FROM exchange_requests r
        JOIN request_offers o ON o.request_id = r.id
        WHERE o.book_id = ? AND r.requester_id = ? AND r.state = ? AND r.id <> ?
        LIMIT 1`,
		bookID, requesterID, models.RequestPending, exceptRequestID)
}

// offeredByOwner reports whether the owner of bookID is offering it in any Pending request.
func offeredByOwner(ctx context.Context, q queryer, bookID int64) (bool, error) {
	return exists(ctx, q, `
        SELECT 1 FROM exchange_requests r
        JOIN request_offers o ON o.request_id = r.id
        JOIN books b ON b.id = o.book_id
        WHERE o.book_id = ? AND r.requester_id = b.owner_id AND r.state = ?
        LIMIT 1`,
		bookID, models.RequestPending)
}

// inNegotiation reports whether bookID participates in a Pending or Accepted
// exchange, either as the committed book or as the desired book of its request.
func inNegotiation(ctx context.Context, q queryer, bookID int64) (bool, error) {
	return exchangeReferences(ctx, q, bookID, 0, models.ExchangePending, models.ExchangeAccepted)
}

// committedInAccepted reports whether bookID is bound to an Accepted exchange
// other than exceptExchangeID.
func committedInAccepted(ctx context.Context, q queryer, bookID, exceptExchangeID int64) (bool, error) {
	return exchangeReferences(ctx, q, bookID, exceptExchangeID, models.ExchangeAccepted)
}

// boundToCompleted reports whether bookID was exchanged in a Completed exchange.
func boundToCompleted(ctx context.Context, q queryer, bookID int64) (bool, error) {
	return exchangeReferences(ctx, q, bookID, 0, models.ExchangeCompleted)
}

func exchangeReferences(ctx context.Context, q queryer, bookID, exceptExchangeID int64, states ...string) (bool, error) {
	query, args, err := qb.Select("1").
		From("exchanges e").
		Join("exchange_requests r ON r.id = e.request_id").
		Where("(e.committed_book_id = ? OR r.desired_book_id = ?)", bookID, bookID).
		Where(sq.Eq{"e.state": states}).
		Where("e.id <> ?", exceptExchangeID).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build ledger query: %w", err)
	}
	return exists(ctx, q, query, args...)
}

func exists(ctx context.Context, q queryer, query string, args ...interface{}) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to evaluate ledger predicate: %w", err)
	}
	return true, nil
}

// IsBookCommitted answers whether bookID is unavailable for a new commitment:
// it is in a Pending or Accepted exchange, offered by its owner in a Pending
// request, or sits in a Completed exchange.
func (db *DB) IsBookCommitted(ctx context.Context, bookID int64) (bool, error) {
	checks := []func() (bool, error){
		func() (bool, error) { return inNegotiation(ctx, db, bookID) },
		func() (bool, error) { return offeredByOwner(ctx, db, bookID) },
		func() (bool, error) { return boundToCompleted(ctx, db, bookID) },
	}
	for _, check := range checks {
		committed, err := check()
		if err != nil || committed {
			return committed, err
		}
	}
	return false, nil
}
