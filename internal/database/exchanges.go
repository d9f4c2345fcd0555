package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookswap/internal/models"
)

const exchangeSelect = `SELECT e.id, e.request_id, e.committed_book_id, e.place, e.scheduled_at, e.state,
        e.completed_at, e.created_at, e.updated_at, r.requester_id, r.receiver_id, r.desired_book_id
        FROM exchanges e JOIN exchange_requests r ON r.id = e.request_id`

func scanExchange(row rowScanner) (*models.Exchange, error) {
	var e models.Exchange
	err := row.Scan(&e.ID, &e.RequestID, &e.CommittedBookID, &e.Place, &e.ScheduledAt, &e.State,
		&e.CompletedAt, &e.CreatedAt, &e.UpdatedAt, &e.RequesterID, &e.ReceiverID, &e.DesiredBookID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func queryExchange(ctx context.Context, q queryer, where string, arg int64) (*models.Exchange, error) {
	e, err := scanExchange(q.QueryRowContext(ctx, exchangeSelect+` WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExchangeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}
	return e, nil
}

func getExchange(ctx context.Context, q queryer, id int64) (*models.Exchange, error) {
	return queryExchange(ctx, q, "e.id = ?", id)
}

func getExchangeByRequest(ctx context.Context, q queryer, requestID int64) (*models.Exchange, error) {
	return queryExchange(ctx, q, "e.request_id = ?", requestID)
}

func (db *DB) GetExchange(ctx context.Context, id int64) (*models.Exchange, error) {
	return getExchange(ctx, db, id)
}

// acceptedExchangeFor loads the exchange and checks that caller may act on it while Accepted.
func acceptedExchangeFor(ctx context.Context, tx *sql.Tx, exchangeID int64, authorize func(*models.Exchange) error) (*models.Exchange, error) {
	ex, err := getExchange(ctx, tx, exchangeID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ex); err != nil {
		return nil, err
	}
	if ex.State != models.ExchangeAccepted {
		return nil, ErrExchangeNotAccepted
	}
	return ex, nil
}

// CancelExchange cancels an Accepted exchange on behalf of either party. The
// originating request is cancelled with it and the completion code dropped.
func (db *DB) CancelExchange(ctx context.Context, exchangeID, callerID int64) (*models.Exchange, error) {
	var ex *models.Exchange
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		e, err := acceptedExchangeFor(ctx, tx, exchangeID, func(e *models.Exchange) error {
			if !e.IsParty(callerID) {
				return ErrNotParty
			}
			return nil
		})
		if err != nil {
			return err
		}

		ts := now()
		stmts := []struct {
			query string
			args  []interface{}
		}{
			{`UPDATE exchanges SET state = ?, updated_at = ? WHERE id = ?`,
				[]interface{}{models.ExchangeCancelled, ts, e.ID}},
			{`UPDATE exchange_requests SET state = ?, updated_at = ? WHERE id = ?`,
				[]interface{}{models.RequestCancelled, ts, e.RequestID}},
			{`DELETE FROM completion_codes WHERE exchange_id = ?`,
				[]interface{}{e.ID}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
				return fmt.Errorf("failed to cancel exchange: %w", err)
			}
		}

		e.State, e.UpdatedAt = models.ExchangeCancelled, ts
		ex = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ex, nil
}
