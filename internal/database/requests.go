package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookswap/internal/domain"
	"bookswap/internal/models"

	sq "github.com/Masterminds/squirrel"
)

const requestColumns = `r.id, r.requester_id, r.receiver_id, r.desired_book_id,
        (SELECT o.book_id FROM request_offers o WHERE o.request_id = r.id ORDER BY o.id LIMIT 1),
        r.accepted_book_id, r.state, r.place, r.scheduled_at, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner, extra ...interface{}) (*models.ExchangeRequest, error) {
	var r models.ExchangeRequest
	dest := []interface{}{
		&r.ID, &r.RequesterID, &r.ReceiverID, &r.DesiredBookID, &r.OfferedBookID,
		&r.AcceptedBookID, &r.State, &r.Place, &r.ScheduledAt, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &r, nil
}

func getRequest(ctx context.Context, q queryer, id int64) (*models.ExchangeRequest, error) {
	r, err := scanRequest(q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM exchange_requests r WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %d: %w", id, err)
	}
	return r, nil
}

func offeredBooks(ctx context.Context, q queryer, requestID int64) (map[int64]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT book_id FROM request_offers WHERE request_id = ?`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get offers: %w", err)
	}
	defer rows.Close()

	offers := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers[id] = true
	}
	return offers, rows.Err()
}

// rejectCompetitors closes every other Pending request wanting bookID in a single statement.
func rejectCompetitors(ctx context.Context, tx *sql.Tx, bookID, exceptRequestID int64) (int64, error) {
	query, args, err := qb.Update("exchange_requests").
		Set("state", models.RequestRejected).
		Set("updated_at", now()).
		Where(sq.Eq{"desired_book_id": bookID, "state": models.RequestPending}).
		Where(sq.NotEq{"id": exceptRequestID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build cascade query: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reject competing requests: %w", err)
	}
	return res.RowsAffected()
}

// CreateRequest inserts a Pending request offering offeredBookID for
// desiredBookID. Pending requests of third parties that want the offered book
// are rejected in the same transaction.
func (db *DB) CreateRequest(ctx context.Context, requesterID, desiredBookID, offeredBookID int64) (*models.RequestCreation, error) {
	if desiredBookID == offeredBookID {
		return nil, ErrSameBook
	}

	var result *models.RequestCreation
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		desired, err := getBook(ctx, tx, desiredBookID)
		if err != nil {
			return err
		}
		if desired.OwnerID == requesterID {
			return ErrOwnBook
		}
		if !desired.Available {
			return ErrDesiredUnavailable
		}

		offered, err := getBook(ctx, tx, offeredBookID)
		if err != nil {
			return err
		}
		if offered.OwnerID != requesterID {
			return ErrNotOwner
		}
		if !offered.Available {
			return ErrOfferedUnavailable
		}

		duplicate, err := exists(ctx, tx,
			`SELECT 1 FROM exchange_requests WHERE requester_id = ? AND desired_book_id = ? AND state = ? LIMIT 1`,
			requesterID, desiredBookID, models.RequestPending)
		if err != nil {
			return err
		}
		if duplicate {
			return ErrDuplicatePending
		}

		checks := []struct {
			check func() (bool, error)
			err   error
		}{
			{func() (bool, error) { return offeredInPending(ctx, tx, requesterID, offeredBookID, 0) }, ErrOfferedElsewhere},
			{func() (bool, error) { return offeredByOwner(ctx, tx, desiredBookID) }, ErrDesiredOfferedByOwner},
			{func() (bool, error) { return inNegotiation(ctx, tx, desiredBookID) }, ErrDesiredCommitted},
			{func() (bool, error) { return committedInAccepted(ctx, tx, offeredBookID, 0) }, ErrOfferedCommitted},
		}
		for _, c := range checks {
			committed, err := c.check()
			if err != nil {
				return err
			}
			if committed {
				return c.err
			}
		}

		ts := now()
		res, err := tx.ExecContext(ctx, `
            INSERT INTO exchange_requests (requester_id, receiver_id, desired_book_id, state, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?)`,
			requesterID, desired.OwnerID, desiredBookID, models.RequestPending, ts, ts)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicatePending
			}
			return fmt.Errorf("failed to create request: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO request_offers (request_id, book_id) VALUES (?, ?)`, id, offeredBookID); err != nil {
			return fmt.Errorf("failed to create offer: %w", err)
		}

		rejected, err := rejectCompetitors(ctx, tx, offeredBookID, id)
		if err != nil {
			return err
		}

		result = &models.RequestCreation{
			Request: &models.ExchangeRequest{
				ID:            id,
				RequesterID:   requesterID,
				ReceiverID:    desired.OwnerID,
				DesiredBookID: desiredBookID,
				OfferedBookID: offeredBookID,
				State:         models.RequestPending,
				CreatedAt:     ts,
				UpdatedAt:     ts,
			},
			Rejected: rejected,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AcceptRequest binds bookID to the request and materializes its exchange.
// Accepting an already accepted request is tolerated for the same book only.
func (db *DB) AcceptRequest(ctx context.Context, requestID, receiverID, bookID int64) (*models.Acceptance, error) {
	var result *models.Acceptance
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		req, err := getRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.ReceiverID != receiverID {
			return ErrNotReceiver
		}
		if req.State != models.RequestPending && req.State != models.RequestAccepted {
			return ErrRequestClosed
		}

		offers, err := offeredBooks(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !offers[bookID] {
			return ErrBookNotOffered
		}

		ex, err := getExchangeByRequest(ctx, tx, requestID)
		if err != nil && !errors.Is(err, ErrExchangeNotFound) {
			return err
		}
		if ex != nil && ex.State != models.ExchangePending && ex.State != models.ExchangeAccepted {
			return ErrExchangeClosed
		}
		reaccept := req.State == models.RequestAccepted
		if reaccept {
			if req.AcceptedBookID != nil && *req.AcceptedBookID != bookID {
				return ErrReacceptDifferentBook
			}
			if ex != nil && ex.CommittedBookID != bookID {
				return ErrReacceptDifferentBook
			}
		}

		desired, err := getBook(ctx, tx, req.DesiredBookID)
		if err != nil {
			return err
		}
		if !desired.Available {
			return ErrDesiredUnavailable
		}
		chosen, err := getBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if !chosen.Available {
			return ErrOfferedUnavailable
		}

		var exceptExchange int64
		if ex != nil {
			exceptExchange = ex.ID
		}
		for _, c := range []struct {
			book int64
			err  error
		}{{desired.ID, ErrDesiredCommitted}, {chosen.ID, ErrOfferedCommitted}} {
			committed, err := committedInAccepted(ctx, tx, c.book, exceptExchange)
			if err != nil {
				return err
			}
			if committed {
				return c.err
			}
		}

		ts := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE exchange_requests SET state = ?, accepted_book_id = ?, updated_at = ? WHERE id = ?`,
			models.RequestAccepted, bookID, ts, requestID); err != nil {
			return fmt.Errorf("failed to accept request: %w", err)
		}

		switch {
		case ex == nil:
			res, err := tx.ExecContext(ctx, `
                INSERT INTO exchanges (request_id, committed_book_id, place, state, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?)`,
				requestID, bookID, models.DefaultPlace, models.ExchangeAccepted, ts, ts)
			if err != nil {
				return fmt.Errorf("failed to create exchange: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get last insert id: %w", err)
			}
			ex = &models.Exchange{
				ID:        id,
				RequestID: requestID,
				Place:     models.DefaultPlace,
				CreatedAt: ts,
			}
		case ex.CommittedBookID != bookID || ex.State != models.ExchangeAccepted:
			if _, err := tx.ExecContext(ctx,
				`UPDATE exchanges SET committed_book_id = ?, state = ?, updated_at = ? WHERE id = ?`,
				bookID, models.ExchangeAccepted, ts, ex.ID); err != nil {
				return fmt.Errorf("failed to update exchange: %w", err)
			}
		}
		ex.CommittedBookID = bookID
		ex.State = models.ExchangeAccepted
		ex.UpdatedAt = ts
		ex.RequesterID, ex.ReceiverID, ex.DesiredBookID = req.RequesterID, req.ReceiverID, req.DesiredBookID

		if _, err := ensureConversation(ctx, tx, ex); err != nil {
			return err
		}

		rejected, err := rejectCompetitors(ctx, tx, req.DesiredBookID, requestID)
		if err != nil {
			return err
		}

		req.State = models.RequestAccepted
		req.AcceptedBookID = &bookID
		req.UpdatedAt = ts
		result = &models.Acceptance{Request: req, Exchange: ex, Rejected: rejected, Reaccepted: reaccept}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RejectRequest closes a Pending request on behalf of its receiver.
func (db *DB) RejectRequest(ctx context.Context, requestID, receiverID int64) (*models.ExchangeRequest, error) {
	return db.closeRequest(ctx, requestID, models.RequestRejected, func(r *models.ExchangeRequest) error {
		if r.ReceiverID != receiverID {
			return ErrNotReceiver
		}
		return nil
	})
}

// CancelRequest withdraws a Pending request on behalf of its requester.
func (db *DB) CancelRequest(ctx context.Context, requestID, requesterID int64) (*models.ExchangeRequest, error) {
	return db.closeRequest(ctx, requestID, models.RequestCancelled, func(r *models.ExchangeRequest) error {
		if r.RequesterID != requesterID {
			return ErrNotRequester
		}
		return nil
	})
}

func (db *DB) closeRequest(ctx context.Context, requestID int64, state string, authorize func(*models.ExchangeRequest) error) (*models.ExchangeRequest, error) {
	var req *models.ExchangeRequest
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if err := authorize(r); err != nil {
			return err
		}
		if r.State != models.RequestPending {
			return ErrRequestNotPending
		}

		ts := now()
		res, err := tx.ExecContext(ctx,
			`UPDATE exchange_requests SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
			state, ts, requestID, models.RequestPending)
		if err != nil {
			return fmt.Errorf("failed to update request state: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRequestNotPending
		}
		r.State, r.UpdatedAt = state, ts
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

const requestViewColumns = requestColumns + `, e.id, e.state, COALESCE(e.state, r.state)`

func scanRequestView(row rowScanner) (*models.RequestView, error) {
	var (
		v        models.RequestView
		exState  sql.NullString
		effState string
	)
	r, err := scanRequest(row, &v.ExchangeID, &exState, &effState)
	if err != nil {
		return nil, err
	}
	v.ExchangeRequest = *r
	v.ExchangeState = exState.String
	v.EffectiveState = effState
	return &v, nil
}

func requestViewQuery() sq.SelectBuilder {
	return qb.Select(requestViewColumns).
		From("exchange_requests r").
		LeftJoin("exchanges e ON e.request_id = r.id")
}

// GetRequestView returns the request with its effective state derived from the exchange.
func (db *DB) GetRequestView(ctx context.Context, requestID int64) (*models.RequestView, error) {
	query, args, err := requestViewQuery().Where(sq.Eq{"r.id": requestID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build request query: %w", err)
	}
	v, err := scanRequestView(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %d: %w", requestID, err)
	}
	return v, nil
}

func (db *DB) ListIncomingRequests(ctx context.Context, q domain.RequestQuery) ([]*models.RequestView, error) {
	return db.listRequests(ctx, "r.receiver_id", q)
}

func (db *DB) ListOutgoingRequests(ctx context.Context, q domain.RequestQuery) ([]*models.RequestView, error) {
	return db.listRequests(ctx, "r.requester_id", q)
}

func (db *DB) listRequests(ctx context.Context, party string, q domain.RequestQuery) ([]*models.RequestView, error) {
	b := requestViewQuery().Where(sq.Eq{party: q.UserID}).OrderBy("r.created_at DESC", "r.id DESC")
	if q.State != "" {
		b = b.Where(sq.Expr("COALESCE(e.state, r.state) = ?", q.State))
	}
	if q.Limit > 0 {
		b = b.Limit(q.Limit)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	views := []*models.RequestView{}
	for rows.Next() {
		v, err := scanRequestView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// PendingSummary counts incoming Pending requests per desired book of receiverID.
func (db *DB) PendingSummary(ctx context.Context, receiverID int64) ([]models.PendingSummary, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT desired_book_id, COUNT(*) FROM exchange_requests
        WHERE receiver_id = ? AND state = ?
        GROUP BY desired_book_id ORDER BY desired_book_id`,
		receiverID, models.RequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize requests: %w", err)
	}
	defer rows.Close()

	summary := []models.PendingSummary{}
	for rows.Next() {
		var s models.PendingSummary
		if err := rows.Scan(&s.BookID, &s.Pending); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summary = append(summary, s)
	}
	return summary, rows.Err()
}
