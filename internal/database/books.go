package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookswap/internal/models"

	sq "github.com/Masterminds/squirrel"
)

const bookColumns = `id, owner_id, title, available, status_reason, created_at, updated_at`

func scanBook(row interface{ Scan(...interface{}) error }) (*models.Book, error) {
	var b models.Book
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Title, &b.Available, &b.StatusReason, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func getBook(ctx context.Context, q queryer, id int64) (*models.Book, error) {
	b, err := scanBook(q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return b, nil
}

func (db *DB) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	return getBook(ctx, db, id)
}

// UpsertBook mirrors a catalog listing. Ownership and title come from the
// catalog; availability is only taken on insert, afterwards the engine owns it.
func (db *DB) UpsertBook(ctx context.Context, book *models.Book) error {
	ts := now()
	if book.ID == 0 {
		res, err := db.ExecContext(ctx, `
            INSERT INTO books (owner_id, title, available, status_reason, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?)`,
			book.OwnerID, book.Title, book.Available, book.StatusReason, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to create book: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		book.ID = id
		book.CreatedAt, book.UpdatedAt = ts, ts
		return nil
	}

	_, err := db.ExecContext(ctx, `
        INSERT INTO books (id, owner_id, title, available, status_reason, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, title = excluded.title, updated_at = excluded.updated_at`,
		book.ID, book.OwnerID, book.Title, book.Available, book.StatusReason, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to upsert book %d: %w", book.ID, err)
	}

	stored, err := db.GetBook(ctx, book.ID)
	if err != nil {
		return err
	}
	*book = *stored
	return nil
}

// SetBookAvailability is the owner toggle. WITHDRAWN and COMPLETED books are
// locked, and so is a book committed to an Accepted exchange.
func (db *DB) SetBookAvailability(ctx context.Context, bookID, ownerID int64, available bool) (*models.Book, error) {
	var book *models.Book
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if b.OwnerID != ownerID {
			return ErrNotOwner
		}
		if b.Locked() {
			return ErrBookLocked
		}
		committed, err := committedInAccepted(ctx, tx, bookID, 0)
		if err != nil {
			return err
		}
		if committed {
			return ErrBookInAcceptedExchange
		}

		reason := b.StatusReason
		switch {
		case !available:
			reason = models.ReasonOwnerDisabled
		case b.StatusReason == models.ReasonOwnerDisabled:
			reason = models.ReasonNone
		}

		ts := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET available = ?, status_reason = ?, updated_at = ? WHERE id = ?`,
			available, reason, ts, bookID); err != nil {
			return fmt.Errorf("failed to update book availability: %w", err)
		}
		b.Available, b.StatusReason, b.UpdatedAt = available, reason, ts
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook withdraws a listing and cascades over everything that still
// references it. The row is kept so that history stays intact.
func (db *DB) DeleteBook(ctx context.Context, bookID, ownerID int64) (*models.BookDeletion, error) {
	result := &models.BookDeletion{CancelledExchanges: []int64{}}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := getBook(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if b.OwnerID != ownerID {
			return ErrNotOwner
		}
		completed, err := boundToCompleted(ctx, tx, bookID)
		if err != nil {
			return err
		}
		if completed {
			return ErrBookCompletedExchange
		}
		if b.Locked() {
			return ErrBookLocked
		}

		ts := now()
		result.CancelledExchanges, err = cancelExchangesForBook(ctx, tx, bookID, ts)
		if err != nil {
			return err
		}

		query, args, err := qb.Update("exchange_requests").
			Set("state", models.RequestRejected).
			Set("updated_at", ts).
			Where(sq.Eq{"state": models.RequestPending}).
			Where(sq.Or{
				sq.Eq{"desired_book_id": bookID},
				sq.Expr("id IN (SELECT request_id FROM request_offers WHERE book_id = ?)", bookID),
			}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build reject query: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to reject pending requests: %w", err)
		}
		result.RejectedRequests, _ = res.RowsAffected()

		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET available = 0, status_reason = ?, updated_at = ? WHERE id = ?`,
			models.ReasonWithdrawn, ts, bookID); err != nil {
			return fmt.Errorf("failed to withdraw book: %w", err)
		}
		b.Available, b.StatusReason, b.UpdatedAt = false, models.ReasonWithdrawn, ts
		result.Book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cancelExchangesForBook cancels every Accepted exchange referencing bookID,
// cancels the originating requests and drops their completion codes.
func cancelExchangesForBook(ctx context.Context, tx *sql.Tx, bookID int64, ts time.Time) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
        SELECT e.id, e.request_id FROM exchanges e
        JOIN exchange_requests r ON r.id = e.request_id
        WHERE e.state = ? AND (e.committed_book_id = ? OR r.desired_book_id = ?)`,
		models.ExchangeAccepted, bookID, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to find accepted exchanges: %w", err)
	}
	var exchangeIDs, requestIDs []int64
	for rows.Next() {
		var exID, reqID int64
		if err := rows.Scan(&exID, &reqID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchangeIDs = append(exchangeIDs, exID)
		requestIDs = append(requestIDs, reqID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(exchangeIDs) == 0 {
		return []int64{}, nil
	}

	updates := []sq.UpdateBuilder{
		qb.Update("exchanges").Set("state", models.ExchangeCancelled).Set("updated_at", ts).
			Where(sq.Eq{"id": exchangeIDs}),
		qb.Update("exchange_requests").Set("state", models.RequestCancelled).Set("updated_at", ts).
			Where(sq.Eq{"id": requestIDs}),
	}
	for _, u := range updates {
		query, args, err := u.ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build cancel query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("failed to cancel exchanges: %w", err)
		}
	}

	query, args, err := qb.Delete("completion_codes").Where(sq.Eq{"exchange_id": exchangeIDs}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build code cleanup: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to delete completion codes: %w", err)
	}
	return exchangeIDs, nil
}

// OfferedBusyBooks lists the user's books that are already offered in one of
// their Pending requests.
func (db *DB) OfferedBusyBooks(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT DISTINCT o.book_id FROM request_offers o
        JOIN exchange_requests r ON r.id = o.request_id
        WHERE r.requester_id = ? AND r.state = ?
        ORDER BY o.book_id`,
		userID, models.RequestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list offered books: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan book id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
