package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookswap/internal/domain"
	"bookswap/internal/models"
)

var ErrCodeNotClaimed = domain.State("completion code has not been claimed")

func getCompletionCode(ctx context.Context, q queryer, exchangeID int64) (*models.CompletionCode, error) {
	var c models.CompletionCode
	err := q.QueryRowContext(ctx,
		`SELECT exchange_id, code, expires_at, used_at FROM completion_codes WHERE exchange_id = ?`, exchangeID).
		Scan(&c.ExchangeID, &c.Code, &c.ExpiresAt, &c.UsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion code: %w", err)
	}
	return &c, nil
}

// GetCompletionCode returns nil without error when no code was issued.
func (db *DB) GetCompletionCode(ctx context.Context, exchangeID int64) (*models.CompletionCode, error) {
	return getCompletionCode(ctx, db, exchangeID)
}

// SaveCompletionCode issues or replaces the exchange's code. It requires an
// accepted meeting and clears any previous use.
func (db *DB) SaveCompletionCode(ctx context.Context, exchangeID, ownerID int64, code string, expiresAt time.Time) (*models.CompletionCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	expiresAt = expiresAt.UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := acceptedExchangeFor(ctx, tx, exchangeID, func(e *models.Exchange) error {
			if e.ReceiverID != ownerID {
				return ErrNotReceiver
			}
			return nil
		}); err != nil {
			return err
		}

		locked, err := acceptedProposalExists(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		if !locked {
			return ErrNoAcceptedMeeting
		}

		if _, err := tx.ExecContext(ctx, `
            INSERT INTO completion_codes (exchange_id, code, expires_at, used_at) VALUES (?, ?, ?, NULL)
            ON CONFLICT(exchange_id) DO UPDATE SET code = excluded.code, expires_at = excluded.expires_at, used_at = NULL`,
			exchangeID, code, expiresAt); err != nil {
			if isUniqueViolation(err) {
				return ErrCodeTaken
			}
			return fmt.Errorf("failed to save completion code: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.CompletionCode{ExchangeID: exchangeID, Code: code, ExpiresAt: expiresAt}, nil
}

// ClaimCompletionCode is the first completion phase: it validates the code and
// marks it used with a conditional update, so only one caller can win.
func (db *DB) ClaimCompletionCode(ctx context.Context, exchangeID, callerID int64, code string, at time.Time) (*models.CodeClaim, error) {
	at = at.UTC()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		ex, err := getExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		if ex.RequesterID != callerID {
			return ErrNotRequester
		}

		stored, err := getCompletionCode(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		if stored != nil && stored.UsedAt != nil {
			return ErrCodeUsed
		}
		if ex.State != models.ExchangeAccepted {
			return ErrExchangeNotAccepted
		}
		if stored == nil {
			return ErrNoCode
		}
		if stored.Expired(at) {
			return ErrCodeExpired
		}
		if !strings.EqualFold(strings.TrimSpace(code), stored.Code) {
			return ErrCodeMismatch
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE completion_codes SET used_at = ? WHERE exchange_id = ? AND used_at IS NULL`, at, exchangeID)
		if err != nil {
			return fmt.Errorf("failed to claim completion code: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrCodeUsed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &models.CodeClaim{ExchangeID: exchangeID, UsedAt: at}, nil
}

// FinalizeCompletion is the second completion phase. It completes the exchange
// and retires both books. Finalizing a Completed exchange is a no-op.
func (db *DB) FinalizeCompletion(ctx context.Context, exchangeID int64, completedAt time.Time) (*models.Exchange, error) {
	completedAt = completedAt.UTC()
	var ex *models.Exchange
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		e, err := getExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		if e.State == models.ExchangeCompleted {
			ex = e
			return nil
		}
		if e.State != models.ExchangeAccepted {
			return ErrExchangeNotAccepted
		}

		claimed, err := exists(ctx, tx,
			`SELECT 1 FROM completion_codes WHERE exchange_id = ? AND used_at IS NOT NULL`, exchangeID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrCodeNotClaimed
		}

		ts := now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE exchanges SET state = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
			models.ExchangeCompleted, completedAt, ts, exchangeID); err != nil {
			return fmt.Errorf("failed to complete exchange: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET available = 0, status_reason = ?, updated_at = ? WHERE id IN (?, ?)`,
			models.ReasonCompleted, ts, e.CommittedBookID, e.DesiredBookID); err != nil {
			return fmt.Errorf("failed to retire exchanged books: %w", err)
		}

		e.State, e.CompletedAt, e.UpdatedAt = models.ExchangeCompleted, &completedAt, ts
		ex = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ex, nil
}

// ReleaseCompletionCode undoes a claim whose finalization failed, so the code
// stays usable. It only touches the claim it was given and never a completed exchange.
func (db *DB) ReleaseCompletionCode(ctx context.Context, claim *models.CodeClaim) error {
	res, err := db.ExecContext(ctx, `
        UPDATE completion_codes SET used_at = NULL
        WHERE exchange_id = ? AND used_at = ?
          AND exchange_id IN (SELECT id FROM exchanges WHERE state = ?)`,
		claim.ExchangeID, claim.UsedAt.UTC(), models.ExchangeAccepted)
	if err != nil {
		return fmt.Errorf("failed to release completion code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrClaimNotFound
	}
	return nil
}
