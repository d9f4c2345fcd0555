package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookswap/internal/models"
)

const proposalColumns = `id, exchange_id, proposed_by, method, address, latitude, longitude, point_id,
        scheduled_at, notes, state, decided_by, decided_at, active, created_at`

func scanProposal(row rowScanner) (*models.MeetingProposal, error) {
	var p models.MeetingProposal
	err := row.Scan(&p.ID, &p.ExchangeID, &p.ProposedBy, &p.Method, &p.Address, &p.Latitude, &p.Longitude,
		&p.PointID, &p.ScheduledAt, &p.Notes, &p.State, &p.DecidedBy, &p.DecidedAt, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func queryProposal(ctx context.Context, q queryer, query string, args ...interface{}) (*models.MeetingProposal, error) {
	p, err := scanProposal(q.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM meeting_proposals `+query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting proposal: %w", err)
	}
	return p, nil
}

// CreateProposal stores a Pending proposal made by the receiver of an Accepted
// exchange. earliest is the first acceptable meeting time.
func (db *DB) CreateProposal(ctx context.Context, p *models.MeetingProposal, earliest time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := acceptedExchangeFor(ctx, tx, p.ExchangeID, func(e *models.Exchange) error {
			if e.ReceiverID != p.ProposedBy {
				return ErrNotReceiver
			}
			return nil
		}); err != nil {
			return err
		}
		if p.ScheduledAt.Before(earliest) {
			return ErrMeetingTooSoon
		}

		if p.Method == models.MethodPredefined {
			if p.PointID == nil {
				return ErrMeetingPointNotFound
			}
			point, err := getMeetingPoint(ctx, tx, *p.PointID)
			if err != nil {
				return err
			}
			if !point.Enabled {
				return ErrPointDisabled
			}
			if strings.TrimSpace(p.Address) == "" {
				p.Address = point.Label()
			}
			if p.Latitude == nil && p.Longitude == nil {
				p.Latitude, p.Longitude = &point.Latitude, &point.Longitude
			}
		}

		open, err := exists(ctx, tx,
			`SELECT 1 FROM meeting_proposals WHERE exchange_id = ? AND state IN (?, ?) LIMIT 1`,
			p.ExchangeID, models.ProposalPending, models.ProposalAccepted)
		if err != nil {
			return err
		}
		if open {
			return ErrProposalExists
		}

		p.State = models.ProposalPending
		p.Active = true
		p.CreatedAt = now()
		res, err := tx.ExecContext(ctx, `
            INSERT INTO meeting_proposals (exchange_id, proposed_by, method, address, latitude, longitude,
                point_id, scheduled_at, notes, state, active, created_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ExchangeID, p.ProposedBy, p.Method, p.Address, p.Latitude, p.Longitude,
			p.PointID, p.ScheduledAt.UTC(), p.Notes, p.State, p.Active, p.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrProposalExists
			}
			return fmt.Errorf("failed to create meeting proposal: %w", err)
		}
		p.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		return nil
	})
}

// DecideProposal lets the requester accept or reject the Pending proposal.
// Acceptance copies place and time onto the exchange and its request.
func (db *DB) DecideProposal(ctx context.Context, exchangeID, confirmerID int64, accept bool, notes string, at time.Time) (*models.MeetingProposal, error) {
	var proposal *models.MeetingProposal
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		ex, err := acceptedExchangeFor(ctx, tx, exchangeID, func(e *models.Exchange) error {
			if e.RequesterID != confirmerID {
				return ErrNotRequester
			}
			return nil
		})
		if err != nil {
			return err
		}

		p, err := queryProposal(ctx, tx, `WHERE exchange_id = ? AND state = ?`, exchangeID, models.ProposalPending)
		if errors.Is(err, ErrProposalNotFound) {
			return ErrNoPendingProposal
		}
		if err != nil {
			return err
		}

		at = at.UTC()
		state := models.ProposalRejected
		if accept {
			state = models.ProposalAccepted
		} else if note := strings.TrimSpace(notes); note != "" {
			p.Notes = truncateRunes(p.Notes+"\n[REJECTED] "+note, models.MaxNotesLength)
		}

		if _, err := tx.ExecContext(ctx, `
            UPDATE meeting_proposals SET state = ?, notes = ?, decided_by = ?, decided_at = ?, active = 0
            WHERE id = ?`,
			state, p.Notes, confirmerID, at, p.ID); err != nil {
			if isUniqueViolation(err) {
				return ErrProposalExists
			}
			return fmt.Errorf("failed to decide meeting proposal: %w", err)
		}

		if accept {
			scheduled := p.ScheduledAt.UTC()
			if _, err := tx.ExecContext(ctx,
				`UPDATE exchanges SET place = ?, scheduled_at = ?, updated_at = ? WHERE id = ?`,
				p.Address, scheduled, at, ex.ID); err != nil {
				return fmt.Errorf("failed to update exchange meeting: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE exchange_requests SET place = ?, scheduled_at = ?, updated_at = ? WHERE id = ?`,
				p.Address, scheduled, at, ex.RequestID); err != nil {
				return fmt.Errorf("failed to update request meeting: %w", err)
			}
		}

		p.State, p.Active = state, false
		p.DecidedBy, p.DecidedAt = &confirmerID, &at
		proposal = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// CurrentProposal returns the active proposal of the exchange, or else the latest one.
func (db *DB) CurrentProposal(ctx context.Context, exchangeID int64) (*models.MeetingProposal, error) {
	if _, err := getExchange(ctx, db, exchangeID); err != nil {
		return nil, err
	}
	return queryProposal(ctx, db, `WHERE exchange_id = ? ORDER BY active DESC, id DESC LIMIT 1`, exchangeID)
}

// acceptedProposalExists reports whether a meeting place and time are locked for the exchange.
func acceptedProposalExists(ctx context.Context, q queryer, exchangeID int64) (bool, error) {
	return exists(ctx, q, `SELECT 1 FROM meeting_proposals WHERE exchange_id = ? AND state = ? LIMIT 1`,
		exchangeID, models.ProposalAccepted)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
