package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookswap/internal/models"
)

// CreateRating records the rater's single rating of the other party. A second
// attempt fails with ErrAlreadyRated and never overwrites the first.
func (db *DB) CreateRating(ctx context.Context, exchangeID, raterID int64, score int, comment string) (*models.Rating, error) {
	var rating *models.Rating
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		ex, err := getExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		if !ex.IsParty(raterID) {
			return ErrNotParty
		}
		if ex.State != models.ExchangeCompleted {
			return ErrExchangeNotCompleted
		}

		r := &models.Rating{
			ExchangeID: exchangeID,
			RaterID:    raterID,
			RateeID:    ex.Counterpart(raterID),
			Score:      score,
			Comment:    comment,
			CreatedAt:  now(),
		}
		res, err := tx.ExecContext(ctx, `
            INSERT INTO ratings (exchange_id, rater_id, ratee_id, score, comment, created_at)
            VALUES (?, ?, ?, ?, ?, ?)`,
			r.ExchangeID, r.RaterID, r.RateeID, r.Score, r.Comment, r.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyRated
			}
			return fmt.Errorf("failed to create rating: %w", err)
		}
		r.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		rating = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rating, nil
}

func (db *DB) GetRatingByRater(ctx context.Context, exchangeID, raterID int64) (*models.Rating, error) {
	var r models.Rating
	err := db.QueryRowContext(ctx, `
        SELECT id, exchange_id, rater_id, ratee_id, score, comment, created_at
        FROM ratings WHERE exchange_id = ? AND rater_id = ?`, exchangeID, raterID).
		Scan(&r.ID, &r.ExchangeID, &r.RaterID, &r.RateeID, &r.Score, &r.Comment, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRatingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return &r, nil
}

func (db *DB) GetUserRatingSummary(ctx context.Context, userID int64) (*models.RatingSummary, error) {
	s := &models.RatingSummary{UserID: userID}
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(score), 0), COUNT(*) FROM ratings WHERE ratee_id = ?`, userID).
		Scan(&s.Average, &s.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ratings: %w", err)
	}
	return s, nil
}
