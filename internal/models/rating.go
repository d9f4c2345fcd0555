package models

import "time"

type Rating struct {
	ID         int64     `json:"id"`
	ExchangeID int64     `json:"exchange_id"`
	RaterID    int64     `json:"rater_id"`
	RateeID    int64     `json:"ratee_id"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

type RatingSummary struct {
	UserID  int64   `json:"user_id"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}
