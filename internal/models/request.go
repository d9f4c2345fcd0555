package models

import "time"

type ExchangeRequest struct {
	ID             int64      `json:"id"`
	RequesterID    int64      `json:"requester_id"`
	ReceiverID     int64      `json:"receiver_id"`
	DesiredBookID  int64      `json:"desired_book_id"`
	OfferedBookID  int64      `json:"offered_book_id"`
	AcceptedBookID *int64     `json:"accepted_book_id,omitempty"`
	State          string     `json:"state"`
	Place          string     `json:"place,omitempty"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RequestView is the read-side projection of a request joined with its exchange.
// EffectiveState is the exchange state when an exchange exists, else the request state.
type RequestView struct {
	ExchangeRequest
	ExchangeID     *int64 `json:"exchange_id,omitempty"`
	ExchangeState  string `json:"exchange_state,omitempty"`
	EffectiveState string `json:"effective_state"`
}

// PendingSummary counts incoming pending requests per desired book.
type PendingSummary struct {
	BookID  int64 `json:"book_id"`
	Pending int   `json:"pending"`
}
