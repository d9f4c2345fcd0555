package models

import "time"

type Exchange struct {
	ID              int64      `json:"id"`
	RequestID       int64      `json:"request_id"`
	CommittedBookID int64      `json:"committed_book_id"`
	Place           string     `json:"place"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	State           string     `json:"state"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Filled from the originating request.
	RequesterID   int64 `json:"requester_id"`
	ReceiverID    int64 `json:"receiver_id"`
	DesiredBookID int64 `json:"desired_book_id"`
}

// IsParty reports whether userID is the requester or the receiver.
func (e *Exchange) IsParty(userID int64) bool {
	return userID == e.RequesterID || userID == e.ReceiverID
}

// Counterpart returns the other party relative to userID.
func (e *Exchange) Counterpart(userID int64) int64 {
	if userID == e.RequesterID {
		return e.ReceiverID
	}
	return e.RequesterID
}
