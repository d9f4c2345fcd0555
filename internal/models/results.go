package models

import "time"

// RequestCreation is the outcome of a successful request creation.
type RequestCreation struct {
	Request *ExchangeRequest `json:"request"`
	// Rejected counts competing requests closed by the cascade.
	Rejected int64 `json:"rejected"`
}

// Acceptance is the outcome of a successful acceptance.
type Acceptance struct {
	Request  *ExchangeRequest `json:"request"`
	Exchange *Exchange        `json:"exchange"`
	Rejected int64            `json:"rejected"`
	// Reaccepted is true when the request was already accepted for the same book.
	Reaccepted bool `json:"reaccepted"`
}

// BookDeletion reports what a book withdrawal cascaded into.
type BookDeletion struct {
	Book               *Book   `json:"book"`
	CancelledExchanges []int64 `json:"cancelled_exchanges"`
	RejectedRequests   int64   `json:"rejected_requests"`
}

// CodeClaim is held between the two completion phases.
type CodeClaim struct {
	ExchangeID int64     `json:"exchange_id"`
	UsedAt     time.Time `json:"used_at"`
}
