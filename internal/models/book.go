package models

import "time"

// Book is the engine's view of a catalog listing: ownership and availability only.
type Book struct {
	ID           int64     `json:"id" yaml:"id"`
	OwnerID      int64     `json:"owner_id" yaml:"owner_id"`
	Title        string    `json:"title" yaml:"title"`
	Available    bool      `json:"available" yaml:"available"`
	StatusReason string    `json:"status_reason" yaml:"status_reason"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// Locked reports whether the status reason forbids any owner-initiated change.
func (b *Book) Locked() bool {
	return b.StatusReason == ReasonWithdrawn || b.StatusReason == ReasonCompleted
}
