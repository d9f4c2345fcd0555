package models

import "time"

type MeetingProposal struct {
	ID          int64      `json:"id"`
	ExchangeID  int64      `json:"exchange_id"`
	ProposedBy  int64      `json:"proposed_by"`
	Method      string     `json:"method"`
	Address     string     `json:"address"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	PointID     *int64     `json:"point_id,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Notes       string     `json:"notes,omitempty"`
	State       string     `json:"state"`
	DecidedBy   *int64     `json:"decided_by,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// MeetingPoint is an entry of the predefined meeting location registry.
type MeetingPoint struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Kind      string    `json:"kind" yaml:"kind"`
	Address   string    `json:"address" yaml:"address"`
	Latitude  float64   `json:"latitude" yaml:"latitude"`
	Longitude float64   `json:"longitude" yaml:"longitude"`
	Enabled   bool      `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// Label is what gets copied into the proposal address when none was given.
func (p *MeetingPoint) Label() string {
	if p.Address != "" {
		return p.Address
	}
	return p.Name
}
