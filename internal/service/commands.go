package service

import "time"

// CreateRequestCmd opens a request. The offer list is kept as a list on the
// wire but exactly one book may be offered.
type CreateRequestCmd struct {
	RequesterID    int64   `json:"-" validate:"gt=0"`
	DesiredBookID  int64   `json:"desired_book_id" validate:"required,gt=0"`
	OfferedBookIDs []int64 `json:"offered_book_ids" validate:"required,len=1,dive,gt=0"`
}

type AcceptRequestCmd struct {
	RequestID  int64 `json:"-" validate:"gt=0"`
	ReceiverID int64 `json:"-" validate:"gt=0"`
	BookID     int64 `json:"book_id" validate:"required,gt=0"`
}

type ProposeMeetingCmd struct {
	ExchangeID  int64     `json:"-" validate:"gt=0"`
	ProposerID  int64     `json:"-" validate:"gt=0"`
	Method      string    `json:"method" validate:"required,oneof=MANUAL PREDEFINED"`
	Address     string    `json:"address" validate:"required_if=Method MANUAL,max=255"`
	PointID     *int64    `json:"point_id" validate:"required_if=Method PREDEFINED,omitempty,gt=0"`
	Latitude    *float64  `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64  `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Notes       string    `json:"notes"`
}

type ConfirmMeetingCmd struct {
	ExchangeID  int64  `json:"-" validate:"gt=0"`
	ConfirmerID int64  `json:"-" validate:"gt=0"`
	Accept      *bool  `json:"accept" validate:"required"`
	Notes       string `json:"notes"`
}

// GenerateCodeCmd issues a completion code. An empty Code asks for a random one.
type GenerateCodeCmd struct {
	ExchangeID int64  `json:"-" validate:"gt=0"`
	OwnerID    int64  `json:"-" validate:"gt=0"`
	Code       string `json:"code" validate:"omitempty,min=4,max=12,codealphabet"`
}

type CompleteCmd struct {
	ExchangeID  int64      `json:"-" validate:"gt=0"`
	CallerID    int64      `json:"-" validate:"gt=0"`
	Code        string     `json:"code" validate:"required,max=32"`
	CompletedAt *time.Time `json:"completion_date"`
}

type RateCmd struct {
	ExchangeID int64  `json:"-" validate:"gt=0"`
	RaterID    int64  `json:"-" validate:"gt=0"`
	Score      int    `json:"score" validate:"min=1,max=5"`
	Comment    string `json:"comment"`
}
