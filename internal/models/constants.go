package models

import "time"

// Request states.
const (
	RequestPending   = "Pending"
	RequestAccepted  = "Accepted"
	RequestRejected  = "Rejected"
	RequestCancelled = "Cancelled"
)

// Exchange states.
const (
	ExchangePending   = "Pending"
	ExchangeAccepted  = "Accepted"
	ExchangeCompleted = "Completed"
	ExchangeCancelled = "Cancelled"
	ExchangeRejected  = "Rejected"
)

// Meeting proposal states.
const (
	ProposalPending  = "Pending"
	ProposalAccepted = "Accepted"
	ProposalRejected = "Rejected"
)

// Meeting methods.
const (
	MethodManual     = "MANUAL"
	MethodPredefined = "PREDEFINED"
)

// Book status reasons. An empty reason means the owner never touched it.
const (
	ReasonNone          = ""
	ReasonOwnerDisabled = "OWNER_DISABLED"
	ReasonWithdrawn     = "WITHDRAWN"
	ReasonCompleted     = "COMPLETED"
)

// Meeting point kinds.
const (
	PointCampus       = "CAMPUS"
	PointLibrary      = "LIBRARY"
	PointBookExchange = "BOOK_EXCHANGE"
	PointMetro        = "METRO"
	PointOther        = "OTHER"
)

// Participant roles inside an exchange conversation.
const (
	RoleRequester = "requester"
	RoleReceiver  = "receiver"
)

const (
	// DefaultPlace is shown until a meeting proposal is accepted.
	DefaultPlace = "To be arranged"

	// MeetingLeadTime is the minimum distance between now and a proposed meeting.
	MeetingLeadTime = 15 * time.Minute

	// CodeTTL is how long a completion code stays valid.
	CodeTTL = 30 * 24 * time.Hour

	// CodeAlphabet excludes characters that are easy to misread (0/O, 1/I).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	// DefaultCodeLength is the length of a generated completion code.
	DefaultCodeLength = 6

	MaxNotesLength   = 240
	MaxCommentLength = 500
)
