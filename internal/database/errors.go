package database

import (
	"errors"

	"bookswap/internal/domain"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrBookNotFound         = domain.NotFound("book not found")
	ErrRequestNotFound      = domain.NotFound("request not found")
	ErrExchangeNotFound     = domain.NotFound("exchange not found")
	ErrMeetingPointNotFound = domain.NotFound("meeting point not found")
	ErrProposalNotFound     = domain.NotFound("meeting proposal not found")
	ErrRatingNotFound       = domain.NotFound("rating not found")

	ErrNotReceiver  = domain.Authorization("only the receiver can do this")
	ErrNotRequester = domain.Authorization("only the requester can do this")
	ErrNotParty     = domain.Authorization("caller is not a party of this exchange")
	ErrNotOwner     = domain.Authorization("caller does not own this book")

	ErrSameBook               = domain.Validation("desired and offered book must differ")
	ErrOwnBook                = domain.Validation("cannot request your own book")
	ErrDesiredUnavailable     = domain.Conflict("desired book is not available")
	ErrOfferedUnavailable     = domain.Conflict("offered book is not available")
	ErrOfferedElsewhere       = domain.Conflict("offered book is already offered in another pending request")
	ErrDesiredOfferedByOwner  = domain.Conflict("desired book is being offered by its owner")
	ErrDesiredCommitted       = domain.Conflict("desired book is already committed to an exchange")
	ErrOfferedCommitted       = domain.Conflict("offered book is already committed to an accepted exchange")
	ErrDuplicatePending       = domain.Conflict("a pending request for this book already exists")
	ErrBookNotOffered         = domain.Conflict("book is not part of the offer")
	ErrReacceptDifferentBook  = domain.Conflict("request was already accepted with a different book")
	ErrRequestNotPending      = domain.State("request is not pending")
	ErrRequestClosed          = domain.State("request can no longer be accepted")
	ErrExchangeClosed         = domain.State("exchange can no longer be accepted")
	ErrExchangeNotAccepted    = domain.State("exchange is not accepted")
	ErrExchangeNotCompleted   = domain.State("exchange is not completed")
	ErrBookLocked             = domain.Conflict("book is locked by its current status")
	ErrBookCompletedExchange  = domain.Conflict("book is part of a completed exchange")
	ErrBookInAcceptedExchange = domain.Conflict("book is committed to an accepted exchange")
	ErrProposalExists         = domain.Conflict("a pending or accepted meeting proposal already exists")
	ErrNoPendingProposal      = domain.State("no pending meeting proposal")
	ErrMeetingTooSoon         = domain.Validation("meeting must be scheduled further in the future")
	ErrPointDisabled          = domain.Validation("meeting point is disabled")
	ErrNoAcceptedMeeting      = domain.Conflict("an accepted meeting is required before issuing a code")
	ErrCodeTaken              = domain.Conflict("completion code is already in use")
	ErrNoCode                 = domain.State("no completion code has been issued")
	ErrCodeUsed               = domain.Conflict("completion code already used")
	ErrCodeExpired            = domain.Conflict("completion code expired")
	ErrCodeMismatch           = domain.Conflict("completion code does not match")
	ErrAlreadyRated           = domain.Conflict("exchange already rated by this user")
	ErrConversationNotFound   = domain.NotFound("conversation not found")
	ErrClaimNotFound          = errors.New("completion code claim not found")
)

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint &&
			(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return false
}
