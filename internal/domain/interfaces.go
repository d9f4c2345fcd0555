package domain

import (
	"context"
	"time"

	"bookswap/internal/models"
)

// RequestQuery filters request listings.
type RequestQuery struct {
	UserID int64
	// State filters on the effective state when set.
	State string
	Limit uint64
}

type BookStore interface {
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	UpsertBook(ctx context.Context, book *models.Book) error
	SetBookAvailability(ctx context.Context, bookID, ownerID int64, available bool) (*models.Book, error)
	DeleteBook(ctx context.Context, bookID, ownerID int64) (*models.BookDeletion, error)
	OfferedBusyBooks(ctx context.Context, userID int64) ([]int64, error)
	IsBookCommitted(ctx context.Context, bookID int64) (bool, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, requesterID, desiredBookID, offeredBookID int64) (*models.RequestCreation, error)
	AcceptRequest(ctx context.Context, requestID, receiverID, bookID int64) (*models.Acceptance, error)
	RejectRequest(ctx context.Context, requestID, receiverID int64) (*models.ExchangeRequest, error)
	CancelRequest(ctx context.Context, requestID, requesterID int64) (*models.ExchangeRequest, error)
	GetRequestView(ctx context.Context, requestID int64) (*models.RequestView, error)
	ListIncomingRequests(ctx context.Context, q RequestQuery) ([]*models.RequestView, error)
	ListOutgoingRequests(ctx context.Context, q RequestQuery) ([]*models.RequestView, error)
	PendingSummary(ctx context.Context, receiverID int64) ([]models.PendingSummary, error)
}

type ExchangeStore interface {
	GetExchange(ctx context.Context, id int64) (*models.Exchange, error)
	CancelExchange(ctx context.Context, exchangeID, callerID int64) (*models.Exchange, error)
}

type MeetingStore interface {
	GetExchange(ctx context.Context, id int64) (*models.Exchange, error)
	CreateProposal(ctx context.Context, p *models.MeetingProposal, earliest time.Time) error
	DecideProposal(ctx context.Context, exchangeID, confirmerID int64, accept bool, notes string, at time.Time) (*models.MeetingProposal, error)
	CurrentProposal(ctx context.Context, exchangeID int64) (*models.MeetingProposal, error)
	GetMeetingPoint(ctx context.Context, id int64) (*models.MeetingPoint, error)
}

// CompletionStore holds the completion handshake. Claim and Finalize run in
// separate transactions; Release undoes a claim whose finalization failed.
type CompletionStore interface {
	GetExchange(ctx context.Context, id int64) (*models.Exchange, error)
	SaveCompletionCode(ctx context.Context, exchangeID, ownerID int64, code string, expiresAt time.Time) (*models.CompletionCode, error)
	ClaimCompletionCode(ctx context.Context, exchangeID, callerID int64, code string, now time.Time) (*models.CodeClaim, error)
	FinalizeCompletion(ctx context.Context, exchangeID int64, completedAt time.Time) (*models.Exchange, error)
	ReleaseCompletionCode(ctx context.Context, claim *models.CodeClaim) error
}

type RatingStore interface {
	CreateRating(ctx context.Context, exchangeID, raterID int64, score int, comment string) (*models.Rating, error)
	GetRatingByRater(ctx context.Context, exchangeID, raterID int64) (*models.Rating, error)
	GetUserRatingSummary(ctx context.Context, userID int64) (*models.RatingSummary, error)
}

type PointStore interface {
	GetMeetingPoint(ctx context.Context, id int64) (*models.MeetingPoint, error)
	ListMeetingPoints(ctx context.Context, kind string, onlyEnabled bool) ([]*models.MeetingPoint, error)
	UpsertMeetingPoint(ctx context.Context, p *models.MeetingPoint) error
}

type NotificationQueue interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// NotificationSink is the chat channel of an exchange. Delivery is best effort.
type NotificationSink interface {
	PostSystemMessage(ctx context.Context, exchangeID int64, text string) error
}

// Notifier accepts system messages for asynchronous delivery.
type Notifier interface {
	Notify(ctx context.Context, exchangeID int64, text string) error
}

// MessageReader reads the chat log of an exchange.
type MessageReader interface {
	GetMessages(ctx context.Context, exchangeID int64) ([]*models.Message, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// RateLimiter counts writes per user within a window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

// Repository is the full relational store.
type Repository interface {
	BookStore
	RequestStore
	ExchangeStore
	MeetingStore
	CompletionStore
	RatingStore
	PointStore
	NotificationQueue
	NotificationSink
	MessageReader
	HealthCheck(ctx context.Context) error
}
