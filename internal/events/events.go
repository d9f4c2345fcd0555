package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventRequestCreated    = "request_created"
	EventRequestAccepted   = "request_accepted"
	EventRequestRejected   = "request_rejected"
	EventRequestCancelled  = "request_cancelled"
	EventExchangeCancelled = "exchange_cancelled"
	EventExchangeCompleted = "exchange_completed"
	EventMeetingProposed   = "meeting_proposed"
	EventMeetingDecided    = "meeting_decided"
	EventCodeIssued        = "completion_code_issued"
	EventRatingCreated     = "rating_created"
	EventBookWithdrawn     = "book_withdrawn"
	EventBookAvailability  = "book_availability_changed"
)

// RequestEventPayload describes a request transition.
type RequestEventPayload struct {
	RequestID     int64  `json:"request_id"`
	RequesterID   int64  `json:"requester_id"`
	ReceiverID    int64  `json:"receiver_id"`
	DesiredBookID int64  `json:"desired_book_id"`
	OfferedBookID int64  `json:"offered_book_id"`
	State         string `json:"state"`
	Cascaded      int64  `json:"cascaded,omitempty"`
	ChangedByID   int64  `json:"changed_by_id"`
}

// ExchangeEventPayload describes an exchange transition.
type ExchangeEventPayload struct {
	ExchangeID      int64      `json:"exchange_id"`
	RequestID       int64      `json:"request_id"`
	CommittedBookID int64      `json:"committed_book_id"`
	DesiredBookID   int64      `json:"desired_book_id"`
	State           string     `json:"state"`
	Place           string     `json:"place,omitempty"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	ChangedByID     int64      `json:"changed_by_id"`
}

// BookEventPayload describes an owner-initiated book change.
type BookEventPayload struct {
	BookID             int64   `json:"book_id"`
	OwnerID            int64   `json:"owner_id"`
	Available          bool    `json:"available"`
	StatusReason       string  `json:"status_reason"`
	CancelledExchanges []int64 `json:"cancelled_exchanges,omitempty"`
	RejectedRequests   int64   `json:"rejected_requests,omitempty"`
}

// Event is an in-process domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub. Handler errors are logged and never
// reach the publisher.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs the subscribers of the event type synchronously and returns
// how many of them failed.
func (b *EventBus) Publish(event *Event) int {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	failed := 0
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			failed++
			b.logger.Warn().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("event handler failed")
		}
	}
	return failed
}

// PublishJSON serializes the payload and publishes it. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
