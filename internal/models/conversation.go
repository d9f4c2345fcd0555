package models

import "time"

type Conversation struct {
	ID            int64     `json:"id"`
	ExchangeID    int64     `json:"exchange_id"`
	LastMessageID int64     `json:"last_message_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       *int64    `json:"sender_id,omitempty"`
	Body           string    `json:"body"`
	System         bool      `json:"system"`
	SentAt         time.Time `json:"sent_at"`
}
