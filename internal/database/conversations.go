package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bookswap/internal/models"
)

// ensureConversation makes sure the exchange has a channel with both parties in it.
func ensureConversation(ctx context.Context, tx *sql.Tx, ex *models.Exchange) (int64, error) {
	ts := now()
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO conversations (exchange_id, created_at, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(exchange_id) DO NOTHING`,
		ex.ID, ts, ts); err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE exchange_id = ?`, ex.ID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get conversation: %w", err)
	}

	participants := []struct {
		user int64
		role string
	}{
		{ex.RequesterID, models.RoleRequester},
		{ex.ReceiverID, models.RoleReceiver},
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO conversation_participants (conversation_id, user_id, role) VALUES (?, ?, ?)
            ON CONFLICT(conversation_id, user_id) DO UPDATE SET role = excluded.role`,
			id, p.user, p.role); err != nil {
			return 0, fmt.Errorf("failed to add participant: %w", err)
		}
	}
	return id, nil
}

// PostSystemMessage writes an engine message into the exchange's conversation.
func (db *DB) PostSystemMessage(ctx context.Context, exchangeID int64, text string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		ex, err := getExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		convID, err := ensureConversation(ctx, tx, ex)
		if err != nil {
			return err
		}

		ts := now()
		res, err := tx.ExecContext(ctx, `
            INSERT INTO conversation_messages (conversation_id, sender_id, body, system, sent_at)
            VALUES (?, NULL, ?, 1, ?)`,
			convID, text, ts)
		if err != nil {
			return fmt.Errorf("failed to post message: %w", err)
		}
		msgID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?`,
			msgID, ts, convID); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		return nil
	})
}

func (db *DB) GetConversation(ctx context.Context, exchangeID int64) (*models.Conversation, error) {
	var c models.Conversation
	err := db.QueryRowContext(ctx, `
        SELECT id, exchange_id, last_message_id, created_at, updated_at
        FROM conversations WHERE exchange_id = ?`, exchangeID).
		Scan(&c.ID, &c.ExchangeID, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

// GetConversationParticipants returns user id to role.
func (db *DB) GetConversationParticipants(ctx context.Context, conversationID int64) (map[int64]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT user_id, role FROM conversation_participants WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	participants := make(map[int64]string)
	for rows.Next() {
		var (
			user int64
			role string
		)
		if err := rows.Scan(&user, &role); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants[user] = role
	}
	return participants, rows.Err()
}

func (db *DB) GetMessages(ctx context.Context, exchangeID int64) ([]*models.Message, error) {
	rows, err := db.QueryContext(ctx, `
        SELECT m.id, m.conversation_id, m.sender_id, m.body, m.system, m.sent_at
        FROM conversation_messages m
        JOIN conversations c ON c.id = m.conversation_id
        WHERE c.exchange_id = ?
        ORDER BY m.id`, exchangeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.System, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
