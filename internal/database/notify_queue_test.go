package database

import (
	"context"
	"testing"
	"time"

	"bookswap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := &models.NotificationTask{ExchangeID: 1, Body: "hello"}
	require.NoError(t, db.CreateNotificationTask(ctx, first))
	assert.Equal(t, models.TaskPending, first.Status)

	later := time.Now().Add(time.Hour)
	second := &models.NotificationTask{ExchangeID: 1, Body: "later", Status: models.TaskRetry, NextRetryAt: &later}
	require.NoError(t, db.CreateNotificationTask(ctx, second))

	due, err := db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, first.ID, due[0].ID)

	retryAt := time.Now().Add(-time.Second)
	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, first.ID, models.TaskRetry, "sink down", &retryAt))

	due, err = db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].RetryCount)
	require.NotNil(t, due[0].LastError)
	assert.Equal(t, "sink down", *due[0].LastError)

	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, first.ID, models.TaskFailed, "gave up", nil))
	failed, err := db.GetFailedNotificationTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotNil(t, failed[0].ProcessedAt)

	require.NoError(t, db.UpdateNotificationTaskStatus(ctx, second.ID, models.TaskCompleted, "", nil))
	due, err = db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestPostSystemMessage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ex := acceptedExchange(t, db)

	require.NoError(t, db.PostSystemMessage(ctx, ex.ID, "Meeting proposal: Library - 2030-01-10 15:00 UTC"))
	require.NoError(t, db.PostSystemMessage(ctx, ex.ID, "Meeting confirmed"))

	msgs, err := db.GetMessages(ctx, ex.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].System)
	assert.Nil(t, msgs[0].SenderID)

	conv, err := db.GetConversation(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, msgs[1].ID, conv.LastMessageID)

	assert.ErrorIs(t, db.PostSystemMessage(ctx, 999, "nobody"), ErrExchangeNotFound)
}
