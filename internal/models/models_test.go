package models_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
)

func TestNewPublicRoomValidatesName(t *testing.T) {
	owner := ids.NewUserID()
	now := time.Now()

	_, err := models.NewPublicRoom(ids.NewRoomID(), "   ", owner, now)
	require.Error(t, err)

	_, err = models.NewPublicRoom(ids.NewRoomID(), strings.Repeat("a", 61), owner, now)
	require.Error(t, err)

	room, err := models.NewPublicRoom(ids.NewRoomID(), "  general  ", owner, now)
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, models.RoomPublic, room.Visibility)
	assert.Nil(t, room.Password)
}

func TestNewPrivateRoomKeepsPassword(t *testing.T) {
	owner := ids.NewUserID()
	now := time.Now()
	pw := "s3cret"

	room, err := models.NewPrivateRoom(ids.NewRoomID(), "vip-lounge", owner, &pw, now)
	require.NoError(t, err)
	assert.Equal(t, models.RoomPrivate, room.Visibility)
	require.NotNil(t, room.Password)
	assert.Equal(t, pw, *room.Password)
}

func TestChatRoomLifecycleMutators(t *testing.T) {
	owner := ids.NewUserID()
	now := time.Now()
	room, err := models.NewPublicRoom(ids.NewRoomID(), "general", owner, now)
	require.NoError(t, err)

	later := now.Add(time.Minute)
	require.NoError(t, room.Rename("renamed", later))
	assert.Equal(t, "renamed", room.Name)
	assert.Equal(t, later, room.UpdatedAt)

	newOwner := ids.NewUserID()
	room.ChangeOwner(newOwner, later)
	assert.Equal(t, newOwner, room.OwnerID)

	pw := "hunter2"
	room.SetPrivate(&pw, later)
	assert.Equal(t, models.RoomPrivate, room.Visibility)
	assert.Equal(t, &pw, room.Password)

	room.SetPublic(later)
	assert.Equal(t, models.RoomPublic, room.Visibility)
	assert.Nil(t, room.Password)

	assert.False(t, room.IsClosed)
	room.Close(later)
	assert.True(t, room.IsClosed)
	room.Reopen(later)
	assert.False(t, room.IsClosed)
}

func TestMessageEditKeepsLastRevisionOnly(t *testing.T) {
	now := time.Now()
	original, err := ids.NewMessageContent("hello")
	require.NoError(t, err)
	msg := models.NewMessage(ids.NewMessageID(), ids.NewRoomID(), ids.NewUserID(), original, models.MessageText, nil, now)

	first, err := ids.NewMessageContent("hello again")
	require.NoError(t, err)
	require.NoError(t, msg.Edit(first, now.Add(time.Minute)))
	require.NotNil(t, msg.LastRevision)
	assert.Equal(t, original, msg.LastRevision.Content)

	second, err := ids.NewMessageContent("final version")
	require.NoError(t, err)
	require.NoError(t, msg.Edit(second, now.Add(2*time.Minute)))
	// Only the immediately-prior revision survives, not a chain.
	assert.Equal(t, first, msg.LastRevision.Content)
	assert.Equal(t, second, msg.Content)
}

func TestEditDeletedMessageFails(t *testing.T) {
	now := time.Now()
	content, err := ids.NewMessageContent("hello")
	require.NoError(t, err)
	msg := models.NewMessage(ids.NewMessageID(), ids.NewRoomID(), ids.NewUserID(), content, models.MessageText, nil, now)
	msg.MarkDeleted()

	_, err = ids.NewMessageContent("edit after delete")
	require.NoError(t, err)
	err = msg.Edit(content, now)
	require.Error(t, err)
}

func TestDeliveryRecordDeliveryDelay(t *testing.T) {
	sentAt := time.Now()
	record := models.NewDeliveryRecord(ids.NewMessageID(), ids.NewUserID(), sentAt)
	assert.False(t, record.IsDelivered())

	_, ok := record.DeliveryDelay()
	assert.False(t, ok)

	deliveredAt := sentAt.Add(250 * time.Millisecond)
	record.MarkDelivered(deliveredAt)
	assert.True(t, record.IsDelivered())

	delay, ok := record.DeliveryDelay()
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, delay)
}

func TestPresenceEventConstructors(t *testing.T) {
	userID, roomID := ids.NewUserID(), ids.NewRoomID()
	now := time.Now()

	connected := models.NewConnectionEvent(userID, roomID, now)
	assert.Equal(t, models.EventConnected, connected.Kind)

	disconnected := models.NewDisconnectionEvent(userID, roomID, now)
	assert.Equal(t, models.EventDisconnected, disconnected.Kind)

	heartbeat := models.NewHeartbeatEvent(userID, roomID, now)
	assert.Equal(t, models.EventHeartbeat, heartbeat.Kind)
}
