package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/broadcast"
	"github.com/dukepan/multi-rooms-chat-back/internal/chat"
	"github.com/dukepan/multi-rooms-chat-back/internal/clock"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
)

// --- fakes grounded on internal/db's repository interfaces ---

type fakeRooms struct {
	mu      sync.Mutex
	rooms   map[ids.RoomID]*models.ChatRoom
	members *fakeMembers
}

func newFakeRooms() *fakeRooms { return &fakeRooms{rooms: make(map[ids.RoomID]*models.ChatRoom)} }

func (f *fakeRooms) CreateWithOwner(ctx context.Context, room *models.ChatRoom, ownerID ids.UserID) error {
	f.mu.Lock()
	f.rooms[room.ID] = room
	f.mu.Unlock()
	return f.members.Add(ctx, models.NewRoomMember(room.ID, ownerID, models.RoleOwner, room.CreatedAt))
}

func (f *fakeRooms) GetByID(ctx context.Context, id ids.RoomID) (*models.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[id], nil
}

func (f *fakeRooms) Update(ctx context.Context, room *models.ChatRoom) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room
	return nil
}

type fakeMembers struct {
	mu      sync.Mutex
	members map[ids.RoomID]map[ids.UserID]*models.RoomMember
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{members: make(map[ids.RoomID]map[ids.UserID]*models.RoomMember)}
}

func (f *fakeMembers) Add(ctx context.Context, m *models.RoomMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[m.RoomID] == nil {
		f.members[m.RoomID] = make(map[ids.UserID]*models.RoomMember)
	}
	if _, ok := f.members[m.RoomID][m.UserID]; ok {
		return apperrors.MembershipExists()
	}
	f.members[m.RoomID][m.UserID] = m
	return nil
}

func (f *fakeMembers) Remove(ctx context.Context, roomID ids.RoomID, userID ids.UserID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[roomID], userID)
	return nil
}

func (f *fakeMembers) Get(ctx context.Context, roomID ids.RoomID, userID ids.UserID) (*models.RoomMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[roomID][userID], nil
}

func (f *fakeMembers) ListByRoom(ctx context.Context, roomID ids.RoomID) ([]*models.RoomMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RoomMember
	for _, m := range f.members[roomID] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMembers) UpdateRole(ctx context.Context, roomID ids.RoomID, userID ids.UserID, role models.MemberRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[roomID][userID]; ok {
		m.Role = role
	}
	return nil
}

type fakeMessages struct {
	mu       sync.Mutex
	messages map[ids.MessageID]*models.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{messages: make(map[ids.MessageID]*models.Message)}
}

func (f *fakeMessages) Create(ctx context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = m
	return nil
}

func (f *fakeMessages) GetByID(ctx context.Context, id ids.MessageID) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages[id], nil
}

func (f *fakeMessages) Update(ctx context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = m
	return nil
}

func (f *fakeMessages) History(ctx context.Context, roomID ids.RoomID, limit int, before *time.Time) ([]*models.Message, error) {
	return nil, nil
}

func (f *fakeMessages) Search(ctx context.Context, roomID ids.RoomID, query string, limit int) ([]*models.Message, error) {
	return nil, nil
}

type fakeFabric struct {
	mu        sync.Mutex
	published []broadcast.Envelope
}

func (f *fakeFabric) Broadcast(roomID ids.RoomID, env broadcast.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, env)
}

func (f *fakeFabric) Subscribe(roomID ids.RoomID) *broadcast.Subscription { return nil }

func (f *fakeFabric) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeSequencer struct{ next uint64 }

func (s *fakeSequencer) Assign(ctx context.Context, roomID ids.RoomID, messageID ids.MessageID) (uint64, error) {
	s.next++
	return s.next, nil
}

type fakeRateLimiter struct{ rejectNext bool }

func (r *fakeRateLimiter) CheckMessageRate(ctx context.Context, userID ids.UserID) error {
	if r.rejectNext {
		return apperrors.RateLimitExceeded(61, 60)
	}
	return nil
}

type fakePresence struct{ online []ids.UserID }

func (p *fakePresence) RoomUsers(ctx context.Context, roomID ids.RoomID) ([]ids.UserID, error) {
	return p.online, nil
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent int
}

func (d *fakeDelivery) MarkSent(ctx context.Context, messageID ids.MessageID, userID ids.UserID, sentAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent++
	return nil
}

type testDeps struct {
	rooms    *fakeRooms
	members  *fakeMembers
	messages *fakeMessages
	fabric   *fakeFabric
	seq      *fakeSequencer
	rate     *fakeRateLimiter
	presence *fakePresence
	delivery *fakeDelivery
	svc      *chat.Service
}

func newTestService() *testDeps {
	d := &testDeps{
		rooms:    newFakeRooms(),
		members:  newFakeMembers(),
		messages: newFakeMessages(),
		fabric:   &fakeFabric{},
		seq:      &fakeSequencer{},
		rate:     &fakeRateLimiter{},
		presence: &fakePresence{},
		delivery: &fakeDelivery{},
	}
	d.rooms.members = d.members
	d.svc = chat.NewService(d.rooms, d.members, d.messages, d.fabric, d.seq, d.rate, d.presence, d.delivery, clock.SystemClock{})
	return d
}

func TestCreateRoomAddsOwnerMembership(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()

	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	assert.Equal(t, owner, room.OwnerID)

	member, err := d.members.Get(context.Background(), room.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, models.RoleOwner, member.Role)
}

func TestJoinRoomRejectsClosedRoom(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	room.Close(time.Now())
	require.NoError(t, d.rooms.Update(context.Background(), room))

	err = d.svc.JoinRoom(context.Background(), room.ID, ids.NewUserID(), nil)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindRoomClosed, appErr.Kind)
}

func TestJoinRoomRejectsWrongPassword(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	pw := "correct-password"
	room, err := d.svc.CreateRoom(context.Background(), "vip", owner, true, &pw)
	require.NoError(t, err)

	wrong := "wrong-password"
	err = d.svc.JoinRoom(context.Background(), room.ID, ids.NewUserID(), &wrong)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindRoomPrivate, appErr.Kind)
}

func TestJoinRoomRejectsDuplicateMembership(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)

	err = d.svc.JoinRoom(context.Background(), room.ID, owner, nil)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindMembershipExists, appErr.Kind)
}

func TestLeaveRoomPromotesOldestMemberWhenNoAdmin(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)

	first, second := ids.NewUserID(), ids.NewUserID()
	require.NoError(t, d.svc.JoinRoom(context.Background(), room.ID, first, nil))
	time.Sleep(time.Millisecond)
	require.NoError(t, d.svc.JoinRoom(context.Background(), room.ID, second, nil))

	require.NoError(t, d.svc.LeaveRoom(context.Background(), room.ID, owner))

	updated, err := d.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, first, updated.OwnerID)

	member, err := d.members.Get(context.Background(), room.ID, first)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, models.RoleOwner, member.Role)
}

func TestLeaveRoomPrefersAdminOverOlderMember(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)

	oldMember, admin := ids.NewUserID(), ids.NewUserID()
	require.NoError(t, d.svc.JoinRoom(context.Background(), room.ID, oldMember, nil))
	time.Sleep(time.Millisecond)
	require.NoError(t, d.svc.JoinRoom(context.Background(), room.ID, admin, nil))
	require.NoError(t, d.members.UpdateRole(context.Background(), room.ID, admin, models.RoleAdmin))

	require.NoError(t, d.svc.LeaveRoom(context.Background(), room.ID, owner))

	updated, err := d.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, admin, updated.OwnerID)
}

func TestLeaveRoomClosesRoomWhenEmpty(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)

	require.NoError(t, d.svc.LeaveRoom(context.Background(), room.ID, owner))

	updated, err := d.rooms.GetByID(context.Background(), room.ID)
	require.NoError(t, err)
	assert.True(t, updated.IsClosed)
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)

	_, err = d.svc.SendMessage(context.Background(), room.ID, ids.NewUserID(), "hello", models.MessageText, nil)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindNotRoomMember, appErr.Kind)
}

func TestSendMessageEnforcesRateLimit(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	d.rate.rejectNext = true

	_, err = d.svc.SendMessage(context.Background(), room.ID, owner, "hello", models.MessageText, nil)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindRateLimitExceeded, appErr.Kind)
}

func TestSendMessageAssignsSequenceMarksDeliveryAndBroadcasts(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	d.presence.online = []ids.UserID{owner}

	sequenced, err := d.svc.SendMessage(context.Background(), room.ID, owner, "hello room", models.MessageText, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, sequenced.SequenceID)
	assert.Equal(t, 1, d.fabric.count())
	assert.Equal(t, 1, d.delivery.sent)
}

func TestEditMessageOnlySender(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	sequenced, err := d.svc.SendMessage(context.Background(), room.ID, owner, "hello", models.MessageText, nil)
	require.NoError(t, err)

	_, err = d.svc.EditMessage(context.Background(), sequenced.Message.ID, ids.NewUserID(), models.RoleMember, "not allowed")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindAuthorizationFail, appErr.Kind)

	edited, err := d.svc.EditMessage(context.Background(), sequenced.Message.ID, owner, models.RoleOwner, "edited content")
	require.NoError(t, err)
	assert.Equal(t, "edited content", edited.Content.String())
	require.NotNil(t, edited.LastRevision)
	assert.Equal(t, "hello", edited.LastRevision.Content.String())
}

func TestEditMessageAllowsAdminToEditOthers(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	sequenced, err := d.svc.SendMessage(context.Background(), room.ID, owner, "hello", models.MessageText, nil)
	require.NoError(t, err)

	admin := ids.NewUserID()
	edited, err := d.svc.EditMessage(context.Background(), sequenced.Message.ID, admin, models.RoleAdmin, "moderated content")
	require.NoError(t, err)
	assert.Equal(t, "moderated content", edited.Content.String())
}

func TestDeleteMessageAllowsSenderOrAdmin(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	sequenced, err := d.svc.SendMessage(context.Background(), room.ID, owner, "hello", models.MessageText, nil)
	require.NoError(t, err)

	other := ids.NewUserID()
	err = d.svc.DeleteMessage(context.Background(), sequenced.Message.ID, other, models.RoleMember)
	require.Error(t, err)

	require.NoError(t, d.svc.DeleteMessage(context.Background(), sequenced.Message.ID, owner, models.RoleOwner))

	msg, err := d.messages.GetByID(context.Background(), sequenced.Message.ID)
	require.NoError(t, err)
	assert.True(t, msg.IsDeleted)
}

func TestAdminHistoryRequiresOwnerOrAdmin(t *testing.T) {
	d := newTestService()
	owner := ids.NewUserID()
	room, err := d.svc.CreateRoom(context.Background(), "general", owner, false, nil)
	require.NoError(t, err)
	member := ids.NewUserID()
	require.NoError(t, d.svc.JoinRoom(context.Background(), room.ID, member, nil))

	_, err = d.svc.AdminHistory(context.Background(), room.ID, member, 50, nil)
	require.Error(t, err)

	_, err = d.svc.AdminHistory(context.Background(), room.ID, owner, 50, nil)
	require.NoError(t, err)
}
