package eventsub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu      sync.Mutex
	created []EventSubscription
	deleted []string
	err     error
}

func (f *fakeSubscriber) CreateSubscription(ctx context.Context, sub EventSubscription) (SubscriptionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return SubscriptionResponse{}, f.err
	}
	f.created = append(f.created, sub)
	return SubscriptionResponse{
		Data: []SubscriptionData{{
			ID:        "sub-" + strconv.Itoa(len(f.created)),
			Status:    "enabled",
			Type:      sub.Type,
			Version:   sub.Version,
			Condition: sub.Condition,
			Transport: sub.Transport,
		}},
		Total: len(f.created),
	}, nil
}

func (f *fakeSubscriber) DeleteSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeSubscriber) Created() []EventSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]EventSubscription(nil), f.created...)
}

func (f *fakeSubscriber) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func welcomeMessage(sessionID string) []byte {
	return []byte(fmt.Sprintf(`{
		"metadata": {"message_id": "w-%[1]s", "message_type": "session_welcome", "message_timestamp": "2023-07-19T14:56:51.634234626Z"},
		"payload": {"session": {"id": %[1]q, "status": "connected", "connected_at": "2023-07-19T14:56:51.616329898Z", "keepalive_timeout_seconds": 30, "reconnect_url": null, "recovery_url": null}}
	}`, sessionID))
}

func newTestSession(t *testing.T, subscriber Subscriber) *Session {
	t.Helper()
	s := NewSession(subscriber, SingleAccount("b"), WithWebsocketURL("ws://127.0.0.1:1/ws"))
	t.Cleanup(s.Stop)
	return s
}

func customSub(i int) Subscription {
	return CustomSubscription("channel.update", "", "2", BroadcasterCondition(strconv.Itoa(i)))
}

func TestSessionSubscribesOnWelcome(t *testing.T) {
	subscriber := &fakeSubscriber{}
	s := newTestSession(t, subscriber)

	var welcomed SessionInfo
	s.OnWelcome = func(info SessionInfo) { welcomed = info }

	reg, err := s.Listen(context.Background(), NewSubscription(KindChatMessage), func(Message) {})
	require.NoError(t, err)
	assert.Empty(t, subscriber.Created(), "nothing is created before the session exists")
	assert.Empty(t, reg.RemoteID())

	require.NoError(t, s.rawMessageHandler(welcomeMessage("session-1")))
	assert.Equal(t, "session-1", s.SessionID())
	assert.Equal(t, "session-1", welcomed.ID)

	require.Eventually(t, func() bool { return len(subscriber.Created()) == 1 }, time.Second, 5*time.Millisecond)
	created := subscriber.Created()[0]
	assert.Equal(t, "channel.chat.message", created.Type)
	assert.Equal(t, "session-1", created.Transport.SessionID)
	assert.Equal(t, ChatCondition("b", "b"), created.Condition)
	require.Eventually(t, func() bool { return reg.RemoteID() == "sub-1" }, time.Second, 5*time.Millisecond)

	// established sessions create immediately
	raid, err := s.Listen(context.Background(), NewSubscription(KindChannelRaid), func(Message) {})
	require.NoError(t, err)
	assert.Len(t, subscriber.Created(), 2)
	assert.Equal(t, "sub-2", raid.RemoteID())

	// a new welcome after a reconnect recreates everything on the new session
	require.NoError(t, s.rawMessageHandler(welcomeMessage("session-2")))
	require.Eventually(t, func() bool { return len(subscriber.Created()) == 4 }, time.Second, 5*time.Millisecond)
	for _, sub := range subscriber.Created()[2:] {
		assert.Equal(t, "session-2", sub.Transport.SessionID)
	}
}

func TestSessionListenFailureDropsRegistration(t *testing.T) {
	subscriber := &fakeSubscriber{}
	s := newTestSession(t, subscriber)
	require.NoError(t, s.rawMessageHandler(welcomeMessage("session-1")))

	subscriber.mu.Lock()
	subscriber.err = errors.New("forbidden")
	subscriber.mu.Unlock()

	_, err := s.Listen(context.Background(), NewSubscription(KindChannelFollow), func(Message) {})
	require.Error(t, err)
	assert.Zero(t, s.Count())
	assert.False(t, s.IsListening(NewSubscription(KindChannelFollow)))
}

func TestSessionListenRejections(t *testing.T) {
	s := newTestSession(t, &fakeSubscriber{})

	_, err := s.Listen(context.Background(), NewSubscription(KindDeleteMessage), func(Message) {})
	assert.True(t, errors.Is(err, ErrNotSubscribable))

	_, err = s.Listen(context.Background(), NewSubscription(KindChannelRaid), func(Message) {})
	require.NoError(t, err)
	_, err = s.Listen(context.Background(), NewSubscription(KindChannelRaid), func(Message) {})
	assert.True(t, errors.Is(err, ErrDuplicateSubscription))

	// same tag, different condition
	_, err = s.Listen(context.Background(), NewSubscription(KindChannelRaidOutgoing), func(Message) {})
	assert.NoError(t, err)
	assert.Equal(t, 2, s.Count())
}

func TestSessionCapacity(t *testing.T) {
	s := newTestSession(t, &fakeSubscriber{})

	for i := 0; i < maxSubscriptions; i++ {
		_, err := s.Listen(context.Background(), customSub(i), func(Message) {})
		require.NoError(t, err)
	}
	assert.Zero(t, s.Capacity())

	_, err := s.Listen(context.Background(), customSub(maxSubscriptions), func(Message) {})
	assert.True(t, errors.Is(err, ErrTooManySubscriptions))
	assert.Equal(t, maxSubscriptions, s.Count())
}

func TestSessionDispatchesNotifications(t *testing.T) {
	s := newTestSession(t, &fakeSubscriber{})

	received := make(chan Message, 1)
	_, err := s.Listen(context.Background(), NewSubscription(KindChatMessage), func(msg Message) {
		received <- msg
	})
	require.NoError(t, err)

	require.NoError(t, s.rawMessageHandler(notification("channel.chat.message", chatEvent)))

	select {
	case msg := <-received:
		chat, ok := msg.Event.(ChatMessageEvent)
		require.True(t, ok, "got %T", msg.Event)
		assert.Equal(t, "viewer32", chat.ChatterUserLogin)
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}

	err = s.rawMessageHandler(notification("channel.raid", raidEvent))
	assert.True(t, errors.Is(err, ErrUnknownSubscription))

	err = s.rawMessageHandler([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestSessionDeliversCustomNotificationsRaw(t *testing.T) {
	s := newTestSession(t, &fakeSubscriber{})

	reported := make(chan error, 1)
	s.OnError = func(err error, info interface{}) { reported <- err }

	received := make(chan Message, 1)
	_, err := s.Listen(context.Background(), CustomSubscription("channel.update", "", "2", BroadcasterCondition("b")),
		func(msg Message) { received <- msg })
	require.NoError(t, err)

	require.NoError(t, s.rawMessageHandler(notification("channel.update", `{"broadcaster_user_id":"b","title":"x"}`)))

	select {
	case err := <-reported:
		assert.True(t, errors.Is(err, ErrDecode))
	case <-time.After(time.Second):
		t.Fatal("decode failure was not reported")
	}

	select {
	case msg := <-received:
		assert.Equal(t, PhaseNotification, msg.Phase)
		assert.Nil(t, msg.Event)
		assert.JSONEq(t, `{"broadcaster_user_id":"b","title":"x"}`, string(msg.RawEvent()))
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestSessionDropsUndecodableModelledNotification(t *testing.T) {
	s := newTestSession(t, &fakeSubscriber{})

	invoked := make(chan struct{}, 1)
	_, err := s.Listen(context.Background(), NewSubscription(KindChannelRaid), func(Message) {
		invoked <- struct{}{}
	})
	require.NoError(t, err)

	err = s.rawMessageHandler(notification("channel.raid", chatEvent))
	assert.True(t, errors.Is(err, ErrDecode))

	select {
	case <-invoked:
		t.Fatal("callback invoked for an event that failed to decode")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionRevocation(t *testing.T) {
	s := newTestSession(t, &fakeSubscriber{})

	revoked := make(chan SubscriptionData, 1)
	s.OnRevocation = func(reg *Registration, data SubscriptionData) {
		assert.Equal(t, KindChannelFollow, reg.Subscription.Kind())
		revoked <- data
	}

	_, err := s.Listen(context.Background(), NewSubscription(KindChannelFollow), func(Message) {})
	require.NoError(t, err)

	require.NoError(t, s.rawMessageHandler([]byte(`{
		"metadata": {"message_id": "r1", "message_type": "revocation", "message_timestamp": "2022-11-16T10:11:12Z", "subscription_type": "channel.follow", "subscription_version": "2"},
		"payload": {"subscription": {"id": "x", "status": "authorization_revoked", "type": "channel.follow", "version": "2", "cost": 1,
			"condition": {"broadcaster_user_id": "b", "moderator_user_id": "b"},
			"transport": {"method": "websocket", "session_id": "s"}, "created_at": "2022-11-16T10:11:12Z"}}
	}`)))

	data := <-revoked
	assert.Equal(t, "authorization_revoked", data.Status)
	assert.Zero(t, s.Count())
}

func TestSessionUnlisten(t *testing.T) {
	subscriber := &fakeSubscriber{}
	s := newTestSession(t, subscriber)

	reg, err := s.Listen(context.Background(), NewSubscription(KindChannelRaid), func(Message) {})
	require.NoError(t, err)
	require.NoError(t, s.rawMessageHandler(welcomeMessage("session-1")))
	require.Eventually(t, func() bool { return reg.RemoteID() != "" }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Unlisten(context.Background(), NewSubscription(KindChannelRaid)))
	assert.Equal(t, []string{reg.RemoteID()}, subscriber.Deleted())
	assert.False(t, s.IsListening(NewSubscription(KindChannelRaid)))

	err = s.Unlisten(context.Background(), NewSubscription(KindChannelRaid))
	assert.True(t, errors.Is(err, ErrUnknownSubscription))
}

func TestRegistrationMatches(t *testing.T) {
	reg := newRegistration(NewSubscription(KindChannelRaid), SingleAccount("b"), nil)

	assert.True(t, reg.matches(&SubscriptionData{Type: "channel.raid", Condition: IncomingRaidCondition("b")}))
	assert.False(t, reg.matches(&SubscriptionData{Type: "channel.raid", Condition: OutgoingRaidCondition("b")}))
	assert.False(t, reg.matches(nil))

	reg.setRemoteID("sub-9")
	assert.True(t, reg.matches(&SubscriptionData{ID: "sub-9"}))
	assert.False(t, reg.matches(&SubscriptionData{ID: "sub-1", Type: "channel.raid", Condition: IncomingRaidCondition("b")}))
}

func TestRegistrationIdentifier(t *testing.T) {
	incoming := newRegistration(NewSubscription(KindChannelRaid), SingleAccount("b"), nil)
	again := newRegistration(NewSubscription(KindChannelRaid), SingleAccount("b"), nil)
	outgoing := newRegistration(NewSubscription(KindChannelRaidOutgoing), SingleAccount("b"), nil)
	otherAccount := newRegistration(NewSubscription(KindChannelRaid), SingleAccount("c"), nil)

	assert.Len(t, incoming.Identifier(), 64)
	assert.Equal(t, incoming.Identifier(), again.Identifier())
	assert.NotEqual(t, incoming.Identifier(), outgoing.Identifier())
	assert.NotEqual(t, incoming.Identifier(), otherAccount.Identifier())

	v1 := newRegistration(CustomSubscription("channel.update", "", "1", BroadcasterCondition("b")), SingleAccount("b"), nil)
	v2 := newRegistration(CustomSubscription("channel.update", "", "2", BroadcasterCondition("b")), SingleAccount("b"), nil)
	assert.NotEqual(t, v1.Identifier(), v2.Identifier())
}

func TestSessionPoolSpreadsRegistrations(t *testing.T) {
	pool := NewSessionPool(&fakeSubscriber{}, SingleAccount("b"), WithWebsocketURL("ws://127.0.0.1:1/ws"))

	total := maxSessions * maxSubscriptions
	for i := 0; i < total; i++ {
		_, err := pool.Listen(context.Background(), customSub(i), func(Message) {})
		require.NoError(t, err)
	}
	assert.Equal(t, maxSessions, pool.Sessions())
	assert.True(t, pool.IsListening(customSub(0)))
	assert.True(t, pool.IsListening(customSub(total-1)))

	_, err := pool.Listen(context.Background(), customSub(total), func(Message) {})
	assert.True(t, errors.Is(err, ErrTooManySessions))

	_, err = pool.Listen(context.Background(), customSub(7), func(Message) {})
	assert.True(t, errors.Is(err, ErrDuplicateSubscription))

	// freed capacity is reused before a new session would be needed
	require.NoError(t, pool.Unlisten(context.Background(), customSub(5)))
	_, err = pool.Listen(context.Background(), customSub(total), func(Message) {})
	assert.NoError(t, err)
	assert.Equal(t, maxSessions, pool.Sessions())

	err = pool.Unlisten(context.Background(), customSub(total+1))
	assert.True(t, errors.Is(err, ErrUnknownSubscription))
}
