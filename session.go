package eventsub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dnsge/go-basic-websocket"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	maxSubscriptions = 300

	// Used until the welcome message announces the session's own window.
	defaultKeepaliveTimeout = 10 * time.Second
)

// Subscriber creates and deletes subscriptions bound to a session. *Client
// satisfies it.
type Subscriber interface {
	CreateSubscription(ctx context.Context, sub EventSubscription) (SubscriptionResponse, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// Session is one EventSub websocket connection and the subscriptions bound
// to it. Subscriptions are created on every welcome, so they survive
// reconnects.
type Session struct {
	ws         *basicws.BasicWebsocket
	subscriber Subscriber
	ids        AccountIDs
	decoder    *Decoder
	logger     glog.Logger

	keepaliveSlack time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	stateMutex   sync.RWMutex
	sessionID    string
	watchdogDone chan bool
	activity     chan bool

	registrations      []*Registration
	registrationsMutex sync.RWMutex

	// Called on connection connect
	OnConnect func()
	// Called when a welcome message establishes the session
	OnWelcome func(info SessionInfo)
	// Called when the vendor revokes a subscription; the registration is removed first
	OnRevocation func(reg *Registration, data SubscriptionData)
	// Called on error
	OnError func(err error, info interface{})
}

func NewSession(subscriber Subscriber, ids AccountIDs, opts ...Option) *Session {
	o := resolveOptions(opts)

	ws := basicws.NewBasicWebsocket(o.websocketURL, http.Header{})
	ws.AutoReconnect = true

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ws:         ws,
		subscriber: subscriber,
		ids:        ids,
		decoder:    NewDecoder(opts...),
		logger:     o.logger,

		keepaliveSlack: o.keepaliveSlack,

		ctx:    ctx,
		cancel: cancel,

		activity: make(chan bool, 1),

		registrations: make([]*Registration, 0),

		OnConnect:    func() {},
		OnWelcome:    func(SessionInfo) {},
		OnRevocation: func(*Registration, SubscriptionData) {},
		OnError:      func(err error, info interface{}) {},
	}

	ws.OnConnect = s.connectHandler
	ws.OnMessage = s.rawMessageHandler
	ws.OnError = func(err error) {
		s.OnError(err, nil)
	}

	return s
}

// SessionID is empty until a welcome message arrives.
func (s *Session) SessionID() string {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.sessionID
}

func (s *Session) connectHandler() {
	s.stateMutex.Lock()
	s.sessionID = ""
	s.stateMutex.Unlock()

	// the welcome message must arrive within the default window
	s.restartWatchdog(defaultKeepaliveTimeout)
	s.OnConnect()
}

func (s *Session) rawMessageHandler(data []byte) error {
	s.touch()

	msg, err := s.decoder.Decode(data)
	if err != nil {
		if msg.Phase == PhaseNotification {
			return s.onUndecodedNotification(msg, err)
		}
		return err
	}

	switch msg.Phase {
	case PhaseWelcome:
		s.onWelcome(msg)
	case PhaseKeepAlive:
	case PhaseNotification:
		return s.onNotification(msg)
	case PhaseReconnect:
		s.logger.Info("session reconnect requested", "session_id", s.SessionID())
		return s.ws.Reconnect()
	case PhaseRevocation:
		s.onRevocation(msg)
	default:
		s.logger.Debug("ignoring session message", "message_type", msg.Envelope.Metadata.MessageType)
	}
	return nil
}

func (s *Session) onWelcome(msg Message) {
	info := msg.Session()
	if info == nil {
		s.OnError(newError(ErrDecode, nil, goerrors.CategoryExternal, TextCodeDecode,
			"welcome message has no session"), msg.Envelope.Metadata.MessageID)
		return
	}

	s.stateMutex.Lock()
	s.sessionID = info.ID
	s.stateMutex.Unlock()

	window := info.KeepaliveTimeout()
	if window <= 0 {
		window = defaultKeepaliveTimeout
	}
	s.restartWatchdog(window + s.keepaliveSlack)
	s.logger.Info("session established", "session_id", info.ID, "keepalive", window.String())

	go func() {
		if reg, err := s.subscribeAll(info.ID); err != nil {
			s.OnError(err, reg)
		}
	}()

	s.OnWelcome(*info)
}

func (s *Session) onNotification(msg Message) error {
	reg := s.findRegistration(msg.Subscription(), msg.Envelope.SubscriptionType())
	if reg == nil {
		return newError(ErrUnknownSubscription, nil, goerrors.CategoryNotFound, TextCodeSubscriptionRegistry,
			fmt.Sprintf("notification for unregistered subscription %q", msg.Envelope.SubscriptionType()))
	}

	go reg.Callback(msg)
	return nil
}

// onUndecodedNotification hands events without a modelled shape to custom
// registrations and registrations for tags outside the catalog, with Event
// nil and the raw event still on the envelope. The decode error goes to
// OnError. Modelled kinds that fail to decode are not dispatched.
func (s *Session) onUndecodedNotification(msg Message, decodeErr error) error {
	subscriptionType := msg.Envelope.SubscriptionType()
	reg := s.findRegistration(msg.Subscription(), subscriptionType)
	if reg == nil {
		return decodeErr
	}
	if _, modelled := LookupKind(subscriptionType); modelled && !reg.Subscription.IsCustom() {
		return decodeErr
	}

	s.OnError(decodeErr, msg.Envelope.Metadata.MessageID)
	go reg.Callback(msg)
	return nil
}

func (s *Session) onRevocation(msg Message) {
	data := msg.Subscription()
	reg := s.findRegistration(data, msg.Envelope.SubscriptionType())
	if reg == nil || data == nil {
		s.logger.Warn("revocation for unregistered subscription", "subscription_type", msg.Envelope.SubscriptionType())
		return
	}

	s.removeRegistration(reg)
	s.logger.Warn("subscription revoked", "subscription", reg.Subscription.String(), "status", data.Status)
	s.OnRevocation(reg, *data)
}

// touch records session activity for the keepalive watchdog.
func (s *Session) touch() {
	select {
	case s.activity <- true:
	default:
	}
}

func (s *Session) restartWatchdog(window time.Duration) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	// stop any current watchdog
	if s.watchdogDone != nil {
		select {
		case s.watchdogDone <- true:
		default:
		}
	}
	s.watchdogDone = s.startWatchdog(window)
}

func (s *Session) stopWatchdog() {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	if s.watchdogDone != nil {
		select {
		case s.watchdogDone <- true:
		default:
		}
		s.watchdogDone = nil
	}
}

// startWatchdog reconnects when no message arrives within window.
func (s *Session) startWatchdog(window time.Duration) chan bool {
	doneChan := make(chan bool, 1)
	go func() {
		timer := time.NewTimer(window)
		defer timer.Stop()
		for {
			select {
			case <-doneChan:
				return
			case <-s.activity:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(window)
			case <-timer.C:
				if !s.ws.IsConnected() {
					return
				}

				s.OnError(ErrKeepaliveTimeout, window)
				_ = s.ws.Reconnect()
				return
			}
		}
	}()

	return doneChan
}

func (s *Session) subscribe(ctx context.Context, sessionID string, reg *Registration) error {
	if reg.Subscription.Tag() == "" {
		return nil
	}
	response, err := s.subscriber.CreateSubscription(ctx, reg.Request(sessionID))
	if err != nil {
		return err
	}
	if len(response.Data) > 0 {
		reg.setRemoteID(response.Data[0].ID)
	}
	return nil
}

func (s *Session) subscribeAll(sessionID string) (*Registration, error) {
	s.registrationsMutex.RLock()
	registrations := make([]*Registration, len(s.registrations))
	copy(registrations, s.registrations)
	s.registrationsMutex.RUnlock()

	s.stateMutex.RLock()
	ctx := s.ctx
	s.stateMutex.RUnlock()

	for _, reg := range registrations {
		if err := s.subscribe(ctx, sessionID, reg); err != nil {
			return reg, err
		}
	}
	return nil, nil
}

func (s *Session) findRegistration(data *SubscriptionData, subscriptionType string) *Registration {
	s.registrationsMutex.RLock()
	defer s.registrationsMutex.RUnlock()

	if data != nil {
		for _, reg := range s.registrations {
			if reg.matches(data) {
				return reg
			}
		}
	}
	for _, reg := range s.registrations {
		if reg.Subscription.Tag() == subscriptionType {
			return reg
		}
	}
	return nil
}

func (s *Session) getRegistration(identifier string) *Registration {
	s.registrationsMutex.RLock()
	defer s.registrationsMutex.RUnlock()

	for _, reg := range s.registrations {
		if reg.Identifier() == identifier {
			return reg
		}
	}
	return nil
}

func (s *Session) removeRegistration(reg *Registration) bool {
	s.registrationsMutex.Lock()
	defer s.registrationsMutex.Unlock()

	index := -1
	for i, r := range s.registrations {
		if r.Identifier() == reg.Identifier() {
			index = i
			break
		}
	}

	if index == -1 {
		return false
	}

	// remove item at index
	s.registrations[index] = s.registrations[len(s.registrations)-1]
	s.registrations[len(s.registrations)-1] = nil
	s.registrations = s.registrations[:len(s.registrations)-1]

	return true
}

// Listen registers sub with callback. When the session is already
// established the subscription is created immediately; otherwise it is
// created on the next welcome.
func (s *Session) Listen(ctx context.Context, sub Subscription, callback EventCallback) (*Registration, error) {
	if sub.Tag() == "" {
		return nil, newError(ErrNotSubscribable, nil, goerrors.CategoryBadInput, TextCodeNotSubscribable,
			"cannot listen to "+sub.String())
	}
	if s.Capacity() == 0 {
		return nil, newError(ErrTooManySubscriptions, nil, goerrors.CategoryRateLimit, TextCodeSubscriptionRegistry,
			"session is full")
	}

	reg := newRegistration(sub, s.ids, callback)
	if s.getRegistration(reg.Identifier()) != nil {
		return nil, newError(ErrDuplicateSubscription, nil, goerrors.CategoryConflict, TextCodeSubscriptionRegistry,
			"listen "+sub.String())
	}

	s.registrationsMutex.Lock()
	s.registrations = append(s.registrations, reg)
	s.registrationsMutex.Unlock()

	if sessionID := s.SessionID(); sessionID != "" {
		if err := s.subscribe(ctx, sessionID, reg); err != nil {
			s.removeRegistration(reg)
			return nil, err
		}
	}
	return reg, nil
}

func (s *Session) ListenMany(ctx context.Context, callback EventCallback, subs ...Subscription) ([]*Registration, error) {
	var registrations []*Registration
	for _, sub := range subs {
		reg, err := s.Listen(ctx, sub, callback)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, reg)
	}
	return registrations, nil
}

// Unlisten removes the registration for sub and deletes its vendor subscription.
func (s *Session) Unlisten(ctx context.Context, sub Subscription) error {
	match := newRegistration(sub, s.ids, nil)
	reg := s.getRegistration(match.Identifier())
	if reg == nil {
		return newError(ErrUnknownSubscription, nil, goerrors.CategoryNotFound, TextCodeSubscriptionRegistry,
			"unlisten "+sub.String())
	}

	s.removeRegistration(reg)

	if id := reg.RemoteID(); id != "" {
		return s.subscriber.DeleteSubscription(ctx, id)
	}
	return nil
}

func (s *Session) IsListening(sub Subscription) bool {
	return s.getRegistration(newRegistration(sub, s.ids, nil).Identifier()) != nil
}

// Returns the subscription count
func (s *Session) Count() int {
	s.registrationsMutex.RLock()
	defer s.registrationsMutex.RUnlock()
	return len(s.registrations)
}

// Returns the capacity for more subscriptions
func (s *Session) Capacity() int {
	s.registrationsMutex.RLock()
	defer s.registrationsMutex.RUnlock()
	return maxSubscriptions - len(s.registrations)
}

func (s *Session) Start() error {
	s.stateMutex.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stateMutex.Unlock()

	return s.ws.Connect()
}

func (s *Session) Stop() {
	s.stateMutex.RLock()
	s.cancel()
	s.stateMutex.RUnlock()
	s.stopWatchdog()

	if !s.ws.IsConnected() {
		return
	}

	s.ws.ForceDisconnect()
}
