package eventsub

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// maxSessions is the vendor limit of websocket sessions per user token.
const maxSessions = 3

// SessionPool spreads registrations over as many sessions as needed.
type SessionPool struct {
	running      bool
	runningMutex sync.Mutex

	sessions      []*Session
	sessionsMutex sync.RWMutex

	subscriber Subscriber
	ids        AccountIDs
	opts       []Option

	// Called on pool start
	OnStart func()
	// Called when an individual session is established or re-established
	OnWelcome func(session *Session, info SessionInfo)
	// Called when the vendor revokes a subscription
	OnRevocation func(session *Session, reg *Registration, data SubscriptionData)
	// Called on errors
	OnError func(*Session, error, interface{})
}

func NewSessionPool(subscriber Subscriber, ids AccountIDs, opts ...Option) *SessionPool {
	return &SessionPool{
		running:    false,
		sessions:   make([]*Session, 0),
		subscriber: subscriber,
		ids:        ids,
		opts:       opts,

		OnStart:      func() {},
		OnWelcome:    func(*Session, SessionInfo) {},
		OnRevocation: func(*Session, *Registration, SubscriptionData) {},
		OnError:      func(session *Session, err error, info interface{}) {},
	}
}

func (p *SessionPool) getRegistration(sub Subscription) (*Registration, *Session) {
	identifier := newRegistration(sub, p.ids, nil).Identifier()

	p.sessionsMutex.RLock()
	defer p.sessionsMutex.RUnlock()
	for _, session := range p.sessions {
		if reg := session.getRegistration(identifier); reg != nil {
			return reg, session
		}
	}
	return nil, nil
}

func (p *SessionPool) createNewSession() (*Session, error) {
	p.runningMutex.Lock()
	defer p.runningMutex.Unlock()
	p.sessionsMutex.Lock()
	defer p.sessionsMutex.Unlock()

	if len(p.sessions) >= maxSessions {
		return nil, newError(ErrTooManySessions, nil, goerrors.CategoryRateLimit, TextCodeSubscriptionRegistry,
			"session pool is full")
	}

	// create and configure session
	newSession := NewSession(p.subscriber, p.ids, p.opts...)
	newSession.OnWelcome = func(info SessionInfo) {
		p.OnWelcome(newSession, info)
	}
	newSession.OnRevocation = func(reg *Registration, data SubscriptionData) {
		p.OnRevocation(newSession, reg, data)
	}
	newSession.OnError = func(err error, info interface{}) {
		p.OnError(newSession, err, info)
	}
	p.sessions = append(p.sessions, newSession)

	// start the new session if already running
	if p.running {
		if err := newSession.Start(); err != nil {
			p.OnError(newSession, err, nil)
		}
	}

	return newSession, nil
}

func (p *SessionPool) getTargetSession() (*Session, error) {
	p.sessionsMutex.RLock()
	// find first session with available space
	for _, session := range p.sessions {
		if session.Capacity() > 0 {
			p.sessionsMutex.RUnlock()
			return session, nil
		}
	}
	p.sessionsMutex.RUnlock()

	// must create new session now
	return p.createNewSession()
}

func (p *SessionPool) Listen(ctx context.Context, sub Subscription, callback EventCallback) (*Registration, error) {
	if reg, _ := p.getRegistration(sub); reg != nil {
		return nil, newError(ErrDuplicateSubscription, nil, goerrors.CategoryConflict, TextCodeSubscriptionRegistry,
			"listen "+sub.String())
	}

	target, err := p.getTargetSession()
	if err != nil {
		return nil, err
	}
	return target.Listen(ctx, sub, callback)
}

func (p *SessionPool) ListenMany(ctx context.Context, callback EventCallback, subs ...Subscription) ([]*Registration, error) {
	var registrations []*Registration
	for _, sub := range subs {
		reg, err := p.Listen(ctx, sub, callback)
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, reg)
	}
	return registrations, nil
}

func (p *SessionPool) Unlisten(ctx context.Context, sub Subscription) error {
	reg, session := p.getRegistration(sub)
	if reg == nil {
		return newError(ErrUnknownSubscription, nil, goerrors.CategoryNotFound, TextCodeSubscriptionRegistry,
			"unlisten "+sub.String())
	}
	return session.Unlisten(ctx, sub)
}

func (p *SessionPool) IsListening(sub Subscription) bool {
	reg, _ := p.getRegistration(sub)
	return reg != nil
}

// Sessions returns the number of sessions in the pool.
func (p *SessionPool) Sessions() int {
	p.sessionsMutex.RLock()
	defer p.sessionsMutex.RUnlock()
	return len(p.sessions)
}

func (p *SessionPool) Start() (err error) {
	p.runningMutex.Lock()
	defer p.runningMutex.Unlock()

	if p.running {
		return
	}

	p.sessionsMutex.RLock()
	defer func() {
		p.sessionsMutex.RUnlock()
		if err == nil {
			p.OnStart()
		}
	}()

	for _, session := range p.sessions {
		err = session.Start()
		if err != nil {
			return
		}
	}

	p.running = true
	return
}

func (p *SessionPool) Stop() {
	p.runningMutex.Lock()
	defer p.runningMutex.Unlock()

	if !p.running {
		return
	}

	p.sessionsMutex.RLock()
	defer p.sessionsMutex.RUnlock()
	for _, session := range p.sessions {
		session.Stop()
	}

	p.running = false
}
