package eventsub

import "sync"

type EventCallback func(Message)

// Registration is one subscription a session keeps alive. The vendor id is
// assigned each time the subscription is created on a new session.
type Registration struct {
	Subscription Subscription
	Condition    Condition
	Callback     EventCallback

	remoteMutex sync.RWMutex
	remoteID    string
}

func newRegistration(sub Subscription, ids AccountIDs, callback EventCallback) *Registration {
	return &Registration{
		Subscription: sub,
		Condition:    BuildCondition(sub, ids),
		Callback:     callback,
	}
}

func (r *Registration) Request(sessionID string) EventSubscription {
	return EventSubscription{
		Type:      r.Subscription.Tag(),
		Version:   r.Subscription.Version(),
		Condition: r.Condition,
		Transport: WebsocketTransport(sessionID),
	}
}

func (r *Registration) Identifier() string {
	return registrationKey(r.Subscription, r.Condition)
}

// RemoteID is the vendor subscription id, empty until created.
func (r *Registration) RemoteID() string {
	r.remoteMutex.RLock()
	defer r.remoteMutex.RUnlock()
	return r.remoteID
}

func (r *Registration) setRemoteID(id string) {
	r.remoteMutex.Lock()
	defer r.remoteMutex.Unlock()
	r.remoteID = id
}

// matches reports whether data describes this registration, by vendor id
// when both are known and by type and condition otherwise.
func (r *Registration) matches(data *SubscriptionData) bool {
	if data == nil {
		return false
	}
	if id := r.RemoteID(); id != "" && data.ID != "" {
		return id == data.ID
	}
	return data.Type == r.Subscription.Tag() && data.Condition == r.Condition
}
