package eventsub

import (
	"encoding/json"
	"time"
)

const (
	MessageTypeWelcome      = "session_welcome"
	MessageTypeKeepAlive    = "session_keepalive"
	MessageTypeNotification = "notification"
	MessageTypeReconnect    = "session_reconnect"
	MessageTypeRevocation   = "revocation"
)

// Phase is the lifecycle phase of an inbound session message.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseWelcome
	PhaseKeepAlive
	PhaseNotification
	PhaseReconnect
	PhaseRevocation
)

// PhaseOf classifies a message_type by exact match. Unrecognized values are
// PhaseUnknown.
func PhaseOf(messageType string) Phase {
	switch messageType {
	case MessageTypeWelcome:
		return PhaseWelcome
	case MessageTypeKeepAlive:
		return PhaseKeepAlive
	case MessageTypeNotification:
		return PhaseNotification
	case MessageTypeReconnect:
		return PhaseReconnect
	case MessageTypeRevocation:
		return PhaseRevocation
	default:
		return PhaseUnknown
	}
}

func (p Phase) String() string {
	switch p {
	case PhaseWelcome:
		return "welcome"
	case PhaseKeepAlive:
		return "keepalive"
	case PhaseNotification:
		return "notification"
	case PhaseReconnect:
		return "reconnect"
	case PhaseRevocation:
		return "revocation"
	default:
		return "unknown"
	}
}

type Metadata struct {
	MessageID           string `json:"message_id"`
	MessageType         string `json:"message_type"`
	MessageTimestamp    string `json:"message_timestamp"`
	SubscriptionType    string `json:"subscription_type,omitempty"`
	SubscriptionVersion string `json:"subscription_version,omitempty"`
}

// Timestamp parses MessageTimestamp as RFC3339 with optional fractional seconds.
func (m Metadata) Timestamp() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, m.MessageTimestamp)
}

// SessionInfo is the session object carried by welcome and reconnect messages.
type SessionInfo struct {
	ID                      string    `json:"id"`
	Status                  string    `json:"status"`
	ConnectedAt             time.Time `json:"connected_at"`
	KeepaliveTimeoutSeconds *int      `json:"keepalive_timeout_seconds"`
	ReconnectURL            *string   `json:"reconnect_url"`
	RecoveryURL             *string   `json:"recovery_url"`
}

// KeepaliveTimeout is zero when the session carries no keepalive window.
func (s SessionInfo) KeepaliveTimeout() time.Duration {
	if s.KeepaliveTimeoutSeconds == nil {
		return 0
	}
	return time.Duration(*s.KeepaliveTimeoutSeconds) * time.Second
}

type Payload struct {
	Session      *SessionInfo      `json:"session,omitempty"`
	Subscription *SubscriptionData `json:"subscription,omitempty"`
	Event        json.RawMessage   `json:"event,omitempty"`
}

// Envelope is the outer wrapper of every inbound session message.
type Envelope struct {
	Metadata Metadata `json:"metadata"`
	Payload  *Payload `json:"payload,omitempty"`
}

// SubscriptionType is the hint naming the event shape: metadata first, then
// the payload's subscription object.
func (e Envelope) SubscriptionType() string {
	if e.Metadata.SubscriptionType != "" {
		return e.Metadata.SubscriptionType
	}
	if e.Payload != nil && e.Payload.Subscription != nil {
		return e.Payload.Subscription.Type
	}
	return ""
}
