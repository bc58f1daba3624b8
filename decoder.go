package eventsub

import (
	"bytes"
	"encoding/json"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// shape is one member of the Event union. An event object matches a shape
// when every required key is present and non-null and it unmarshals cleanly.
type shape struct {
	kind     Kind
	required []string
	decode   func(raw json.RawMessage) (Event, error)
}

func newShape[T Event](kind Kind, required ...string) shape {
	return shape{
		kind:     kind,
		required: required,
		decode: func(raw json.RawMessage) (Event, error) {
			var event T
			if err := json.Unmarshal(raw, &event); err != nil {
				return nil, err
			}
			return event, nil
		},
	}
}

func (s shape) match(fields map[string]json.RawMessage, raw json.RawMessage) (Event, error) {
	for _, key := range s.required {
		value, ok := fields[key]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, fmt.Errorf("%s: missing %q", s.kind, key)
		}
	}
	return s.decode(raw)
}

// trialOrder is the fixed order used when a notification carries no usable
// subscription type. Shapes that share a structure (poll and prediction begin
// and progress, hype train begin and progress) resolve to the earlier one.
var trialOrder = []shape{
	newShape[ChatMessageEvent](KindChatMessage,
		"broadcaster_user_id", "chatter_user_id", "message_id", "message", "message_type"),
	newShape[RaidEvent](KindChannelRaid,
		"from_broadcaster_user_id", "to_broadcaster_user_id", "viewers"),
	newShape[CustomRewardRedemptionEvent](KindChannelPointsCustomRewardRedeem,
		"id", "broadcaster_user_id", "user_id", "user_input", "status", "reward", "redeemed_at"),
	newShape[AdBreakBeginEvent](KindAdBreakBegin,
		"broadcaster_user_id", "duration_seconds", "started_at", "is_automatic"),
	newShape[SubscribeEvent](KindChannelSubscribe,
		"broadcaster_user_id", "user_id", "tier", "is_gift"),
	newShape[SubscriptionGiftEvent](KindChannelSubscriptionGift,
		"broadcaster_user_id", "total", "tier", "is_anonymous"),
	newShape[SubscriptionMessageEvent](KindChannelSubscriptionMessage,
		"broadcaster_user_id", "user_id", "tier", "message", "cumulative_months", "duration_months"),
	newShape[CheerEvent](KindChannelCheer,
		"broadcaster_user_id", "is_anonymous", "message", "bits"),
	newShape[AutoRewardRedemptionEvent](KindChannelPointsAutoRewardRedeem,
		"id", "broadcaster_user_id", "user_id", "reward", "message", "redeemed_at"),
	newShape[PollBeginEvent](KindPollBegin,
		"id", "broadcaster_user_id", "title", "choices", "started_at", "ends_at"),
	newShape[PollProgressEvent](KindPollProgress,
		"id", "broadcaster_user_id", "title", "choices", "started_at", "ends_at"),
	newShape[PollEndEvent](KindPollEnd,
		"id", "broadcaster_user_id", "title", "choices", "status", "started_at", "ended_at"),
	newShape[PredictionBeginEvent](KindPredictionBegin,
		"id", "broadcaster_user_id", "title", "outcomes", "started_at", "locks_at"),
	newShape[PredictionProgressEvent](KindPredictionProgress,
		"id", "broadcaster_user_id", "title", "outcomes", "started_at", "locks_at"),
	newShape[PredictionLockEvent](KindPredictionLock,
		"id", "broadcaster_user_id", "title", "outcomes", "started_at", "locked_at"),
	newShape[PredictionEndEvent](KindPredictionEnd,
		"id", "broadcaster_user_id", "title", "outcomes", "status", "started_at", "ended_at"),
	newShape[HypeTrainBeginEvent](KindHypeTrainBegin,
		"id", "broadcaster_user_id", "level", "total", "progress", "goal", "started_at", "expires_at"),
	newShape[HypeTrainProgressEvent](KindHypeTrainProgress,
		"id", "broadcaster_user_id", "level", "total", "progress", "goal", "started_at", "expires_at"),
	newShape[HypeTrainEndEvent](KindHypeTrainEnd,
		"id", "broadcaster_user_id", "level", "total", "started_at", "ended_at", "cooldown_ends_at"),
	newShape[FollowEvent](KindChannelFollow,
		"broadcaster_user_id", "user_id", "followed_at"),
	newShape[ShoutoutCreateEvent](KindShoutoutCreate,
		"broadcaster_user_id", "to_broadcaster_user_id", "moderator_user_id", "viewer_count", "target_cooldown_ends_at"),
	newShape[ShoutoutReceiveEvent](KindShoutoutReceive,
		"broadcaster_user_id", "from_broadcaster_user_id", "viewer_count", "started_at"),
	newShape[UserUpdateEvent](KindUserUpdate,
		"user_id", "user_login", "email_verified"),
}

// shapesByKind selects the shape for a subscription type hint.
var shapesByKind = func() map[Kind]shape {
	index := make(map[Kind]shape, len(trialOrder)+1)
	for _, s := range trialOrder {
		index[s.kind] = s
	}
	index[KindChannelRaidOutgoing] = index[KindChannelRaid]
	return index
}()

func trialDecode(fields map[string]json.RawMessage, raw json.RawMessage, shapes []shape) (Event, bool) {
	for _, s := range shapes {
		if event, err := s.match(fields, raw); err == nil {
			return event, true
		}
	}
	return nil, false
}

// Message is a classified inbound session message. Event is set only for
// notifications.
type Message struct {
	Phase    Phase
	Envelope Envelope
	Event    Event
}

func (m Message) Session() *SessionInfo {
	if m.Envelope.Payload == nil {
		return nil
	}
	return m.Envelope.Payload.Session
}

// RawEvent is the undecoded event object of a notification.
func (m Message) RawEvent() json.RawMessage {
	if m.Envelope.Payload == nil {
		return nil
	}
	return m.Envelope.Payload.Event
}

func (m Message) Subscription() *SubscriptionData {
	if m.Envelope.Payload == nil {
		return nil
	}
	return m.Envelope.Payload.Subscription
}

// Decoder turns raw session messages into Messages. It keeps no state
// between calls and is safe for concurrent use.
type Decoder struct {
	logger      glog.Logger
	verifyHints bool
	shapes      []shape
}

func NewDecoder(opts ...Option) *Decoder {
	o := resolveOptions(opts)
	return &Decoder{
		logger:      o.logger,
		verifyHints: o.verifyHints,
		shapes:      trialOrder,
	}
}

// Decode classifies raw by metadata.message_type and, for notifications,
// resolves the event. Unknown message types are returned as PhaseUnknown
// without error. When only the event fails to resolve, the returned Message
// still carries the phase and envelope alongside the error.
func (d *Decoder) Decode(raw []byte) (Message, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Message{}, newError(ErrDecode, err, goerrors.CategoryBadInput, TextCodeDecode,
			"malformed session envelope")
	}

	msg := Message{
		Phase:    PhaseOf(envelope.Metadata.MessageType),
		Envelope: envelope,
	}
	if msg.Phase != PhaseNotification {
		return msg, nil
	}

	if envelope.Payload == nil || len(envelope.Payload.Event) == 0 {
		return msg, newError(ErrDecode, nil, goerrors.CategoryBadInput, TextCodeDecode,
			"notification has no event").
			WithMetadata(map[string]any{"message_id": envelope.Metadata.MessageID})
	}

	event, err := d.ResolveEvent(envelope.SubscriptionType(), envelope.Payload.Event)
	if err != nil {
		return msg, err
	}
	msg.Event = event
	return msg, nil
}

// ResolveEvent decodes an event object. A subscription type naming a known
// shape is authoritative; otherwise every shape is tried in trial order and
// the first match wins.
func (d *Decoder) ResolveEvent(subscriptionType string, raw json.RawMessage) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		if err == nil {
			err = fmt.Errorf("event is not an object")
		}
		return nil, newError(ErrDecode, err, goerrors.CategoryBadInput, TextCodeDecode,
			"malformed event payload").
			WithMetadata(map[string]any{"subscription_type": subscriptionType})
	}

	if kind, ok := LookupKind(subscriptionType); ok {
		if hinted, ok := shapesByKind[kind]; ok {
			return d.decodeHinted(subscriptionType, hinted, fields, raw)
		}
	}

	event, ok := trialDecode(fields, raw, d.shapes)
	if !ok {
		return nil, newError(ErrDecode, nil, goerrors.CategoryBadInput, TextCodeDecode,
			"event matches no known shape").
			WithMetadata(map[string]any{"subscription_type": subscriptionType})
	}
	return event, nil
}

func (d *Decoder) decodeHinted(subscriptionType string, hinted shape, fields map[string]json.RawMessage, raw json.RawMessage) (Event, error) {
	event, err := hinted.match(fields, raw)
	if err != nil {
		return nil, newError(ErrDecode, err, goerrors.CategoryBadInput, TextCodeDecode,
			"event does not match its subscription type").
			WithMetadata(map[string]any{"subscription_type": subscriptionType})
	}

	if d.verifyHints {
		structural, ok := trialDecode(fields, raw, d.shapes)
		switch {
		case !ok:
			d.logger.Warn("structural decode found no shape for hinted event",
				"subscription_type", subscriptionType)
		case structural.Kind() != hinted.kind:
			d.logger.Warn("structural decode disagrees with subscription type",
				"subscription_type", subscriptionType,
				"hinted", hinted.kind.String(),
				"structural", structural.Kind().String())
		}
	}
	return event, nil
}
