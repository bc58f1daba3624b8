package eventsub

import (
	"sort"
	"strings"
)

// Kind is a subscribable EventSub kind, or a scope-only permission.
type Kind int

const (
	KindUnknown Kind = iota
	KindUserUpdate
	KindChannelFollow
	KindChatMessage
	KindChannelRaid
	KindChannelRaidOutgoing
	KindChannelPointsCustomRewardRedeem
	KindChannelPointsAutoRewardRedeem
	KindChannelSubscribe
	KindChannelSubscriptionGift
	KindChannelSubscriptionMessage
	KindChannelCheer
	KindPollBegin
	KindPollProgress
	KindPollEnd
	KindPredictionBegin
	KindPredictionProgress
	KindPredictionLock
	KindPredictionEnd
	KindHypeTrainBegin
	KindHypeTrainProgress
	KindHypeTrainEnd
	KindShoutoutCreate
	KindShoutoutReceive
	KindBanTimeoutUser
	KindDeleteMessage
	KindAdBreakBegin

	// KindCustom carries its own tag, scope, version and condition. See CustomSubscription.
	KindCustom
)

type catalogEntry struct {
	tag     string
	scope   string
	version string
	fields  ConditionField
	build   func(AccountIDs) Condition
}

// catalog is the process-wide kind table. Scope-only kinds (BanTimeoutUser,
// DeleteMessage) name a permission for a REST call and have no tag or version.
var catalog = map[Kind]catalogEntry{
	KindUserUpdate: {
		tag: "user.update", version: "1",
		fields: FieldUserID,
		build:  func(ids AccountIDs) Condition { return UserCondition(ids.user()) },
	},
	KindChannelFollow: {
		tag: "channel.follow", scope: "moderator:read:followers", version: "2",
		fields: FieldBroadcasterUserID | FieldModeratorUserID,
		build:  func(ids AccountIDs) Condition { return ModeratorCondition(ids.BroadcasterID, ids.moderator()) },
	},
	KindChatMessage: {
		tag: "channel.chat.message", scope: "user:read:chat+user:write:chat", version: "1",
		fields: FieldBroadcasterUserID | FieldUserID,
		build:  func(ids AccountIDs) Condition { return ChatCondition(ids.BroadcasterID, ids.user()) },
	},
	KindChannelRaid: {
		tag: "channel.raid", version: "1",
		fields: FieldToBroadcasterUserID,
		build:  func(ids AccountIDs) Condition { return IncomingRaidCondition(ids.BroadcasterID) },
	},
	KindChannelRaidOutgoing: {
		tag: "channel.raid", version: "1",
		fields: FieldFromBroadcasterUserID,
		build:  func(ids AccountIDs) Condition { return OutgoingRaidCondition(ids.BroadcasterID) },
	},
	KindChannelPointsCustomRewardRedeem: {
		tag: "channel.channel_points_custom_reward_redemption.add", scope: "channel:read:redemptions", version: "1",
		fields: FieldBroadcasterUserID | FieldRewardID,
		build:  func(ids AccountIDs) Condition { return RewardCondition(ids.BroadcasterID, ids.RewardID) },
	},
	KindChannelPointsAutoRewardRedeem: {
		tag: "channel.channel_points_automatic_reward_redemption.add", scope: "channel:read:redemptions", version: "1",
		fields: FieldBroadcasterUserID,
		build:  broadcasterOnly,
	},
	KindChannelSubscribe: {
		tag: "channel.subscribe", scope: "channel:read:subscriptions", version: "1",
		fields: FieldBroadcasterUserID,
		build:  broadcasterOnly,
	},
	KindChannelSubscriptionGift: {
		tag: "channel.subscription.gift", scope: "channel:read:subscriptions", version: "1",
		fields: FieldBroadcasterUserID,
		build:  broadcasterOnly,
	},
	KindChannelSubscriptionMessage: {
		tag: "channel.subscription.message", scope: "channel:read:subscriptions", version: "1",
		fields: FieldBroadcasterUserID,
		build:  broadcasterOnly,
	},
	KindChannelCheer: {
		tag: "channel.cheer", scope: "bits:read", version: "1",
		fields: FieldBroadcasterUserID,
		build:  broadcasterOnly,
	},
	KindPollBegin:          pollEntry("channel.poll.begin"),
	KindPollProgress:       pollEntry("channel.poll.progress"),
	KindPollEnd:            pollEntry("channel.poll.end"),
	KindPredictionBegin:    predictionEntry("channel.prediction.begin"),
	KindPredictionProgress: predictionEntry("channel.prediction.progress"),
	KindPredictionLock:     predictionEntry("channel.prediction.lock"),
	KindPredictionEnd:      predictionEntry("channel.prediction.end"),
	KindHypeTrainBegin:     hypeTrainEntry("channel.hype_train.begin"),
	KindHypeTrainProgress:  hypeTrainEntry("channel.hype_train.progress"),
	KindHypeTrainEnd:       hypeTrainEntry("channel.hype_train.end"),
	KindShoutoutCreate:     shoutoutEntry("channel.shoutout.create"),
	KindShoutoutReceive:    shoutoutEntry("channel.shoutout.receive"),
	KindBanTimeoutUser:     {scope: "moderator:manage:banned_users", build: emptyCondition},
	KindDeleteMessage:      {scope: "moderator:manage:chat_messages", build: emptyCondition},
	KindAdBreakBegin: {
		tag: "channel.ad_break.begin", scope: "channel:read:ads", version: "1",
		fields: FieldBroadcasterUserID,
		build:  broadcasterOnly,
	},
}

func pollEntry(tag string) catalogEntry {
	return catalogEntry{tag: tag, scope: "channel:read:polls", version: "1", fields: FieldBroadcasterUserID, build: broadcasterOnly}
}

func predictionEntry(tag string) catalogEntry {
	return catalogEntry{tag: tag, scope: "channel:read:predictions", version: "1", fields: FieldBroadcasterUserID, build: broadcasterOnly}
}

func hypeTrainEntry(tag string) catalogEntry {
	return catalogEntry{tag: tag, scope: "channel:read:hype_train", version: "1", fields: FieldBroadcasterUserID, build: broadcasterOnly}
}

func shoutoutEntry(tag string) catalogEntry {
	return catalogEntry{
		tag: tag, scope: "moderator:read:shoutouts", version: "1",
		fields: FieldBroadcasterUserID | FieldModeratorUserID,
		build:  func(ids AccountIDs) Condition { return ModeratorCondition(ids.BroadcasterID, ids.moderator()) },
	}
}

func broadcasterOnly(ids AccountIDs) Condition { return BroadcasterCondition(ids.BroadcasterID) }

func emptyCondition(AccountIDs) Condition { return Condition{} }

// kindsByTag maps a wire tag to the first kind declared with it.
var kindsByTag = func() map[string]Kind {
	index := make(map[string]Kind, len(catalog))
	for _, kind := range Kinds() {
		tag := catalog[kind].tag
		if tag == "" {
			continue
		}
		if _, taken := index[tag]; !taken {
			index[tag] = kind
		}
	}
	return index
}()

// Kinds returns every concrete kind in declaration order. KindCustom is not included.
func Kinds() []Kind {
	kinds := make([]Kind, 0, int(KindCustom)-1)
	for kind := KindUserUpdate; kind < KindCustom; kind++ {
		kinds = append(kinds, kind)
	}
	return kinds
}

// LookupKind resolves a wire tag by exact match.
// Tags shared by several kinds resolve to the first declared one.
func LookupKind(tag string) (Kind, bool) {
	kind, ok := kindsByTag[tag]
	return kind, ok
}

func (k Kind) Tag() string           { return catalog[k].tag }
func (k Kind) RequiredScope() string { return catalog[k].scope }
func (k Kind) Version() string       { return catalog[k].version }

// Fields is the set of condition fields the vendor accepts for k.
func (k Kind) Fields() ConditionField { return catalog[k].fields }

func (k Kind) Subscribable() bool { return catalog[k].tag != "" }

func (k Kind) String() string {
	switch k {
	case KindCustom:
		return "custom"
	case KindUnknown:
		return "unknown"
	}
	if tag := k.Tag(); tag != "" {
		return tag
	}
	return "scope:" + k.RequiredScope()
}

// Subscription is a catalog kind or a Custom (tag, scope, version, condition) tuple.
type Subscription struct {
	kind      Kind
	tag       string
	scope     string
	version   string
	condition Condition
}

func NewSubscription(kind Kind) Subscription {
	return Subscription{kind: kind}
}

// CustomSubscription models a vendor kind missing from the catalog.
func CustomSubscription(tag, scope, version string, condition Condition) Subscription {
	return Subscription{
		kind:      KindCustom,
		tag:       tag,
		scope:     scope,
		version:   version,
		condition: condition,
	}
}

// SubscriptionFromTag rebuilds a catalog subscription from a serialized type string.
func SubscriptionFromTag(tag string) (Subscription, bool) {
	kind, ok := LookupKind(tag)
	if !ok {
		return Subscription{}, false
	}
	return NewSubscription(kind), true
}

func (s Subscription) Kind() Kind     { return s.kind }
func (s Subscription) IsCustom() bool { return s.kind == KindCustom }

func (s Subscription) Tag() string {
	if s.IsCustom() {
		return s.tag
	}
	return s.kind.Tag()
}

func (s Subscription) RequiredScope() string {
	if s.IsCustom() {
		return s.scope
	}
	return s.kind.RequiredScope()
}

func (s Subscription) Version() string {
	if s.IsCustom() {
		return s.version
	}
	return s.kind.Version()
}

func (s Subscription) String() string {
	if s.IsCustom() {
		return "custom:" + s.tag
	}
	return s.kind.String()
}

// Scopes joins the required scopes of subs with "+", deduplicated and sorted.
func Scopes(subs ...Subscription) string {
	seen := map[string]struct{}{}
	for _, sub := range subs {
		for _, scope := range strings.Split(sub.RequiredScope(), "+") {
			if scope = strings.TrimSpace(scope); scope != "" {
				seen[scope] = struct{}{}
			}
		}
	}
	scopes := make([]string, 0, len(seen))
	for scope := range seen {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return strings.Join(scopes, "+")
}
