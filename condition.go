package eventsub

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Condition is the superset of every vendor filter shape.
// Unused fields are empty and omitted on the wire.
type Condition struct {
	BroadcasterUserID     string `json:"broadcaster_user_id,omitempty"`
	ModeratorUserID       string `json:"moderator_user_id,omitempty"`
	UserID                string `json:"user_id,omitempty"`
	RewardID              string `json:"reward_id,omitempty"`
	FromBroadcasterUserID string `json:"from_broadcaster_user_id,omitempty"`
	ToBroadcasterUserID   string `json:"to_broadcaster_user_id,omitempty"`
	OrganizationID        string `json:"organization_id,omitempty"`
	CategoryID            string `json:"category_id,omitempty"`
	CampaignID            string `json:"campaign_id,omitempty"`
	ExtensionClientID     string `json:"extension_client_id,omitempty"`
}

// ConditionField is a bit set of Condition fields.
type ConditionField uint16

const (
	FieldBroadcasterUserID ConditionField = 1 << iota
	FieldModeratorUserID
	FieldUserID
	FieldRewardID
	FieldFromBroadcasterUserID
	FieldToBroadcasterUserID
	FieldOrganizationID
	FieldCategoryID
	FieldCampaignID
	FieldExtensionClientID
)

var conditionFieldNames = []struct {
	field ConditionField
	name  string
}{
	{FieldBroadcasterUserID, "broadcaster_user_id"},
	{FieldModeratorUserID, "moderator_user_id"},
	{FieldUserID, "user_id"},
	{FieldRewardID, "reward_id"},
	{FieldFromBroadcasterUserID, "from_broadcaster_user_id"},
	{FieldToBroadcasterUserID, "to_broadcaster_user_id"},
	{FieldOrganizationID, "organization_id"},
	{FieldCategoryID, "category_id"},
	{FieldCampaignID, "campaign_id"},
	{FieldExtensionClientID, "extension_client_id"},
}

// Within reports whether every field in f is also in allowed.
func (f ConditionField) Within(allowed ConditionField) bool {
	return f&^allowed == 0
}

func (f ConditionField) String() string {
	var names []string
	for _, entry := range conditionFieldNames {
		if f&entry.field != 0 {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// Fields returns the set of populated fields.
func (c Condition) Fields() ConditionField {
	var set ConditionField
	for field, value := range map[ConditionField]string{
		FieldBroadcasterUserID:     c.BroadcasterUserID,
		FieldModeratorUserID:       c.ModeratorUserID,
		FieldUserID:                c.UserID,
		FieldRewardID:              c.RewardID,
		FieldFromBroadcasterUserID: c.FromBroadcasterUserID,
		FieldToBroadcasterUserID:   c.ToBroadcasterUserID,
		FieldOrganizationID:        c.OrganizationID,
		FieldCategoryID:            c.CategoryID,
		FieldCampaignID:            c.CampaignID,
		FieldExtensionClientID:     c.ExtensionClientID,
	} {
		if value != "" {
			set |= field
		}
	}
	return set
}

func UserCondition(userID string) Condition {
	return Condition{UserID: userID}
}

func BroadcasterCondition(broadcasterID string) Condition {
	return Condition{BroadcasterUserID: broadcasterID}
}

func ModeratorCondition(broadcasterID, moderatorID string) Condition {
	return Condition{BroadcasterUserID: broadcasterID, ModeratorUserID: moderatorID}
}

func ChatCondition(broadcasterID, userID string) Condition {
	return Condition{BroadcasterUserID: broadcasterID, UserID: userID}
}

func IncomingRaidCondition(toBroadcasterID string) Condition {
	return Condition{ToBroadcasterUserID: toBroadcasterID}
}

func OutgoingRaidCondition(fromBroadcasterID string) Condition {
	return Condition{FromBroadcasterUserID: fromBroadcasterID}
}

// RewardCondition filters redemptions to one reward when rewardID is set.
func RewardCondition(broadcasterID, rewardID string) Condition {
	return Condition{BroadcasterUserID: broadcasterID, RewardID: rewardID}
}

// AccountIDs are the identifiers available to the caller when building conditions.
type AccountIDs struct {
	BroadcasterID string
	ModeratorID   string
	UserID        string
	RewardID      string
}

// SingleAccount uses one broadcaster account for every role.
func SingleAccount(broadcasterID string) AccountIDs {
	return AccountIDs{
		BroadcasterID: broadcasterID,
		ModeratorID:   broadcasterID,
		UserID:        broadcasterID,
	}
}

func (ids AccountIDs) moderator() string {
	if ids.ModeratorID != "" {
		return ids.ModeratorID
	}
	return ids.BroadcasterID
}

func (ids AccountIDs) user() string {
	if ids.UserID != "" {
		return ids.UserID
	}
	return ids.BroadcasterID
}

// BuildCondition returns a fresh Condition for sub. Custom subscriptions get
// their own condition back unchanged; scope-only kinds get an empty one.
func BuildCondition(sub Subscription, ids AccountIDs) Condition {
	if sub.IsCustom() {
		return sub.condition
	}
	entry, ok := catalog[sub.kind]
	if !ok || entry.build == nil {
		return Condition{}
	}
	return entry.build(ids)
}

// Transport binds a subscription to a live websocket session.
type Transport struct {
	Method      string `json:"method"`
	SessionID   string `json:"session_id,omitempty"`
	ConnectedAt string `json:"connected_at,omitempty"`
}

const TransportWebsocket = "websocket"

func WebsocketTransport(sessionID string) Transport {
	return Transport{Method: TransportWebsocket, SessionID: sessionID}
}

// EventSubscription is the request body for creating one subscription.
type EventSubscription struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Condition Condition `json:"condition"`
	Transport Transport `json:"transport"`
}

func NewEventSubscription(sub Subscription, sessionID string, ids AccountIDs) (EventSubscription, error) {
	if sub.Tag() == "" {
		return EventSubscription{}, newError(ErrNotSubscribable, nil, goerrors.CategoryBadInput, TextCodeNotSubscribable,
			"cannot subscribe to "+sub.String())
	}
	return EventSubscription{
		Type:      sub.Tag(),
		Version:   sub.Version(),
		Condition: BuildCondition(sub, ids),
		Transport: WebsocketTransport(sessionID),
	}, nil
}
