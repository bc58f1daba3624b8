package eventsub

import (
	"strings"
	"time"
)

// Event is one notification payload. Each implementation is a plain value
// decoded from the payload's event object.
type Event interface {
	Kind() Kind
	isEvent()
}

type Broadcaster struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

// User is empty for anonymous gifts and cheers.
type User struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
}

// Chat

type Badge struct {
	SetID string `json:"set_id"`
	ID    string `json:"id"`
	Info  string `json:"info"`
}

type Cheermote struct {
	Prefix string `json:"prefix"`
	Bits   int    `json:"bits"`
	Tier   int    `json:"tier"`
}

type Emote struct {
	ID         string   `json:"id"`
	EmoteSetID string   `json:"emote_set_id"`
	OwnerID    string   `json:"owner_id"`
	Format     []string `json:"format"`
}

type Mention struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
}

type Fragment struct {
	Type      string     `json:"type"`
	Text      string     `json:"text"`
	Cheermote *Cheermote `json:"cheermote,omitempty"`
	Emote     *Emote     `json:"emote,omitempty"`
	Mention   *Mention   `json:"mention,omitempty"`
}

func (f Fragment) IsMention() bool { return f.Type == "mention" }

type ChatMessageBody struct {
	Text      string     `json:"text"`
	Fragments []Fragment `json:"fragments"`
}

// WrittenText joins the non-mention fragments in order with single spaces.
// Only the first kept fragment is trimmed. ok is false when every fragment
// is a mention.
func (m ChatMessageBody) WrittenText() (text string, ok bool) {
	var b strings.Builder
	for _, fragment := range m.Fragments {
		if fragment.IsMention() {
			continue
		}
		if !ok {
			b.WriteString(strings.TrimSpace(fragment.Text))
			ok = true
			continue
		}
		b.WriteByte(' ')
		b.WriteString(fragment.Text)
	}
	return b.String(), ok
}

type ChatCheer struct {
	Bits int `json:"bits"`
}

type ChatReply struct {
	ParentMessageID   string `json:"parent_message_id"`
	ParentMessageBody string `json:"parent_message_body"`
	ParentUserID      string `json:"parent_user_id"`
	ParentUserName    string `json:"parent_user_name"`
	ParentUserLogin   string `json:"parent_user_login"`
	ThreadMessageID   string `json:"thread_message_id"`
	ThreadUserID      string `json:"thread_user_id"`
	ThreadUserName    string `json:"thread_user_name"`
	ThreadUserLogin   string `json:"thread_user_login"`
}

type ChatMessageEvent struct {
	Broadcaster
	ChatterUserID               string          `json:"chatter_user_id"`
	ChatterUserLogin            string          `json:"chatter_user_login"`
	ChatterUserName             string          `json:"chatter_user_name"`
	MessageID                   string          `json:"message_id"`
	Message                     ChatMessageBody `json:"message"`
	MessageType                 string          `json:"message_type"`
	Color                       string          `json:"color"`
	Badges                      []Badge         `json:"badges"`
	Cheer                       *ChatCheer      `json:"cheer,omitempty"`
	Reply                       *ChatReply      `json:"reply,omitempty"`
	ChannelPointsCustomRewardID string          `json:"channel_points_custom_reward_id,omitempty"`
}

func (e ChatMessageEvent) WrittenText() (string, bool) { return e.Message.WrittenText() }

// Raids

type RaidEvent struct {
	FromBroadcasterUserID    string `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
	ToBroadcasterUserID      string `json:"to_broadcaster_user_id"`
	ToBroadcasterUserLogin   string `json:"to_broadcaster_user_login"`
	ToBroadcasterUserName    string `json:"to_broadcaster_user_name"`
	Viewers                  int    `json:"viewers"`
}

// Channel points

type Reward struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Cost   int    `json:"cost"`
}

type CustomRewardRedemptionEvent struct {
	Broadcaster
	User
	ID         string    `json:"id"`
	UserInput  string    `json:"user_input"`
	Status     string    `json:"status"`
	Reward     Reward    `json:"reward"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

type AutoReward struct {
	Type          string `json:"type"`
	Cost          int    `json:"cost"`
	UnlockedEmote *Emote `json:"unlocked_emote,omitempty"`
}

type AutoRewardRedemptionEvent struct {
	Broadcaster
	User
	ID         string          `json:"id"`
	Reward     AutoReward      `json:"reward"`
	Message    ChatMessageBody `json:"message"`
	UserInput  string          `json:"user_input,omitempty"`
	RedeemedAt time.Time       `json:"redeemed_at"`
}

// Ads

type AdBreakBeginEvent struct {
	Broadcaster
	RequesterUserID    string    `json:"requester_user_id"`
	RequesterUserLogin string    `json:"requester_user_login"`
	RequesterUserName  string    `json:"requester_user_name"`
	DurationSeconds    int       `json:"duration_seconds"`
	StartedAt          time.Time `json:"started_at"`
	IsAutomatic        bool      `json:"is_automatic"`
}

// Subscriptions and bits

type SubscribeEvent struct {
	Broadcaster
	User
	Tier   string `json:"tier"`
	IsGift bool   `json:"is_gift"`
}

type SubscriptionGiftEvent struct {
	Broadcaster
	User
	Total           int    `json:"total"`
	Tier            string `json:"tier"`
	CumulativeTotal *int   `json:"cumulative_total"`
	IsAnonymous     bool   `json:"is_anonymous"`
}

type SubscriptionMessageEvent struct {
	Broadcaster
	User
	Tier             string          `json:"tier"`
	Message          ChatMessageBody `json:"message"`
	CumulativeMonths int             `json:"cumulative_months"`
	StreakMonths     *int            `json:"streak_months"`
	DurationMonths   int             `json:"duration_months"`
}

type CheerEvent struct {
	Broadcaster
	User
	IsAnonymous bool   `json:"is_anonymous"`
	Message     string `json:"message"`
	Bits        int    `json:"bits"`
}

// Polls

type PollChoice struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	BitsVotes          int    `json:"bits_votes"`
	ChannelPointsVotes int    `json:"channel_points_votes"`
	Votes              int    `json:"votes"`
}

type VotingSettings struct {
	IsEnabled     bool `json:"is_enabled"`
	AmountPerVote int  `json:"amount_per_vote"`
}

type poll struct {
	Broadcaster
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Choices             []PollChoice   `json:"choices"`
	BitsVoting          VotingSettings `json:"bits_voting"`
	ChannelPointsVoting VotingSettings `json:"channel_points_voting"`
	StartedAt           time.Time      `json:"started_at"`
}

type PollBeginEvent struct {
	poll
	EndsAt time.Time `json:"ends_at"`
}

type PollProgressEvent struct {
	poll
	EndsAt time.Time `json:"ends_at"`
}

type PollEndEvent struct {
	poll
	Status  string    `json:"status"`
	EndedAt time.Time `json:"ended_at"`
}

// Predictions

type Predictor struct {
	User
	ChannelPointsWon  *int `json:"channel_points_won"`
	ChannelPointsUsed int  `json:"channel_points_used"`
}

type PredictionOutcome struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Color         string      `json:"color"`
	Users         int         `json:"users,omitempty"`
	ChannelPoints int         `json:"channel_points,omitempty"`
	TopPredictors []Predictor `json:"top_predictors,omitempty"`
}

type prediction struct {
	Broadcaster
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Outcomes  []PredictionOutcome `json:"outcomes"`
	StartedAt time.Time           `json:"started_at"`
}

type PredictionBeginEvent struct {
	prediction
	LocksAt time.Time `json:"locks_at"`
}

type PredictionProgressEvent struct {
	prediction
	LocksAt time.Time `json:"locks_at"`
}

type PredictionLockEvent struct {
	prediction
	LockedAt time.Time `json:"locked_at"`
}

type PredictionEndEvent struct {
	prediction
	WinningOutcomeID string    `json:"winning_outcome_id"`
	Status           string    `json:"status"`
	EndedAt          time.Time `json:"ended_at"`
}

// Hype trains

type Contribution struct {
	User
	Type  string `json:"type"`
	Total int    `json:"total"`
}

type hypeTrain struct {
	Broadcaster
	ID               string         `json:"id"`
	Level            int            `json:"level"`
	Total            int            `json:"total"`
	TopContributions []Contribution `json:"top_contributions"`
	StartedAt        time.Time      `json:"started_at"`
}

type HypeTrainBeginEvent struct {
	hypeTrain
	Progress         int          `json:"progress"`
	Goal             int          `json:"goal"`
	LastContribution Contribution `json:"last_contribution"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

type HypeTrainProgressEvent struct {
	hypeTrain
	Progress         int          `json:"progress"`
	Goal             int          `json:"goal"`
	LastContribution Contribution `json:"last_contribution"`
	ExpiresAt        time.Time    `json:"expires_at"`
}

type HypeTrainEndEvent struct {
	hypeTrain
	EndedAt        time.Time `json:"ended_at"`
	CooldownEndsAt time.Time `json:"cooldown_ends_at"`
}

// Follows, shoutouts and user updates

type FollowEvent struct {
	Broadcaster
	User
	FollowedAt time.Time `json:"followed_at"`
}

type ShoutoutCreateEvent struct {
	Broadcaster
	ToBroadcasterUserID    string    `json:"to_broadcaster_user_id"`
	ToBroadcasterUserLogin string    `json:"to_broadcaster_user_login"`
	ToBroadcasterUserName  string    `json:"to_broadcaster_user_name"`
	ModeratorUserID        string    `json:"moderator_user_id"`
	ModeratorUserLogin     string    `json:"moderator_user_login"`
	ModeratorUserName      string    `json:"moderator_user_name"`
	ViewerCount            int       `json:"viewer_count"`
	StartedAt              time.Time `json:"started_at"`
	CooldownEndsAt         time.Time `json:"cooldown_ends_at"`
	TargetCooldownEndsAt   time.Time `json:"target_cooldown_ends_at"`
}

type ShoutoutReceiveEvent struct {
	Broadcaster
	FromBroadcasterUserID    string    `json:"from_broadcaster_user_id"`
	FromBroadcasterUserLogin string    `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string    `json:"from_broadcaster_user_name"`
	ViewerCount              int       `json:"viewer_count"`
	StartedAt                time.Time `json:"started_at"`
}

type UserUpdateEvent struct {
	User
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Description   string `json:"description"`
}

func (ChatMessageEvent) Kind() Kind            { return KindChatMessage }
func (RaidEvent) Kind() Kind                   { return KindChannelRaid }
func (CustomRewardRedemptionEvent) Kind() Kind { return KindChannelPointsCustomRewardRedeem }
func (AdBreakBeginEvent) Kind() Kind           { return KindAdBreakBegin }
func (SubscribeEvent) Kind() Kind              { return KindChannelSubscribe }
func (SubscriptionGiftEvent) Kind() Kind       { return KindChannelSubscriptionGift }
func (SubscriptionMessageEvent) Kind() Kind    { return KindChannelSubscriptionMessage }
func (CheerEvent) Kind() Kind                  { return KindChannelCheer }
func (AutoRewardRedemptionEvent) Kind() Kind   { return KindChannelPointsAutoRewardRedeem }
func (PollBeginEvent) Kind() Kind              { return KindPollBegin }
func (PollProgressEvent) Kind() Kind           { return KindPollProgress }
func (PollEndEvent) Kind() Kind                { return KindPollEnd }
func (PredictionBeginEvent) Kind() Kind        { return KindPredictionBegin }
func (PredictionProgressEvent) Kind() Kind     { return KindPredictionProgress }
func (PredictionLockEvent) Kind() Kind         { return KindPredictionLock }
func (PredictionEndEvent) Kind() Kind          { return KindPredictionEnd }
func (HypeTrainBeginEvent) Kind() Kind         { return KindHypeTrainBegin }
func (HypeTrainProgressEvent) Kind() Kind      { return KindHypeTrainProgress }
func (HypeTrainEndEvent) Kind() Kind           { return KindHypeTrainEnd }
func (FollowEvent) Kind() Kind                 { return KindChannelFollow }
func (ShoutoutCreateEvent) Kind() Kind         { return KindShoutoutCreate }
func (ShoutoutReceiveEvent) Kind() Kind        { return KindShoutoutReceive }
func (UserUpdateEvent) Kind() Kind             { return KindUserUpdate }

func (ChatMessageEvent) isEvent()            {}
func (RaidEvent) isEvent()                   {}
func (CustomRewardRedemptionEvent) isEvent() {}
func (AdBreakBeginEvent) isEvent()           {}
func (SubscribeEvent) isEvent()              {}
func (SubscriptionGiftEvent) isEvent()       {}
func (SubscriptionMessageEvent) isEvent()    {}
func (CheerEvent) isEvent()                  {}
func (AutoRewardRedemptionEvent) isEvent()   {}
func (PollBeginEvent) isEvent()              {}
func (PollProgressEvent) isEvent()           {}
func (PollEndEvent) isEvent()                {}
func (PredictionBeginEvent) isEvent()        {}
func (PredictionProgressEvent) isEvent()     {}
func (PredictionLockEvent) isEvent()         {}
func (PredictionEndEvent) isEvent()          {}
func (HypeTrainBeginEvent) isEvent()         {}
func (HypeTrainProgressEvent) isEvent()      {}
func (HypeTrainEndEvent) isEvent()           {}
func (FollowEvent) isEvent()                 {}
func (ShoutoutCreateEvent) isEvent()         {}
func (ShoutoutReceiveEvent) isEvent()        {}
func (UserUpdateEvent) isEvent()             {}
