package eventsub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// MaxChatMessageLength is the longest chat message, in bytes, the vendor accepts.
const MaxChatMessageLength = 500

// ChatMessage is the body of a send-chat-message call.
// SenderID defaults to BroadcasterID when empty.
type ChatMessage struct {
	BroadcasterID        string `json:"broadcaster_id"`
	SenderID             string `json:"sender_id"`
	Message              string `json:"message"`
	ReplyParentMessageID string `json:"reply_parent_message_id,omitempty"`
}

type DropReason struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SentMessage struct {
	MessageID  string      `json:"message_id"`
	IsSent     bool        `json:"is_sent"`
	DropReason *DropReason `json:"drop_reason,omitempty"`
}

type timeoutRequest struct {
	Data timeoutRequestData `json:"data"`
}

type timeoutRequestData struct {
	UserID   string `json:"user_id"`
	Duration int    `json:"duration"`
	Reason   string `json:"reason"`
}

// SubscriptionData describes one subscription as the vendor reports it.
type SubscriptionData struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Cost      int       `json:"cost"`
	Condition Condition `json:"condition"`
	Transport Transport `json:"transport"`
	CreatedAt time.Time `json:"created_at"`
}

type SubscriptionResponse struct {
	Data         []SubscriptionData `json:"data"`
	Total        int                `json:"total"`
	TotalCost    int                `json:"total_cost"`
	MaxTotalCost int                `json:"max_total_cost"`
}

// Client calls the Helix API with a guarded credential. Every call goes
// through a TokenLifecycle, so a rejected token is refreshed and the call
// replayed once.
type Client struct {
	clientID string
	guard    *TokenGuard

	baseURL   string
	lifecycle *TokenLifecycle
	oauth     *OAuthClient
	logger    glog.Logger
}

func NewClient(clientID string, guard *TokenGuard, opts ...Option) *Client {
	o := resolveOptions(opts)
	return &Client{
		clientID:  clientID,
		guard:     guard,
		baseURL:   o.apiBaseURL,
		lifecycle: NewTokenLifecycle(NewRequestExecutor(opts...), guard, opts...),
		oauth:     NewOAuthClient(clientID, "", "", opts...),
		logger:    o.logger,
	}
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	reqOpts := []RequestOption{WithFullAuth(c.guard.AccessToken(), c.clientID)}
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, newError(ErrRequestFailed, err, goerrors.CategoryInternal, TextCodeRequestFailed,
				"encode request body")
		}
		reqOpts = append(reqOpts, WithJSON(encoded))
	}
	return c.lifecycle.Do(ctx, NewRequest(method, rawURL, reqOpts...))
}

// SendChatMessage posts msg to the broadcaster's chat. Messages longer than
// MaxChatMessageLength fail with ErrMessageTooLong before any request.
func (c *Client) SendChatMessage(ctx context.Context, msg ChatMessage) (SentMessage, error) {
	if len(msg.Message) > MaxChatMessageLength {
		return SentMessage{}, newError(ErrMessageTooLong, nil, goerrors.CategoryBadInput, TextCodeMessageTooLong,
			"chat message exceeds "+strconv.Itoa(MaxChatMessageLength)+" bytes").
			WithMetadata(map[string]any{"length": len(msg.Message)})
	}
	if msg.SenderID == "" {
		msg.SenderID = msg.BroadcasterID
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/chat/messages", msg)
	if err != nil {
		return SentMessage{}, err
	}

	var response struct {
		Data []SentMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return SentMessage{}, newError(ErrDecode, err, goerrors.CategoryExternal, TextCodeDecode,
			"decode send chat message response")
	}
	if len(response.Data) == 0 {
		return SentMessage{}, nil
	}
	sent := response.Data[0]
	if !sent.IsSent && sent.DropReason != nil {
		c.logger.Warn("chat message dropped", "code", sent.DropReason.Code, "reason", sent.DropReason.Message)
	}
	return sent, nil
}

// DeleteMessage removes one chat message. Requires KindDeleteMessage's scope.
func (c *Client) DeleteMessage(ctx context.Context, broadcasterID, moderatorID, messageID string) error {
	target := NewQuery().
		Add("broadcaster_id", broadcasterID).
		Add("moderator_id", moderatorID).
		Add("message_id", messageID).
		URL(c.baseURL + "/moderation/chat")
	_, err := c.do(ctx, http.MethodDelete, target, nil)
	return err
}

// TimeoutUser bans userID for duration. Requires KindBanTimeoutUser's scope.
func (c *Client) TimeoutUser(ctx context.Context, broadcasterID, moderatorID, userID string, duration time.Duration, reason string) error {
	target := NewQuery().
		Add("broadcaster_id", broadcasterID).
		Add("moderator_id", moderatorID).
		URL(c.baseURL + "/moderation/bans")
	_, err := c.do(ctx, http.MethodPost, target, timeoutRequest{
		Data: timeoutRequestData{
			UserID:   userID,
			Duration: int(duration / time.Second),
			Reason:   reason,
		},
	})
	return err
}

func (c *Client) CreateSubscription(ctx context.Context, sub EventSubscription) (SubscriptionResponse, error) {
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/eventsub/subscriptions", sub)
	if err != nil {
		return SubscriptionResponse{}, err
	}
	var response SubscriptionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return SubscriptionResponse{}, newError(ErrDecode, err, goerrors.CategoryExternal, TextCodeDecode,
			"decode subscription response")
	}
	return response, nil
}

// Subscribe binds every subscribable entry of subs to sessionID.
// Scope-only kinds are skipped.
func (c *Client) Subscribe(ctx context.Context, sessionID string, ids AccountIDs, subs ...Subscription) ([]SubscriptionData, error) {
	var created []SubscriptionData
	for _, sub := range subs {
		if sub.Tag() == "" {
			c.logger.Debug("skipping scope-only subscription", "subscription", sub.String())
			continue
		}
		request, err := NewEventSubscription(sub, sessionID, ids)
		if err != nil {
			return created, err
		}
		response, err := c.CreateSubscription(ctx, request)
		if err != nil {
			return created, err
		}
		created = append(created, response.Data...)
	}
	return created, nil
}

func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	target := NewQuery().Add("id", id).URL(c.baseURL + "/eventsub/subscriptions")
	_, err := c.do(ctx, http.MethodDelete, target, nil)
	return err
}

// ValidateToken introspects the current access token.
func (c *Client) ValidateToken(ctx context.Context) (Validation, error) {
	return c.oauth.Validate(ctx, c.guard.AccessToken())
}
