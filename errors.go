package eventsub

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

var (
	// Chat message is longer than MaxChatMessageLength. No request was issued.
	ErrMessageTooLong = errors.New("message too long")

	// The vendor rejected the access token with a 401.
	// The request may be replayed once with a refreshed credential.
	ErrTokenRequiresRefreshing = errors.New("token requires refreshing")

	// The access token is still rejected after a refresh, or the refresh itself failed.
	ErrInvalidOAuthToken = errors.New("invalid oauth token")

	// Token exchange response could not be turned into a Credential.
	ErrAuthorisation = errors.New("authorisation failed")

	// Non-auth HTTP or network failure.
	ErrRequestFailed = errors.New("request failed")

	// Authorization-code redirect carried an error indicator.
	ErrUnhandled = errors.New("unhandled error")

	// Inbound envelope or event payload could not be decoded.
	ErrDecode = errors.New("decode failed")

	// Kind has no wire tag and cannot be subscribed to.
	ErrNotSubscribable = errors.New("kind is not subscribable")

	// Keepalive window elapsed without any session message.
	// OnError info: time.Duration of the elapsed window
	ErrKeepaliveTimeout = errors.New("keepalive timed out")

	// Client attempted to register too many subscriptions on one session.
	ErrTooManySubscriptions = errors.New("too many subscriptions")

	// Client attempted to register a duplicate subscription.
	ErrDuplicateSubscription = errors.New("duplicate subscription")

	// Registration could not be found.
	ErrUnknownSubscription = errors.New("subscription not found")

	// Pool already holds the maximum number of sessions for one token.
	ErrTooManySessions = errors.New("too many sessions")
)

const (
	TextCodeMessageTooLong       = "EVENTSUB_MESSAGE_TOO_LONG"
	TextCodeTokenRefresh         = "EVENTSUB_TOKEN_REQUIRES_REFRESHING"
	TextCodeInvalidOAuthToken    = "EVENTSUB_INVALID_OAUTH_TOKEN"
	TextCodeAuthorisation        = "EVENTSUB_AUTHORISATION_ERROR"
	TextCodeRequestFailed        = "EVENTSUB_REQUEST_FAILED"
	TextCodeUnhandled            = "EVENTSUB_UNHANDLED_ERROR"
	TextCodeDecode               = "EVENTSUB_DECODE_FAILED"
	TextCodeNotSubscribable      = "EVENTSUB_NOT_SUBSCRIBABLE"
	TextCodeSubscriptionRegistry = "EVENTSUB_SUBSCRIPTION_REGISTRY"
	TextCodeInvalidConfig        = "EVENTSUB_INVALID_CONFIG"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("http %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), body)
}

// newError builds a categorised error whose chain contains sentinel (and cause,
// when given), so both errors.Is(err, sentinel) and errors.As on the cause work.
func newError(sentinel, cause error, category goerrors.Category, textCode, message string) *goerrors.Error {
	source := sentinel
	if cause != nil {
		source = fmt.Errorf("%w: %w", sentinel, cause)
	}
	err := goerrors.New(message, category).WithTextCode(textCode)
	err.Source = source
	return err
}

func requestMetadata(req *Request) map[string]any {
	if req == nil {
		return map[string]any{}
	}
	return map[string]any{
		"method": req.Method,
		"url":    req.URL,
	}
}
