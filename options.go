package eventsub

import (
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	DefaultAPIBaseURL   = "https://api.twitch.tv/helix"
	DefaultAuthBaseURL  = "https://id.twitch.tv/oauth2"
	DefaultWebsocketURL = "wss://eventsub.wss.twitch.tv/ws"

	defaultRequestTimeout = 30 * time.Second
	defaultKeepaliveSlack = 5 * time.Second
	maxResponseBodyBytes  = 1 << 20

	loggerName = "eventsub"
)

// HTTPDoer executes one HTTP round trip.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type options struct {
	logger         glog.Logger
	loggerProvider glog.LoggerProvider
	doer           HTTPDoer
	apiBaseURL     string
	authBaseURL    string
	websocketURL   string
	requestTimeout time.Duration
	keepaliveSlack time.Duration
	verifyHints    bool
}

type Option func(*options)

func WithLogger(logger glog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *options) {
		o.loggerProvider = provider
	}
}

func WithHTTPDoer(doer HTTPDoer) Option {
	return func(o *options) {
		o.doer = doer
	}
}

func WithAPIBaseURL(base string) Option {
	return func(o *options) {
		o.apiBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

func WithAuthBaseURL(base string) Option {
	return func(o *options) {
		o.authBaseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

func WithWebsocketURL(wsURL string) Option {
	return func(o *options) {
		o.websocketURL = strings.TrimSpace(wsURL)
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = timeout
	}
}

// WithKeepaliveSlack extends the session keepalive window before a reconnect.
func WithKeepaliveSlack(slack time.Duration) Option {
	return func(o *options) {
		o.keepaliveSlack = slack
	}
}

// WithHintVerification makes the decoder also run the structural trial decode
// for hinted notifications and log a warning when the two disagree.
func WithHintVerification(enabled bool) Option {
	return func(o *options) {
		o.verifyHints = enabled
	}
}

func resolveOptions(opts []Option) options {
	o := options{
		apiBaseURL:     DefaultAPIBaseURL,
		authBaseURL:    DefaultAuthBaseURL,
		websocketURL:   DefaultWebsocketURL,
		requestTimeout: defaultRequestTimeout,
		keepaliveSlack: defaultKeepaliveSlack,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	// provider wins over logger, nop when neither is set
	provider, logger := glog.Resolve(loggerName, o.loggerProvider, o.logger)
	o.loggerProvider = provider
	o.logger = glog.Ensure(logger)

	if o.doer == nil {
		o.doer = &http.Client{Timeout: o.requestTimeout}
	}
	return o
}
