package eventsub

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

const (
	TokenStoreNone  = ""
	TokenStoreFile  = "file"
	TokenStoreRedis = "redis"
)

type TokenStoreConfig struct {
	Kind      string `koanf:"kind" mapstructure:"kind"`
	Path      string `koanf:"path" mapstructure:"path"`
	RedisAddr string `koanf:"redis_addr" mapstructure:"redis_addr"`
	RedisKey  string `koanf:"redis_key" mapstructure:"redis_key"`
}

type Config struct {
	ClientID      string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string   `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURL   string   `koanf:"redirect_url" mapstructure:"redirect_url"`
	BroadcasterID string   `koanf:"broadcaster_id" mapstructure:"broadcaster_id"`
	BotID         string   `koanf:"bot_id" mapstructure:"bot_id"`
	Subscriptions []string `koanf:"subscriptions" mapstructure:"subscriptions"`

	APIBaseURL   string `koanf:"api_base_url" mapstructure:"api_base_url"`
	AuthBaseURL  string `koanf:"auth_base_url" mapstructure:"auth_base_url"`
	WebsocketURL string `koanf:"websocket_url" mapstructure:"websocket_url"`

	RequestTimeoutSeconds int  `koanf:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	KeepaliveSlackSeconds int  `koanf:"keepalive_slack_seconds" mapstructure:"keepalive_slack_seconds"`
	VerifyEventHints      bool `koanf:"verify_event_hints" mapstructure:"verify_event_hints"`

	TokenStore TokenStoreConfig `koanf:"token_store" mapstructure:"token_store"`
}

func DefaultConfig() Config {
	return Config{
		RedirectURL:           "http://localhost:3000",
		APIBaseURL:            DefaultAPIBaseURL,
		AuthBaseURL:           DefaultAuthBaseURL,
		WebsocketURL:          DefaultWebsocketURL,
		RequestTimeoutSeconds: int(defaultRequestTimeout / time.Second),
		KeepaliveSlackSeconds: int(defaultKeepaliveSlack / time.Second),
		TokenStore: TokenStoreConfig{
			RedisKey: "eventsub:credential",
		},
	}
}

func invalidConfig(format string, args ...any) error {
	return goerrors.New(fmt.Sprintf("eventsub: "+format, args...), goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidConfig)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return invalidConfig("client_id is required")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return invalidConfig("request_timeout_seconds must be positive")
	}
	if c.KeepaliveSlackSeconds < 0 {
		return invalidConfig("keepalive_slack_seconds must not be negative")
	}
	for _, tag := range c.Subscriptions {
		if _, ok := LookupKind(tag); !ok {
			return invalidConfig("unknown subscription %q", tag)
		}
	}
	switch c.TokenStore.Kind {
	case TokenStoreNone:
	case TokenStoreFile:
		if strings.TrimSpace(c.TokenStore.Path) == "" {
			return invalidConfig("token_store.path is required for the file store")
		}
	case TokenStoreRedis:
		if strings.TrimSpace(c.TokenStore.RedisAddr) == "" {
			return invalidConfig("token_store.redis_addr is required for the redis store")
		}
	default:
		return invalidConfig("unknown token_store.kind %q", c.TokenStore.Kind)
	}
	return nil
}

// AccountIDs uses the bot account, when set, as moderator and chat user.
func (c Config) AccountIDs() AccountIDs {
	ids := SingleAccount(c.BroadcasterID)
	if c.BotID != "" {
		ids.ModeratorID = c.BotID
		ids.UserID = c.BotID
	}
	return ids
}

// SubscriptionList resolves the configured tags. Tags shared by several
// kinds resolve to the first declared one.
func (c Config) SubscriptionList() []Subscription {
	subs := make([]Subscription, 0, len(c.Subscriptions))
	for _, tag := range c.Subscriptions {
		if sub, ok := SubscriptionFromTag(tag); ok {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (c Config) Options() []Option {
	return []Option{
		WithAPIBaseURL(c.APIBaseURL),
		WithAuthBaseURL(c.AuthBaseURL),
		WithWebsocketURL(c.WebsocketURL),
		WithRequestTimeout(time.Duration(c.RequestTimeoutSeconds) * time.Second),
		WithKeepaliveSlack(time.Duration(c.KeepaliveSlackSeconds) * time.Second),
		WithHintVerification(c.VerifyEventHints),
	}
}

// LoadConfig layers defaults, loaded values and runtime overrides, in that
// order of precedence, and validates the result.
func LoadConfig(loaded, runtime map[string]any) (Config, error) {
	defaults := DefaultConfig()

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			copyLayer(loaded),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			copyLayer(runtime),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("eventsub: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("eventsub: options merge failed: %w", err)
	}

	return cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

func copyLayer(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}

func configToLayerMap(cfg Config) map[string]any {
	return map[string]any{
		"client_id":               cfg.ClientID,
		"client_secret":           cfg.ClientSecret,
		"redirect_url":            cfg.RedirectURL,
		"broadcaster_id":          cfg.BroadcasterID,
		"bot_id":                  cfg.BotID,
		"subscriptions":           append([]string(nil), cfg.Subscriptions...),
		"api_base_url":            cfg.APIBaseURL,
		"auth_base_url":           cfg.AuthBaseURL,
		"websocket_url":           cfg.WebsocketURL,
		"request_timeout_seconds": cfg.RequestTimeoutSeconds,
		"keepalive_slack_seconds": cfg.KeepaliveSlackSeconds,
		"verify_event_hints":      cfg.VerifyEventHints,
		"token_store": map[string]any{
			"kind":       cfg.TokenStore.Kind,
			"path":       cfg.TokenStore.Path,
			"redis_addr": cfg.TokenStore.RedisAddr,
			"redis_key":  cfg.TokenStore.RedisKey,
		},
	}
}
