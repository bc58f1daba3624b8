package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dnsge/go-twitch-eventsub"
	"github.com/dnsge/go-twitch-eventsub/tokenstore"
	glog "github.com/goliatone/go-logger/glog"
)

func main() {
	logger := newLogger(os.Stderr, os.Getenv("EVENTSUB_DEBUG") != "")

	// Environment values override defaults
	cfg, err := eventsub.LoadConfig(nil, envLayer())
	if err != nil {
		panic(err)
	}
	opts := append(cfg.Options(), eventsub.WithLogger(logger))

	store, err := tokenstore.New(cfg.TokenStore)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oauth := eventsub.NewOAuthClient(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL, opts...)
	subs := cfg.SubscriptionList()

	cred, err := loadCredential(ctx, store, oauth, subs)
	if err != nil {
		panic(err)
	}

	// Refreshed credentials are persisted for the next run
	guard := eventsub.NewTokenGuard(cred, oauth.RefreshCredential)
	guard.OnRefresh = tokenstore.Persist(store, logger)

	client := eventsub.NewClient(cfg.ClientID, guard, opts...)
	validation, err := client.ValidateToken(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Authenticated as %s with scopes %v\n", validation.Login, validation.Scopes)

	ids := cfg.AccountIDs()
	pool := eventsub.NewSessionPool(client, ids, opts...)
	pool.OnStart = func() {
		fmt.Println("Connected!")
	}
	pool.OnError = func(session *eventsub.Session, err error, info interface{}) {
		logger.Error("session error", "session_id", session.SessionID(), "error", err, "info", info)
	}

	for _, sub := range subs {
		if !sub.Kind().Subscribable() {
			continue
		}
		if _, err := pool.Listen(ctx, sub, handler(ctx, client, ids)); err != nil {
			panic(err)
		}
	}

	// Start and wait
	if err := pool.Start(); err != nil {
		panic(err)
	}
	<-ctx.Done()
	pool.Stop()
}

func handler(ctx context.Context, client *eventsub.Client, ids eventsub.AccountIDs) eventsub.EventCallback {
	return func(msg eventsub.Message) {
		switch event := msg.Event.(type) {
		case eventsub.ChatMessageEvent:
			text, ok := event.WrittenText()
			if !ok {
				return
			}
			fmt.Printf("%s: %s\n", event.ChatterUserName, text)
			if text == "!ping" {
				_, err := client.SendChatMessage(ctx, eventsub.ChatMessage{
					BroadcasterID:        ids.BroadcasterID,
					SenderID:             ids.UserID,
					Message:              "pong",
					ReplyParentMessageID: event.MessageID,
				})
				if err != nil {
					fmt.Printf("Reply failed: %v\n", err)
				}
			}
		case eventsub.RaidEvent:
			fmt.Printf("Raid from %s with %d viewers\n", event.FromBroadcasterUserName, event.Viewers)
		case eventsub.CustomRewardRedemptionEvent:
			fmt.Printf("%s redeemed %q\n", event.UserName, event.Reward.Title)
		default:
			fmt.Printf("Event %s\n", msg.Envelope.SubscriptionType())
		}
	}
}

func loadCredential(ctx context.Context, store tokenstore.Store, oauth *eventsub.OAuthClient, subs []eventsub.Subscription) (eventsub.Credential, error) {
	if store != nil {
		cred, err := store.Load(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, tokenstore.ErrNotFound) {
			return eventsub.Credential{}, err
		}
	}

	state, err := oauth.NewState()
	if err != nil {
		return eventsub.Credential{}, err
	}
	fmt.Printf("Open this URL and paste the address you are redirected to:\n%s\n> ", oauth.AuthorizeURL(state, subs...))

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return eventsub.Credential{}, err
	}
	code, returnedState, err := eventsub.ParseAuthorizationRedirect(line)
	if err != nil {
		return eventsub.Credential{}, err
	}
	if err := eventsub.VerifyState(state, returnedState); err != nil {
		return eventsub.Credential{}, err
	}

	cred, err := oauth.ExchangeCode(ctx, code)
	if err != nil {
		return eventsub.Credential{}, err
	}
	if store != nil {
		if err := store.Save(ctx, cred); err != nil {
			return eventsub.Credential{}, err
		}
	}
	return cred, nil
}

func envLayer() map[string]any {
	layer := map[string]any{}
	set := func(key, env string) {
		if value := os.Getenv(env); value != "" {
			layer[key] = value
		}
	}
	set("client_id", "EVENTSUB_CLIENT_ID")
	set("client_secret", "EVENTSUB_CLIENT_SECRET")
	set("redirect_url", "EVENTSUB_REDIRECT_URL")
	set("broadcaster_id", "EVENTSUB_BROADCASTER_ID")
	set("bot_id", "EVENTSUB_BOT_ID")

	if value := os.Getenv("EVENTSUB_SUBSCRIPTIONS"); value != "" {
		layer["subscriptions"] = strings.Split(value, ",")
	}

	store := map[string]any{}
	if value := os.Getenv("EVENTSUB_TOKEN_FILE"); value != "" {
		store["kind"] = "file"
		store["path"] = value
	}
	if value := os.Getenv("EVENTSUB_REDIS_ADDR"); value != "" {
		store["kind"] = "redis"
		store["redis_addr"] = value
	}
	if len(store) > 0 {
		layer["token_store"] = store
	}
	return layer
}

func newLogger(w io.Writer, debug bool) *glog.BaseLogger {
	level := glog.Info
	if debug {
		level = glog.Debug
	}
	return glog.NewLogger(
		glog.WithName("eventsub-example"),
		glog.WithLoggerTypeConsole(),
		glog.WithLevel(level),
		glog.WithWriter(w),
	)
}
