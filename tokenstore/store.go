// Package tokenstore persists eventsub credentials between runs.
package tokenstore

import (
	"context"
	"errors"
	"fmt"

	eventsub "github.com/dnsge/go-twitch-eventsub"
	glog "github.com/goliatone/go-logger/glog"
	redis "github.com/redis/go-redis/v9"
)

// ErrNotFound indicates no credential has been saved yet.
var ErrNotFound = errors.New("credential not found")

type Store interface {
	Load(ctx context.Context) (eventsub.Credential, error)
	Save(ctx context.Context, cred eventsub.Credential) error
}

// New builds the store selected by cfg. A nil Store and nil error mean
// persistence is disabled.
func New(cfg eventsub.TokenStoreConfig) (Store, error) {
	switch cfg.Kind {
	case eventsub.TokenStoreNone:
		return nil, nil
	case eventsub.TokenStoreFile:
		return NewFileStore(cfg.Path), nil
	case eventsub.TokenStoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisStore(client, cfg.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.Kind)
	}
}

// Persist returns a TokenGuard.OnRefresh hook that saves every refreshed
// credential. Save failures are logged; the refreshed credential stays in use.
func Persist(store Store, logger glog.Logger) func(eventsub.Credential) {
	logger = glog.Ensure(logger)
	return func(cred eventsub.Credential) {
		if store == nil {
			return
		}
		if err := store.Save(context.Background(), cred); err != nil {
			logger.Error("persist refreshed credential failed", "error", err)
			return
		}
		logger.Debug("persisted refreshed credential")
	}
}
