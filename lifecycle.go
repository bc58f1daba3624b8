package eventsub

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// TokenLifecycle executes authenticated requests and, when the access token is
// rejected, refreshes it and replays the request exactly once.
type TokenLifecycle struct {
	executor  Executor
	refresher Refresher
	logger    glog.Logger
}

func NewTokenLifecycle(executor Executor, refresher Refresher, opts ...Option) *TokenLifecycle {
	o := resolveOptions(opts)
	if executor == nil {
		executor = NewRequestExecutor(opts...)
	}
	return &TokenLifecycle{
		executor:  executor,
		refresher: refresher,
		logger:    o.logger,
	}
}

// Do runs req. A first ErrTokenRequiresRefreshing triggers one refresh and
// one replay with the new token; a second one is reported as
// ErrInvalidOAuthToken. Every other error is returned unchanged.
func (l *TokenLifecycle) Do(ctx context.Context, req *Request) ([]byte, error) {
	body, err := l.executor.Execute(ctx, req)
	if err == nil || !errors.Is(err, ErrTokenRequiresRefreshing) {
		return body, err
	}

	if l.refresher == nil {
		return nil, newError(ErrInvalidOAuthToken, err, goerrors.CategoryAuth, TextCodeInvalidOAuthToken,
			"token rejected and no refresher configured").WithMetadata(requestMetadata(req))
	}

	l.logger.Info("refreshing rejected access token", "method", req.Method, "url", req.URL)
	cred, refreshErr := l.refresher.Refresh(ctx, req.Token())
	if refreshErr != nil {
		l.logger.Error("token refresh failed", "error", refreshErr)
		if errors.Is(refreshErr, ErrInvalidOAuthToken) {
			return nil, refreshErr
		}
		return nil, newError(ErrInvalidOAuthToken, refreshErr, goerrors.CategoryAuth, TextCodeInvalidOAuthToken,
			"token refresh failed").WithMetadata(requestMetadata(req))
	}

	req.SetToken(cred.AccessToken)
	body, err = l.executor.Execute(ctx, req)
	if err != nil && errors.Is(err, ErrTokenRequiresRefreshing) {
		l.logger.Error("refreshed token rejected", "method", req.Method, "url", req.URL)
		return nil, newError(ErrInvalidOAuthToken, err, goerrors.CategoryAuth, TextCodeInvalidOAuthToken,
			"token rejected after refresh").WithMetadata(requestMetadata(req))
	}
	return body, err
}
