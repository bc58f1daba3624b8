package eventsub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidation(t *testing.T) {
	ok, err := ParseValidation([]byte(`{"client_id":"cid","login":"bot","scopes":["user:read:chat"],"user_id":"1","expires_in":3600}`))
	require.NoError(t, err)
	assert.False(t, ok.IsError())
	assert.Equal(t, "bot", ok.Login)
	require.NotNil(t, ok.ExpiresIn)
	assert.Equal(t, 3600, *ok.ExpiresIn)
	assert.Panics(t, func() { _ = ok.ErrorMessage() })

	failed, err := ParseValidation([]byte(unauthorizedBody))
	require.NoError(t, err)
	assert.True(t, failed.IsError())
	assert.Equal(t, "status: 401, message: Invalid OAuth token", failed.ErrorMessage())
}

func TestExecuteReturnsBodyOn2xx(t *testing.T) {
	doer := newScriptedDoer(respond(http.StatusOK, `{"data":[]}`))
	executor := NewRequestExecutor(WithHTTPDoer(doer))

	body, err := executor.Execute(context.Background(), NewRequest(http.MethodGet, "https://api.test/x", WithFullAuth("tok", "cid")))
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, string(body))

	requests := doer.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "Bearer tok", requests[0].Header.Get("Authorization"))
	assert.Equal(t, "cid", requests[0].Header.Get("Client-Id"))
}

func TestExecuteClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		response func(*http.Request) (*http.Response, error)
		sentinel error
		category goerrors.Category
		code     int
	}{
		{
			name:     "401 validation body",
			response: respond(http.StatusUnauthorized, unauthorizedBody),
			sentinel: ErrTokenRequiresRefreshing,
			category: goerrors.CategoryAuth,
			code:     http.StatusUnauthorized,
		},
		{
			name:     "401 without a body",
			response: respond(http.StatusUnauthorized, ``),
			sentinel: ErrTokenRequiresRefreshing,
			category: goerrors.CategoryAuth,
			code:     http.StatusUnauthorized,
		},
		{
			name:     "400 validation body",
			response: respond(http.StatusBadRequest, `{"status":400,"message":"missing broadcaster_id"}`),
			sentinel: ErrRequestFailed,
			category: goerrors.HTTPStatusToCategory(http.StatusBadRequest),
			code:     http.StatusBadRequest,
		},
		{
			name:     "500 plain body",
			response: respond(http.StatusInternalServerError, `oops`),
			sentinel: ErrRequestFailed,
			category: goerrors.HTTPStatusToCategory(http.StatusInternalServerError),
			code:     http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewRequestExecutor(WithHTTPDoer(newScriptedDoer(tt.response)))
			_, err := executor.Execute(context.Background(), NewRequest(http.MethodPost, "https://api.test/x"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)

			var typed *goerrors.Error
			require.True(t, errors.As(err, &typed))
			assert.Equal(t, tt.category, typed.Category)
			assert.Equal(t, tt.code, typed.Code)
			assert.Equal(t, "https://api.test/x", typed.Metadata["url"])

			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.code, statusErr.StatusCode)
		})
	}
}

func TestExecuteTransportFailure(t *testing.T) {
	cause := errors.New("connection refused")
	executor := NewRequestExecutor(WithHTTPDoer(newScriptedDoer(failTransport(cause))))

	_, err := executor.Execute(context.Background(), NewRequest(http.MethodGet, "https://api.test/x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrTokenRequiresRefreshing))
}

type countingExchange struct {
	calls atomic.Int32
	next  Credential
	err   error
	delay time.Duration
}

func (e *countingExchange) refresh(ctx context.Context, current Credential) (Credential, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return e.next, e.err
}

func TestTokenLifecycleRefreshesOnceThenReplays(t *testing.T) {
	doer := newScriptedDoer(
		respond(http.StatusUnauthorized, unauthorizedBody),
		respond(http.StatusOK, `{"ok":true}`),
	)
	exchange := &countingExchange{next: Credential{AccessToken: "new", RefreshToken: "refresh-2"}}
	guard := NewTokenGuard(Credential{AccessToken: "old", RefreshToken: "refresh-1"}, exchange.refresh)
	lifecycle := NewTokenLifecycle(NewRequestExecutor(WithHTTPDoer(doer)), guard)

	req := NewRequest(http.MethodPost, "https://api.test/x", WithFullAuth("old", "cid"), WithJSON([]byte(`{}`)))
	body, err := lifecycle.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))

	assert.EqualValues(t, 1, exchange.calls.Load())
	requests := doer.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "Bearer old", requests[0].Header.Get("Authorization"))
	assert.Equal(t, "Bearer new", requests[1].Header.Get("Authorization"))
	assert.Equal(t, "cid", requests[1].Header.Get("Client-Id"))
	assert.Equal(t, ContentTypeJSON, requests[1].Header.Get("Content-Type"))
	assert.Equal(t, "new", guard.AccessToken())
}

func TestTokenLifecycleStopsAfterOneRefresh(t *testing.T) {
	doer := newScriptedDoer(respond(http.StatusUnauthorized, unauthorizedBody))
	exchange := &countingExchange{next: Credential{AccessToken: "new"}}
	guard := NewTokenGuard(Credential{AccessToken: "old", RefreshToken: "refresh-1"}, exchange.refresh)
	lifecycle := NewTokenLifecycle(NewRequestExecutor(WithHTTPDoer(doer)), guard)

	_, err := lifecycle.Do(context.Background(), NewRequest(http.MethodGet, "https://api.test/x", WithFullAuth("old", "cid")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOAuthToken))
	assert.EqualValues(t, 1, exchange.calls.Load())
	assert.Len(t, doer.Requests(), 2)
}

func TestTokenLifecycleRefreshFailure(t *testing.T) {
	doer := newScriptedDoer(respond(http.StatusUnauthorized, unauthorizedBody))
	exchange := &countingExchange{err: errors.New("invalid refresh token")}
	guard := NewTokenGuard(Credential{AccessToken: "old", RefreshToken: "refresh-1"}, exchange.refresh)
	lifecycle := NewTokenLifecycle(NewRequestExecutor(WithHTTPDoer(doer)), guard)

	_, err := lifecycle.Do(context.Background(), NewRequest(http.MethodGet, "https://api.test/x", WithFullAuth("old", "cid")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOAuthToken))
	assert.Len(t, doer.Requests(), 1, "no replay without a new token")
	assert.Equal(t, "old", guard.AccessToken())
}

func TestTokenLifecycleDoesNotRetryOtherFailures(t *testing.T) {
	doer := newScriptedDoer(respond(http.StatusServiceUnavailable, `busy`))
	exchange := &countingExchange{next: Credential{AccessToken: "new"}}
	lifecycle := NewTokenLifecycle(NewRequestExecutor(WithHTTPDoer(doer)), NewTokenGuard(Credential{AccessToken: "old"}, exchange.refresh))

	_, err := lifecycle.Do(context.Background(), NewRequest(http.MethodGet, "https://api.test/x", WithFullAuth("old", "cid")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.Zero(t, exchange.calls.Load())
	assert.Len(t, doer.Requests(), 1)
}

func TestTokenLifecycleWithoutRefresher(t *testing.T) {
	doer := newScriptedDoer(respond(http.StatusUnauthorized, unauthorizedBody))
	lifecycle := NewTokenLifecycle(NewRequestExecutor(WithHTTPDoer(doer)), nil)

	_, err := lifecycle.Do(context.Background(), NewRequest(http.MethodGet, "https://api.test/x", WithFullAuth("old", "cid")))
	assert.True(t, errors.Is(err, ErrInvalidOAuthToken))
	assert.Len(t, doer.Requests(), 1)
}

func TestTokenGuardSerializesConcurrentRefreshes(t *testing.T) {
	exchange := &countingExchange{
		next:  Credential{AccessToken: "new", RefreshToken: "refresh-2"},
		delay: 20 * time.Millisecond,
	}
	guard := NewTokenGuard(Credential{AccessToken: "old", RefreshToken: "refresh-1"}, exchange.refresh)

	var refreshed atomic.Int32
	guard.OnRefresh = func(Credential) { refreshed.Add(1) }

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := guard.Refresh(context.Background(), "old")
			assert.NoError(t, err)
			tokens[i] = cred.AccessToken
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, exchange.calls.Load())
	assert.EqualValues(t, 1, refreshed.Load())
	for _, token := range tokens {
		assert.Equal(t, "new", token)
	}
}

func TestTokenGuardKeepsRefreshTokenWhenNoneReturned(t *testing.T) {
	exchange := &countingExchange{next: Credential{AccessToken: "new", ExpiresIn: 60}}
	guard := NewTokenGuard(Credential{AccessToken: "old", RefreshToken: "refresh-1"}, exchange.refresh)

	cred, err := guard.Refresh(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.Equal(t, cred, guard.Credential())
}

func TestTokenGuardWithoutExchange(t *testing.T) {
	guard := NewTokenGuard(Credential{AccessToken: "old"}, nil)
	_, err := guard.Refresh(context.Background(), "old")
	assert.True(t, errors.Is(err, ErrInvalidOAuthToken))
}

func TestCredentialExpiry(t *testing.T) {
	obtained := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cred := Credential{AccessToken: "a", ExpiresIn: 60, ObtainedAt: obtained}

	assert.Equal(t, obtained.Add(time.Minute), cred.ExpiresAt())
	assert.False(t, cred.Expired(obtained.Add(59*time.Second)))
	assert.True(t, cred.Expired(obtained.Add(time.Minute)))
	assert.False(t, Credential{AccessToken: "a"}.Expired(obtained), "no expiry means never expired")
	assert.True(t, Credential{}.IsZero())
}
