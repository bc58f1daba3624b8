package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// TokenResponse is the body of a successful token grant.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	ExpiresIn    int      `json:"expires_in"`
	TokenType    string   `json:"token_type"`
	Scope        []string `json:"scope,omitempty"`
}

func (t TokenResponse) Credential(obtainedAt time.Time) Credential {
	return Credential{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    t.ExpiresIn,
		ObtainedAt:   obtainedAt,
	}
}

// ParseTokenResponse turns a token grant body into a Credential.
func ParseTokenResponse(body []byte) (Credential, error) {
	var response TokenResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Credential{}, newError(ErrAuthorisation, err, goerrors.CategoryExternal, TextCodeAuthorisation,
			"malformed token response")
	}
	if response.AccessToken == "" {
		return Credential{}, newError(ErrAuthorisation, nil, goerrors.CategoryExternal, TextCodeAuthorisation,
			"token response has no access token")
	}
	return response.Credential(time.Now().UTC()), nil
}

// OAuthClient talks to the vendor identity endpoints: authorization-code and
// refresh-token grants plus token validation.
type OAuthClient struct {
	clientID     string
	clientSecret string
	redirectURL  string

	baseURL  string
	executor Executor
	logger   glog.Logger
}

func NewOAuthClient(clientID, clientSecret, redirectURL string, opts ...Option) *OAuthClient {
	o := resolveOptions(opts)
	return &OAuthClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		baseURL:      o.authBaseURL,
		executor:     NewRequestExecutor(opts...),
		logger:       o.logger,
	}
}

// NewState returns a random value for the authorize URL state parameter.
func (c *OAuthClient) NewState() (string, error) {
	return newState()
}

// AuthorizeURL is the page the user visits to grant the scopes subs require.
func (c *OAuthClient) AuthorizeURL(state string, subs ...Subscription) string {
	query := NewQuery().
		Add("response_type", "code").
		Add("client_id", c.clientID).
		Add("redirect_uri", c.redirectURL).
		Add("scope", strings.ReplaceAll(Scopes(subs...), "+", " "))
	if state != "" {
		query.Add("state", state)
	}
	return query.URL(c.baseURL + "/authorize")
}

// ParseAuthorizationRedirect extracts the authorization code from the
// redirect target, given either as a full URL or as its raw query.
func ParseAuthorizationRedirect(redirect string) (code, state string, err error) {
	raw := strings.TrimSpace(redirect)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	values, parseErr := url.ParseQuery(raw)
	if parseErr != nil {
		return "", "", newError(ErrUnhandled, parseErr, goerrors.CategoryBadInput, TextCodeUnhandled,
			"malformed authorization redirect")
	}
	if values.Has("error") {
		return "", "", newError(ErrUnhandled, nil, goerrors.CategoryAuth, TextCodeUnhandled,
			"authorization denied: "+values.Get("error")).
			WithMetadata(map[string]any{"error_description": values.Get("error_description")})
	}
	code = values.Get("code")
	if code == "" {
		return "", "", newError(ErrUnhandled, nil, goerrors.CategoryBadInput, TextCodeUnhandled,
			"authorization redirect has no code")
	}
	return code, values.Get("state"), nil
}

// ExchangeCode runs the authorization-code grant.
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (Credential, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.redirectURL)
	return c.grant(ctx, form)
}

// RefreshCredential runs the refresh-token grant. It satisfies RefreshFunc.
func (c *OAuthClient) RefreshCredential(ctx context.Context, current Credential) (Credential, error) {
	if current.RefreshToken == "" {
		return Credential{}, newError(ErrInvalidOAuthToken, nil, goerrors.CategoryAuth, TextCodeInvalidOAuthToken,
			"credential has no refresh token")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", current.RefreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	c.logger.Info("exchanging refresh token")
	return c.grant(ctx, form)
}

func (c *OAuthClient) grant(ctx context.Context, form url.Values) (Credential, error) {
	req := NewRequest(http.MethodPost, c.baseURL+"/token", WithForm(form))
	body, err := c.executor.Execute(ctx, req)
	if err != nil {
		return Credential{}, err
	}
	return ParseTokenResponse(body)
}

// Validate introspects token. Validation uses the OAuth authorization scheme.
// A token the endpoint rejects is reported as a Validation whose IsError is
// true rather than as an error.
func (c *OAuthClient) Validate(ctx context.Context, token string) (Validation, error) {
	req := NewRequest(http.MethodGet, c.baseURL+"/validate", WithAuth(AuthOAuth, token))
	body, err := c.executor.Execute(ctx, req)
	if err != nil {
		if rejected, ok := rejectedValidation(err); ok {
			return rejected, nil
		}
		return Validation{}, err
	}
	validation, err := ParseValidation(body)
	if err != nil {
		return Validation{}, newError(ErrAuthorisation, err, goerrors.CategoryExternal, TextCodeAuthorisation,
			"malformed validation response")
	}
	return validation, nil
}

func rejectedValidation(err error) (Validation, bool) {
	var statusErr *StatusError
	if !errors.Is(err, ErrTokenRequiresRefreshing) || !errors.As(err, &statusErr) {
		return Validation{}, false
	}
	validation, parseErr := ParseValidation(statusErr.Body)
	if parseErr != nil || !validation.IsError() {
		return Validation{}, false
	}
	return validation, true
}
