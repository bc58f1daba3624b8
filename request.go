package eventsub

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type AuthType int

const (
	// Helix API calls.
	AuthBearer AuthType = iota
	// Legacy token validation.
	AuthOAuth
)

func (a AuthType) String() string {
	if a == AuthOAuth {
		return "OAuth"
	}
	return "Bearer"
}

const (
	ContentTypeJSON       = "application/json"
	ContentTypeURLEncoded = "application/x-www-form-urlencoded"
)

// Request is one HTTP call. It carries at most one Authorization and one
// Client-Id value; SetToken swaps the authorization value and nothing else.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string

	authType AuthType
	token    string
	clientID string
}

type RequestOption func(*Request)

func NewRequest(method, rawURL string, opts ...RequestOption) *Request {
	req := &Request{
		Method: method,
		URL:    rawURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(req)
		}
	}
	return req
}

// WithAuth sets the Authorization header value.
func WithAuth(authType AuthType, token string) RequestOption {
	return func(r *Request) {
		r.authType = authType
		r.token = token
	}
}

func WithClientID(clientID string) RequestOption {
	return func(r *Request) {
		r.clientID = clientID
	}
}

// WithFullAuth is Bearer authorization plus Client-Id, as every Helix call needs.
func WithFullAuth(token, clientID string) RequestOption {
	return func(r *Request) {
		WithAuth(AuthBearer, token)(r)
		WithClientID(clientID)(r)
	}
}

// WithJSON attaches an already encoded JSON body.
func WithJSON(body []byte) RequestOption {
	return func(r *Request) {
		r.Body = body
		r.ContentType = ContentTypeJSON
	}
}

func WithForm(values url.Values) RequestOption {
	return func(r *Request) {
		r.Body = []byte(values.Encode())
		r.ContentType = ContentTypeURLEncoded
	}
}

func (r *Request) Token() string {
	return r.token
}

func (r *Request) AuthType() AuthType {
	return r.authType
}

// SetToken replaces the authorization token in place.
func (r *Request) SetToken(token string) {
	r.token = token
}

// Header composes the outgoing headers.
func (r *Request) Header() http.Header {
	header := http.Header{}
	if r.token != "" {
		header.Set("Authorization", r.authType.String()+" "+r.token)
	}
	if r.clientID != "" {
		header.Set("Client-Id", r.clientID)
	}
	if r.ContentType != "" && len(r.Body) > 0 {
		header.Set("Content-Type", r.ContentType)
	}
	return header
}

func (r *Request) httpRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = r.Header()
	httpReq.Header.Set("Accept", ContentTypeJSON)
	return httpReq, nil
}

// Query builds a query string in insertion order.
type Query struct {
	pairs [][2]string
}

func NewQuery() *Query {
	return &Query{}
}

func (q *Query) Add(key, value string) *Query {
	q.pairs = append(q.pairs, [2]string{key, value})
	return q
}

func (q *Query) Encode() string {
	parts := make([]string, 0, len(q.pairs))
	for _, pair := range q.pairs {
		parts = append(parts, url.QueryEscape(pair[0])+"="+url.QueryEscape(pair[1]))
	}
	return strings.Join(parts, "&")
}

// URL appends the query to base with "?" then "&" separators.
func (q *Query) URL(base string) string {
	if len(q.pairs) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}
