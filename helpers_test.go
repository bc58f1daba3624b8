package eventsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
)

type recordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// scriptedDoer answers requests from a fixed list of responses, repeating the
// last one once the list is exhausted, and records every request it sees.
type scriptedDoer struct {
	mu        sync.Mutex
	responses []func(*http.Request) (*http.Response, error)
	requests  []recordedRequest
}

func newScriptedDoer(responses ...func(*http.Request) (*http.Response, error)) *scriptedDoer {
	return &scriptedDoer{responses: responses}
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		body = string(data)
	}

	d.mu.Lock()
	index := len(d.requests)
	d.requests = append(d.requests, recordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   body,
	})
	if len(d.responses) == 0 {
		d.mu.Unlock()
		return nil, errors.New("no scripted response")
	}
	if index >= len(d.responses) {
		index = len(d.responses) - 1
	}
	respond := d.responses[index]
	d.mu.Unlock()

	return respond(req)
}

func (d *scriptedDoer) Requests() []recordedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]recordedRequest(nil), d.requests...)
}

func respond(status int, body string) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
			Header:     http.Header{"Content-Type": {ContentTypeJSON}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    req,
		}, nil
	}
}

func failTransport(err error) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return nil, err
	}
}

const unauthorizedBody = `{"status":401,"message":"Invalid OAuth token"}`

var _ glog.Logger = (*captureLogger)(nil)

type logCall struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, msg: msg, args: append([]any(nil), args...)})
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }

func (l *captureLogger) WithContext(context.Context) glog.Logger { return l }

func (l *captureLogger) at(level string) []logCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logCall
	for _, call := range l.calls {
		if call.level == level {
			out = append(out, call)
		}
	}
	return out
}
