package eventsub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Validation is the vendor's token introspection response, also used as the
// error body of failed Helix calls. A present Status marks an error.
type Validation struct {
	ClientID  string   `json:"client_id,omitempty"`
	Login     string   `json:"login,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	ExpiresIn *int     `json:"expires_in,omitempty"`
	Status    *int     `json:"status,omitempty"`
	Error     string   `json:"error,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func ParseValidation(body []byte) (Validation, error) {
	var validation Validation
	if err := json.Unmarshal(body, &validation); err != nil {
		return Validation{}, err
	}
	return validation, nil
}

func (v Validation) IsError() bool {
	return v.Status != nil
}

// ErrorMessage panics when v is not an error; callers check IsError first.
func (v Validation) ErrorMessage() string {
	if !v.IsError() {
		panic("eventsub: error message requested from a validation that is not an error")
	}
	return fmt.Sprintf("status: %d, message: %s", *v.Status, v.Message)
}

// Executor runs one request and returns the response body.
type Executor interface {
	Execute(ctx context.Context, req *Request) ([]byte, error)
}

// RequestExecutor runs requests over an HTTPDoer and classifies failures:
// a 401 becomes ErrTokenRequiresRefreshing, anything else ErrRequestFailed.
type RequestExecutor struct {
	doer   HTTPDoer
	logger glog.Logger
}

func NewRequestExecutor(opts ...Option) *RequestExecutor {
	o := resolveOptions(opts)
	return &RequestExecutor{
		doer:   o.doer,
		logger: o.logger,
	}
}

func (e *RequestExecutor) Execute(ctx context.Context, req *Request) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	httpReq, err := req.httpRequest(ctx)
	if err != nil {
		return nil, newError(ErrRequestFailed, err, goerrors.CategoryBadInput, TextCodeRequestFailed,
			"build request").WithMetadata(requestMetadata(req))
	}

	e.logger.Debug("executing request", "method", httpReq.Method, "url", req.URL)
	response, err := e.doer.Do(httpReq)
	if err != nil {
		e.logger.Error("request failed", "method", httpReq.Method, "url", req.URL, "error", err)
		return nil, newError(ErrRequestFailed, err, goerrors.CategoryExternal, TextCodeRequestFailed,
			"transport failure").WithMetadata(requestMetadata(req))
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, newError(ErrRequestFailed, err, goerrors.CategoryExternal, TextCodeRequestFailed,
			"read response").WithMetadata(requestMetadata(req))
	}

	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		return body, nil
	}
	return nil, e.classify(req, response.StatusCode, body)
}

func (e *RequestExecutor) classify(req *Request, statusCode int, body []byte) error {
	statusErr := &StatusError{StatusCode: statusCode, Body: body}
	metadata := requestMetadata(req)
	metadata["status"] = statusCode

	message := statusErr.Error()
	authRejected := statusCode == http.StatusUnauthorized
	if validation, err := ParseValidation(body); err == nil && validation.IsError() {
		message = validation.ErrorMessage()
		authRejected = *validation.Status == http.StatusUnauthorized
	}

	if authRejected {
		e.logger.Info("access token rejected", "method", req.Method, "url", req.URL)
		return newError(ErrTokenRequiresRefreshing, statusErr, goerrors.CategoryAuth, TextCodeTokenRefresh, message).
			WithCode(http.StatusUnauthorized).
			WithMetadata(metadata)
	}

	e.logger.Error("request rejected", "method", req.Method, "url", req.URL, "status", statusCode)
	return newError(ErrRequestFailed, statusErr, goerrors.HTTPStatusToCategory(statusCode), TextCodeRequestFailed, message).
		WithCode(statusCode).
		WithMetadata(metadata)
}
