package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaClient generates text with a local or remote Ollama server.
type OllamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

var _ Generator = (*OllamaClient)(nil)

// NewOllamaClient creates a client for host. timeout bounds every call.
func NewOllamaClient(host, model string, timeout time.Duration) (*OllamaClient, error) {
	base, err := url.Parse(host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", host)
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: statusTransport{base: http.DefaultTransport},
	}
	return &OllamaClient{
		client:  api.NewClient(base, httpClient),
		model:   model,
		timeout: timeout,
	}, nil
}

// Model returns the configured model id.
func (c *OllamaClient) Model() string {
	return c.model
}

// Generate requests a complete, non-streamed response for prompt.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var status int
	ctx = context.WithValue(ctx, statusKey{}, &status)

	stream := false
	req := &api.GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: &stream,
	}

	var out strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", c.wrapError(err, status)
	}

	if strings.TrimSpace(out.String()) == "" {
		return "", &BackendError{Message: "empty response from model " + c.model}
	}
	return out.String(), nil
}

// wrapError converts a client error. status is the HTTP status the server
// answered with, 0 when no response arrived. The api package only returns a
// StatusError for bodies without an "error" field, so status is the fallback.
func (c *OllamaClient) wrapError(err error, status int) error {
	var statusErr api.StatusError
	switch {
	case errors.As(err, &statusErr):
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		return &BackendError{Status: statusErr.StatusCode, Message: msg, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &BackendError{Message: fmt.Sprintf("timed out after %s", c.timeout), Err: err}
	case status >= http.StatusBadRequest:
		return &BackendError{Status: status, Message: err.Error(), Err: err}
	default:
		return &BackendError{Message: err.Error(), Err: err}
	}
}

type statusKey struct{}

// statusTransport stores the response status in the *int carried by the
// request context under statusKey.
type statusTransport struct {
	base http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		if p, ok := req.Context().Value(statusKey{}).(*int); ok {
			*p = resp.StatusCode
		}
	}
	return resp, err
}
