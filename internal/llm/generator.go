// Package llm invokes the text generation backends.
package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/v8-integration-agent/automation/internal/config"
)

// Generator turns a composed prompt into generated text. One call is one
// backend request: no retry, no caching, no streaming.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// BackendError reports a failed generation call. Status is the HTTP status
// when the backend answered, 0 for transport failures and timeouts.
type BackendError struct {
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend error (%d %s): %s", e.Status, http.StatusText(e.Status), e.Message)
	}
	return "backend error: " + e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// New creates the Generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.Config) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaHost, cfg.Model, cfg.Timeout)
	case config.ProviderGroq, config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderBedrock:
		return NewLangChainClient(ctx, cfg)
	case config.ProviderMock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
