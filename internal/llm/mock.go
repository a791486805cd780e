package llm

import (
	"context"
	"fmt"
	"hash/fnv"
)

// MockClient returns deterministic text without any network access.
// Selected with provider "mock" for dry runs.
type MockClient struct{}

var _ Generator = (*MockClient)(nil)

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Model returns "mock".
func (m *MockClient) Model() string {
	return "mock"
}

// Generate returns a stable digest of prompt.
func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &BackendError{Message: err.Error(), Err: err}
	}

	h := fnv.New32a()
	h.Write([]byte(prompt))
	return fmt.Sprintf("# mock output %08x (%d prompt bytes)\n", h.Sum32(), len(prompt)), nil
}
