package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/v8-integration-agent/automation/internal/config"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// LangChainClient generates text with a hosted provider through langchaingo.
type LangChainClient struct {
	llm       llms.Model
	modelName string
	timeout   time.Duration
}

var _ Generator = (*LangChainClient)(nil)

// NewLangChainClient creates a client for groq, openai, anthropic or bedrock.
func NewLangChainClient(ctx context.Context, cfg config.Config) (*LangChainClient, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case config.ProviderGroq:
		if cfg.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.GroqAPIKey),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(GroqBaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create groq model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return newLangChainClient(model, cfg.Model, cfg.Timeout), nil
}

func newLangChainClient(model llms.Model, name string, timeout time.Duration) *LangChainClient {
	return &LangChainClient{llm: model, modelName: name, timeout: timeout}
}

// Model returns the configured model id.
func (c *LangChainClient) Model() string {
	return c.modelName
}

// Generate sends prompt as a single user message and returns the full reply.
func (c *LangChainClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	response, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &BackendError{Message: fmt.Sprintf("timed out after %s", c.timeout), Err: err}
		}
		return "", &BackendError{Status: statusFromError(err), Message: err.Error(), Err: err}
	}
	if strings.TrimSpace(response) == "" {
		return "", &BackendError{Message: "empty response from model " + c.modelName}
	}
	return response, nil
}

// statusPattern only matches a code right after "status", "status code" or
// "http" so ports such as the :443 of a dial error are not taken for one.
var statusPattern = regexp.MustCompile(`\b(?:status code|status|http)[\s:]*([45]\d\d)\b`)

// statusFromError recovers the HTTP status from a provider error message.
// langchaingo providers only expose it as text.
func statusFromError(err error) int {
	if err == nil {
		return 0
	}
	msg := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	switch {
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"):
		return 401
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota exceeded"):
		return 429
	}
	return 0
}
