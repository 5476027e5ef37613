package agent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/Iron-Ham/cto/internal/config"
	"github.com/Iron-Ham/cto/internal/errors"
	"github.com/Iron-Ham/cto/internal/logging"
)

// apiMaxTokens bounds a single API response.
const apiMaxTokens = 8192

var apiModels = map[string]anthropic.Model{
	ModelOpus:   anthropic.ModelClaudeOpus4_5_20251101,
	ModelSonnet: anthropic.ModelClaudeSonnet4_5_20250929,
	ModelHaiku:  anthropic.ModelClaudeHaiku4_5_20251001,
}

var bedrockModels = map[anthropic.Model]string{
	anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
	anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
}

// APIExecutor sends the prompt to the Messages API and returns the text of
// the reply. It has no tool access, so it suits planning and review prompts
// rather than tickets that must edit files.
type APIExecutor struct {
	client  anthropic.Client
	bedrock bool
	logger  *logging.Logger
}

// NewAPIExecutor creates an API executor. Without Bedrock the key comes from
// the config or ANTHROPIC_API_KEY. Extra request options are appended last.
func NewAPIExecutor(cfg config.AgentConfig, logger *logging.Logger, extra ...option.RequestOption) (*APIExecutor, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	var opts []option.RequestOption
	if cfg.Bedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, errors.NewAgentError("ANTHROPIC_API_KEY is not set", errors.ErrAgentUnavailable)
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)

	return &APIExecutor{
		client:  anthropic.NewClient(opts...),
		bedrock: cfg.Bedrock,
		logger:  logger,
	}, nil
}

// ResolveModel maps a short model name to the API model id. Unknown names
// are passed through so full ids work too.
func (e *APIExecutor) ResolveModel(name string) anthropic.Model {
	model, ok := apiModels[strings.ToLower(name)]
	if !ok {
		if name == "" {
			model = apiModels[ModelSonnet]
		} else {
			model = anthropic.Model(name)
		}
	}
	if e.bedrock {
		if id, ok := bedrockModels[model]; ok {
			return anthropic.Model(id)
		}
	}
	return model
}

// Invoke sends one user message and concatenates the text blocks of the
// reply.
func (e *APIExecutor) Invoke(ctx context.Context, req Request) (string, error) {
	timeout := req.timeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	model := e.ResolveModel(req.Model)
	e.logger.Debug("calling messages api", "model", string(model), "timeout", timeout.String())

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: apiMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.NewAgentTimeoutError(timeout)
		}
		return "", errors.NewAgentError(fmt.Sprintf("API error: %v", err), errors.ErrAgentFailed)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	e.logger.Debug("messages api replied",
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return sb.String(), nil
}

// NewExecutor builds the executor selected by cfg.Backend.
func NewExecutor(cfg config.AgentConfig, logger *logging.Logger) (Executor, error) {
	switch cfg.Backend {
	case "", "cli":
		return NewCLIExecutor(cfg, logger), nil
	case "api":
		return NewAPIExecutor(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown agent backend %q", cfg.Backend)
	}
}
