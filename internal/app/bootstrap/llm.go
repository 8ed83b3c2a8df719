package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/antonbillionaire/staffix/internal/config"
	"github.com/antonbillionaire/staffix/internal/conversation"
	"github.com/antonbillionaire/staffix/pkg/logging"
)

const (
	providerBedrock = "bedrock"
	providerOpenAI  = "openai"
)

// BuildLLMClient wires the primary model provider and, when configured, a
// fallback provider behind it. The label names the primary model for metrics.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.LLMClient, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, label, err := buildProvider(ctx, cfg, cfg.LLMProvider)
	if err != nil {
		return nil, "", err
	}
	fallbackName := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackName == "" || fallbackName == cfg.LLMProvider {
		logger.Info("llm client ready", "provider", cfg.LLMProvider, "model", label)
		return primary, label, nil
	}
	fallback, fallbackLabel, err := buildProvider(ctx, cfg, fallbackName)
	if err != nil {
		logger.Warn("llm fallback disabled", "provider", fallbackName, "error", err)
		return primary, label, nil
	}
	logger.Info("llm client ready", "provider", cfg.LLMProvider, "model", label, "fallback", fallbackName, "fallback_model", fallbackLabel)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), label, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, name string) (conversation.LLMClient, string, error) {
	switch name {
	case providerBedrock, "":
		model := strings.TrimSpace(cfg.BedrockModelID)
		if model == "" {
			return nil, "", fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is required for bedrock")
		}
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), model), model, nil
	case providerOpenAI:
		key := strings.TrimSpace(cfg.OpenAIAPIKey)
		if key == "" {
			return nil, "", fmt.Errorf("bootstrap: OPENAI_API_KEY is required for openai")
		}
		model := strings.TrimSpace(cfg.OpenAIModel)
		if model == "" {
			model = openai.GPT4oMini
		}
		return conversation.NewOpenAILLMClient(openai.NewClient(key), model), model, nil
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}
