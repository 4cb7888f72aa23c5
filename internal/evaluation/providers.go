package evaluation

import (
	"context"
	"fmt"
	"strings"

	"robotbakery/internal/config"

	"github.com/Azure/azure-sdk-for-go/sdk/ai/azopenai"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// githubModelsURL is the OpenAI compatible endpoint of GitHub Models
const githubModelsURL = "https://models.inference.ai.azure.com"

// NewModel creates the narrative model for the configured provider.
// ErrNoModel means no key is configured and narratives stay off.
func NewModel(cfg config.ReportConfig) (llms.Model, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoModel
	}

	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return model, nil
	case config.ProviderGitHub:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = githubModelsURL
		}
		model, err := openai.New(
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(baseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("github models: %w", err)
		}
		return model, nil
	case config.ProviderAzure:
		return newAzureModel(cfg)
	}
	return nil, fmt.Errorf("unknown narrative provider %q", cfg.Provider)
}

// azureModel adapts an Azure OpenAI deployment to llms.Model
type azureModel struct {
	client     *azopenai.Client
	deployment string
}

func newAzureModel(cfg config.ReportConfig) (*azureModel, error) {
	if cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, fmt.Errorf("azure: endpoint and deployment are required")
	}
	client, err := azopenai.NewClientWithKeyCredential(cfg.Endpoint, azcore.NewKeyCredential(cfg.APIKey), nil)
	if err != nil {
		return nil, fmt.Errorf("azure: %w", err)
	}
	return &azureModel{client: client, deployment: cfg.Deployment}, nil
}

// GenerateContent sends the conversation as a single user message
func (m *azureModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	req := azopenai.ChatCompletionsOptions{
		Messages: []azopenai.ChatRequestMessageClassification{
			&azopenai.ChatRequestUserMessage{
				Content: azopenai.NewChatRequestUserMessageContent(flatten(messages)),
			},
		},
		DeploymentName: to.Ptr(m.deployment),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = to.Ptr(int32(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		req.Temperature = to.Ptr(float32(opts.Temperature))
	}

	resp, err := m.client.GetChatCompletions(ctx, req, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return nil, fmt.Errorf("azure: empty response")
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: *resp.Choices[0].Message.Content}},
	}, nil
}

// Call implements llms.Model
func (m *azureModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// flatten joins the text parts of every message, prefixing non-user turns
// with their role
func flatten(messages []llms.MessageContent) string {
	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			text, ok := part.(llms.TextContent)
			if !ok {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			if msg.Role != schema.ChatMessageTypeHuman {
				b.WriteString(string(msg.Role) + ": ")
			}
			b.WriteString(text.Text)
		}
	}
	return b.String()
}
