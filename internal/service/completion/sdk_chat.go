package completion

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

// Sampling parameters sent with every SDK request.
var (
	sdkTemperature float32 = 0.7
	sdkTopP        float32 = 0.9
)

// ModelFactory builds the chat model behind an SDK backend.
type ModelFactory func(ctx context.Context, profile backend.Profile) (model.BaseChatModel, error)

// NewArkChatModel creates a Volcengine Ark chat model from a profile.
func NewArkChatModel(ctx context.Context, profile backend.Profile) (model.BaseChatModel, error) {
	if !profile.HasCredential() {
		return nil, fmt.Errorf("%w: provide ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY", ErrMissingCredential)
	}
	if profile.Model == "" {
		return nil, fmt.Errorf("%w: set ARK_MODEL", ErrMissingModel)
	}

	temperature := sdkTemperature
	topP := sdkTopP
	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     profile.BaseURL,
		Region:      profile.Region,
		APIKey:      profile.APIKey,
		AccessKey:   profile.AccessKey,
		SecretKey:   profile.SecretKey,
		Model:       profile.Model,
		Temperature: &temperature,
		TopP:        &topP,
	})
}

// SDKChatBackend runs a prompt template plus chat model chain through eino.
// The chain is compiled on first use so that a bad credential surfaces as a
// configuration failure on the first turn instead of at startup.
type SDKChatBackend struct {
	profile backend.Profile
	factory ModelFactory

	mu       sync.Mutex
	runnable compose.Runnable[map[string]any, *schema.Message]
}

// NewSDKChatBackend returns a lazily initialized SDK backend. A nil factory means Ark.
func NewSDKChatBackend(profile backend.Profile, factory ModelFactory) *SDKChatBackend {
	if factory == nil {
		factory = NewArkChatModel
	}
	return &SDKChatBackend{profile: profile, factory: factory}
}

// Name returns the profile display name.
func (b *SDKChatBackend) Name() string {
	return b.profile.Name
}

func (b *SDKChatBackend) chain(ctx context.Context) (compose.Runnable[map[string]any, *schema.Message], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.runnable != nil {
		return b.runnable, nil
	}

	chatModel, err := b.factory(ctx, b.profile)
	if err != nil {
		return nil, configurationFailure(b.Name(), fmt.Errorf("create chat model: %w", err))
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, configurationFailure(b.Name(), fmt.Errorf("compile chat chain: %w", err))
	}

	b.runnable = runnable
	log.Printf("[completion] %s chain ready (model=%s)", b.profile.ID, b.profile.Model)
	return runnable, nil
}

// Complete runs the chain with the system prompt and transcript.
func (b *SDKChatBackend) Complete(ctx context.Context, systemPrompt string, history []chat.Message) (string, error) {
	messages := withSystem(systemPrompt, history)
	return observe(ctx, b.profile.ID, b.profile.Model, len(messages), func(ctx context.Context) (string, error) {
		runnable, err := b.chain(ctx)
		if err != nil {
			return "", err
		}

		input := map[string]any{
			"system":  messages[0].Content,
			"history": toSchemaMessages(messages[1:]),
		}

		reply, err := runnable.Invoke(ctx, input)
		if err != nil {
			return "", callFailure(b.Name(), fmt.Errorf("run chat chain: %w", err))
		}
		if reply == nil {
			return "", callFailure(b.Name(), fmt.Errorf("%w: nil message", ErrMalformedResponse))
		}

		log.Printf("[completion] %s replied, length=%d", b.profile.ID, len(reply.Content))
		return reply.Content, nil
	})
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}
