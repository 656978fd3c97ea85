package completion

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

type fakeChatModel struct {
	mu    sync.Mutex
	input []*schema.Message
	reply string
	err   error
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func sdkProfile() backend.Profile {
	return backend.Profile{ID: "ark", Name: "Ark", Kind: backend.KindSDKChat, Model: "doubao", APIKey: "k"}
}

func TestSDKChatBackendPrependsSystem(t *testing.T) {
	assert := require.New(t)

	fake := &fakeChatModel{reply: "pong"}
	b := NewSDKChatBackend(sdkProfile(), func(context.Context, backend.Profile) (model.BaseChatModel, error) {
		return fake, nil
	})

	history := []chat.Message{chat.UserMessage("ping"), chat.AssistantMessage("pong"), chat.UserMessage("again")}
	reply, err := b.Complete(context.Background(), "You're a helpful AI assistant.", history)
	assert.NoError(err)
	assert.Equal("pong", reply)

	assert.Len(fake.input, 4)
	assert.Equal(schema.System, fake.input[0].Role)
	assert.Equal("You're a helpful AI assistant.", fake.input[0].Content)
	assert.Equal(schema.User, fake.input[1].Role)
	assert.Equal(schema.Assistant, fake.input[2].Role)
	assert.Equal("again", fake.input[3].Content)
}

func TestSDKChatBackendConfigurationFailureIsRetried(t *testing.T) {
	assert := require.New(t)

	calls := 0
	fake := &fakeChatModel{reply: "ok"}
	b := NewSDKChatBackend(sdkProfile(), func(context.Context, backend.Profile) (model.BaseChatModel, error) {
		calls++
		if calls == 1 {
			return nil, ErrMissingCredential
		}
		return fake, nil
	})

	_, err := b.Complete(context.Background(), "sys", []chat.Message{chat.UserMessage("q")})
	var failure *Failure
	assert.True(errors.As(err, &failure))
	assert.Equal(KindConfiguration, failure.Kind)
	assert.ErrorIs(err, ErrMissingCredential)

	reply, err := b.Complete(context.Background(), "sys", []chat.Message{chat.UserMessage("q")})
	assert.NoError(err)
	assert.Equal("ok", reply)

	_, _ = b.Complete(context.Background(), "sys", []chat.Message{chat.UserMessage("q")})
	assert.Equal(2, calls, "a built chain is cached")
}

func TestSDKChatBackendCallFailure(t *testing.T) {
	assert := require.New(t)

	fake := &fakeChatModel{err: errors.New("upstream 500")}
	b := NewSDKChatBackend(sdkProfile(), func(context.Context, backend.Profile) (model.BaseChatModel, error) {
		return fake, nil
	})

	_, err := b.Complete(context.Background(), "sys", []chat.Message{chat.UserMessage("q")})
	var failure *Failure
	assert.True(errors.As(err, &failure))
	assert.Equal(KindCall, failure.Kind)
	assert.Contains(err.Error(), "upstream 500")
}

func TestArkModelRequiresCredential(t *testing.T) {
	assert := require.New(t)

	profile := sdkProfile()
	profile.APIKey = ""
	_, err := NewArkChatModel(context.Background(), profile)
	assert.ErrorIs(err, ErrMissingCredential)

	profile = sdkProfile()
	profile.Model = ""
	_, err = NewArkChatModel(context.Background(), profile)
	assert.ErrorIs(err, ErrMissingModel)
}

func TestRegistryBuildsBackends(t *testing.T) {
	assert := require.New(t)

	store := backend.NewMemoryStore([]backend.Profile{rawProfile("http://x"), sdkProfile()}, "")
	reg, err := NewRegistry(store, nil)
	assert.NoError(err)

	b, err := reg.Get("openai")
	assert.NoError(err)
	assert.IsType(&RawHTTPBackend{}, b)

	b, err = reg.Get("ark")
	assert.NoError(err)
	assert.IsType(&SDKChatBackend{}, b)

	_, err = reg.Get("missing")
	assert.ErrorIs(err, ErrBackendNotFound)

	_, err = NewRegistry(backend.NewMemoryStore([]backend.Profile{{ID: "asr", Kind: backend.KindSDKTranscribe}}, ""), nil)
	assert.Error(err)
}
