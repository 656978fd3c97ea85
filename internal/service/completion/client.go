// Package completion sends a conversation to a hosted chat model and returns its reply.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/zhouzirui/chatdesk/backend/internal/metrics"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

// Kind classifies a backend failure.
type Kind string

const (
	// KindConfiguration means the credential is missing or rejected before any call is made.
	KindConfiguration Kind = "configuration"
	// KindCall covers network errors, timeouts, non-2xx statuses and malformed bodies.
	KindCall Kind = "call"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrMissingModel      = errors.New("missing model identifier")
	ErrMalformedResponse = errors.New("malformed response")
)

// Failure is the only error type returned by Backend.Complete.
type Failure struct {
	Kind    Kind
	Backend string
	Err     error
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func configurationFailure(backend string, err error) *Failure {
	return &Failure{Kind: KindConfiguration, Backend: backend, Err: err}
}

func callFailure(backend string, err error) *Failure {
	return &Failure{Kind: KindCall, Backend: backend, Err: err}
}

// Backend produces the next assistant reply for a transcript.
type Backend interface {
	// Name is the human readable label used in error messages.
	Name() string
	// Complete prepends systemPrompt to history and asks the model for a reply.
	Complete(ctx context.Context, systemPrompt string, history []chat.Message) (string, error)
}

// withSystem returns history with exactly one leading system message.
func withSystem(systemPrompt string, history []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(history)+1)
	out = append(out, chat.Message{Role: chat.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		if m.Role == chat.RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

var tracer = otel.Tracer("github.com/zhouzirui/chatdesk/backend/internal/service/completion")

// observe wraps a backend call in a span and records latency and failures.
func observe(ctx context.Context, id, modelName string, turns int, call func(context.Context) (string, error)) (string, error) {
	ctx, span := tracer.Start(ctx, "completion.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("backend.id", id),
		attribute.String("backend.model", modelName),
		attribute.Int("conversation.turns", turns),
	)

	started := time.Now()
	reply, err := call(ctx)
	metrics.CompletionQueryTime.WithLabelValues(id).Observe(time.Since(started).Seconds())

	if err != nil {
		kind := KindCall
		var failure *Failure
		if errors.As(err, &failure) {
			kind = failure.Kind
		}
		metrics.CompletionErrors.WithLabelValues(id, string(kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%s failure", kind))
		return "", err
	}

	span.SetAttributes(attribute.Int("reply.length", len(reply)))
	return reply, nil
}
