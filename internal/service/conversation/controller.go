// Package conversation drives one chat session through its Idle and
// AwaitingReply states.
package conversation

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/zhouzirui/chatdesk/backend/internal/metrics"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/completion"
	"github.com/zhouzirui/chatdesk/backend/internal/service/extract"
	"github.com/zhouzirui/chatdesk/backend/internal/service/speech"
)

// State is the controller's position in a turn.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingReply State = "awaiting_reply"
)

var (
	// ErrEmptyTurn means the submission carried no usable text.
	ErrEmptyTurn = errors.New("nothing to submit")
	// ErrBusy means a turn is in flight or queued.
	ErrBusy = errors.New("session is busy")
)

// Transcriber converts audio to text, returning a failure sentinel instead of an error.
type Transcriber interface {
	Transcribe(ctx context.Context, audio chat.AudioInput) string
}

// Snapshot is what a renderer needs to redraw a session.
type Snapshot struct {
	SessionID string         `json:"sessionId"`
	State     State          `json:"state"`
	Messages  []chat.Message `json:"messages"`
}

// Notifier receives a snapshot after every state transition.
type Notifier interface {
	Notify(snapshot Snapshot)
}

// Outcome reports what one submission produced.
type Outcome struct {
	User       chat.Message   `json:"user"`
	Reply      chat.Message   `json:"reply"`
	Failed     bool           `json:"failed"`
	Transcript string         `json:"transcript,omitempty"`
	Attachment *extract.Image `json:"attachment,omitempty"`
}

// Options wires a controller to its collaborators.
type Options struct {
	SessionID    string
	Store        *chatservice.Store
	Backend      completion.Backend
	SystemPrompt string
	Transcriber  Transcriber
	Notifier     Notifier
}

// Controller serializes the turns of a single session.
//
// Submissions are admitted in FIFO order through a ticket counter: a second
// Submit made while the first one is in flight waits for it to finish.
type Controller struct {
	opts Options

	mu         sync.Mutex
	cond       *sync.Cond
	nextTicket uint64
	serving    uint64
	state      State
}

// NewController creates an Idle controller.
func NewController(opts Options) *Controller {
	c := &Controller{opts: opts, state: StateIdle}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SessionID returns the session this controller owns.
func (c *Controller) SessionID() string {
	return c.opts.SessionID
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is running or queued.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextTicket != c.serving
}

// Messages returns the session transcript in order.
func (c *Controller) Messages() []chat.Message {
	return c.opts.Store.All()
}

// Snapshot captures state and transcript together.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{SessionID: c.opts.SessionID, State: c.State(), Messages: c.Messages()}
}

func (c *Controller) acquire() {
	c.mu.Lock()
	ticket := c.nextTicket
	c.nextTicket++
	for c.serving != ticket {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

func (c *Controller) release() {
	c.mu.Lock()
	c.serving++
	c.state = StateIdle
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(c.Snapshot())
	}
}

// Submit runs one turn. It returns ErrEmptyTurn, leaving the transcript untouched,
// when neither typed text nor a successful transcription is available.
// Backend failures do not surface as errors: they become the assistant reply.
func (c *Controller) Submit(ctx context.Context, in chat.TurnInput) (Outcome, error) {
	c.acquire()
	defer c.release()

	var outcome Outcome
	text := in.Text

	// Typed text wins over voice.
	if strings.TrimSpace(text) == "" && in.Audio != nil && c.opts.Transcriber != nil {
		transcript := c.opts.Transcriber.Transcribe(ctx, *in.Audio)
		outcome.Transcript = transcript
		if speech.IsTranscriptionFailure(transcript) {
			log.Printf("[conversation] session=%s transcription failed: %s", c.opts.SessionID, transcript)
		} else {
			text = transcript
		}
	}

	var fileName, fileText string
	if in.File != nil {
		res := extract.Extract(*in.File)
		metrics.Extractions.WithLabelValues(extract.MediaType(in.File.ContentType, in.File.Data), strconv.FormatBool(res.Applicable)).Inc()
		outcome.Attachment = res.Image
		if res.Applicable {
			fileName, fileText = in.File.Name, res.Text
		}
	}

	if strings.TrimSpace(text) == "" {
		metrics.Turns.WithLabelValues("noop").Inc()
		return outcome, ErrEmptyTurn
	}

	outcome.User = chat.UserMessage(composeUserContent(text, fileName, fileText))
	c.opts.Store.Append(outcome.User)
	c.setState(StateAwaitingReply)

	reply, err := c.opts.Backend.Complete(ctx, c.opts.SystemPrompt, c.opts.Store.All())
	if err != nil {
		outcome.Failed = true
		reply = FormatBackendError(c.opts.Backend.Name(), err)
		log.Printf("[conversation] session=%s backend failure: %v", c.opts.SessionID, err)
		metrics.Turns.WithLabelValues("error").Inc()
	} else {
		metrics.Turns.WithLabelValues("reply").Inc()
	}

	outcome.Reply = chat.AssistantMessage(reply)
	c.opts.Store.Append(outcome.Reply)

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.notify()

	return outcome, nil
}

// Reset clears the transcript. It is only legal while nothing is running or queued.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.nextTicket != c.serving {
		c.mu.Unlock()
		return ErrBusy
	}
	c.opts.Store.Reset()
	c.state = StateIdle
	c.mu.Unlock()

	c.notify()
	return nil
}
