package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
)

// Handler answers one request given the prior conversation. It is
// satisfied by *router.Router.
type Handler interface {
	Handle(ctx context.Context, text string, history ...llm.Message) (*model.ConversationTurn, error)
}

// DefaultHistoryBytes is the history size above which older messages are
// compressed.
const DefaultHistoryBytes = 64 * 1024

// Session is a multi-turn conversation with the router. Only the user
// requests and final answers are carried between turns; tool traffic stays
// inside its turn.
type Session struct {
	handler    Handler
	summarizer llm.Client
	storage    adapter.Storage
	maxBytes   int

	id      string
	history []llm.Message
}

type Option func(*Session)

// WithSummarizer compresses old history into a summary produced by client.
// Without it the oldest messages are dropped.
func WithSummarizer(client llm.Client) Option {
	return func(s *Session) { s.summarizer = client }
}

// WithStorage persists the history after every turn.
func WithStorage(storage adapter.Storage) Option {
	return func(s *Session) { s.storage = storage }
}

func WithHistoryBytes(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func New(handler Handler, opts ...Option) *Session {
	s := &Session{
		handler:  handler,
		maxBytes: DefaultHistoryBytes,
		id:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resume continues a stored conversation.
func Resume(ctx context.Context, handler Handler, storage adapter.Storage, id string, opts ...Option) (*Session, error) {
	history, err := loadHistory(ctx, storage, id)
	if err != nil {
		return nil, err
	}

	s := New(handler, append(opts, WithStorage(storage))...)
	s.id = id
	s.history = history
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// History returns a copy of the carried messages.
func (s *Session) History() []llm.Message {
	return append([]llm.Message(nil), s.history...)
}

func (s *Session) Reset() {
	s.history = nil
}

// Send handles one user message. A failed turn leaves the history as it
// was.
func (s *Session) Send(ctx context.Context, text string) (*model.ConversationTurn, error) {
	text = strings.TrimSpace(text)
	ctx = logging.Attach(ctx, "session_id", s.id)

	turn, err := s.handler.Handle(ctx, text, s.history...)
	if err != nil {
		return turn, err
	}

	s.history = append(s.history, llm.UserMessage(text), llm.AssistantMessage(turn.Answer))

	if historySize(s.history) > s.maxBytes {
		compressed, err := s.compress(ctx, s.history)
		if err != nil {
			logging.From(ctx).Warn("failed to compress history", logging.ErrAttr(err))
		} else {
			s.history = compressed
		}
	}

	if s.storage != nil {
		if err := saveHistory(ctx, s.storage, s.id, s.history); err != nil {
			return turn, goerr.Wrap(err, "failed to save history", goerr.V("session_id", s.id))
		}
	}
	return turn, nil
}
