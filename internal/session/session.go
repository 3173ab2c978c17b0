// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session tracks one agent conversation through its turn loop:
// awaiting_input → classifying_intent → invoking_tool →
// awaiting_tool_result → responding, back to awaiting_input. Abort is
// terminal and reachable from every state; tool results that arrive after
// an abort are discarded.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/brain-engine/internal/capability"
)

type State string

const (
	StateAwaitingInput      State = "awaiting_input"
	StateClassifyingIntent  State = "classifying_intent"
	StateInvokingTool       State = "invoking_tool"
	StateAwaitingToolResult State = "awaiting_tool_result"
	StateResponding         State = "responding"
	StateAborted            State = "aborted"
)

var (
	ErrAborted           = errors.New("session aborted")
	ErrInvalidTransition = errors.New("invalid session transition")
)

// IntentClassifier decides whether a turn writes, searches, or both.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, text string) (capability.Intent, error)
}

// Session is the per-conversation state machine. All methods are safe for
// concurrent use; a tool result and an abort may race, and the abort wins.
type Session struct {
	ConversationID string

	mu     sync.Mutex
	state  State
	intent capability.Intent

	classifier IntentClassifier
	logger     *zap.Logger
}

func newSession(conversationID string, classifier IntentClassifier, logger *zap.Logger) *Session {
	return &Session{
		ConversationID: conversationID,
		state:          StateAwaitingInput,
		classifier:     classifier,
		logger:         logger,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Intent returns the classification of the current turn.
func (s *Session) Intent() capability.Intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAborted {
		return ErrAborted
	}
	if s.state != from {
		return fmt.Errorf("%w: %s -> %s (session is %s)", ErrInvalidTransition, from, to, s.state)
	}
	s.state = to
	return nil
}

// Begin accepts a user turn and moves into intent classification.
func (s *Session) Begin() error {
	return s.transition(StateAwaitingInput, StateClassifyingIntent)
}

// Classify asks the capability what the turn wants and moves on to tool
// invocation. A classification failure returns the session to
// awaiting_input so the turn can be retried.
func (s *Session) Classify(ctx context.Context, text string) (capability.Intent, error) {
	if s.State() != StateClassifyingIntent {
		return "", fmt.Errorf("%w: classify in %s", ErrInvalidTransition, s.State())
	}
	intent, err := s.classifier.ClassifyIntent(ctx, text)
	if err != nil {
		s.mu.Lock()
		if s.state == StateClassifyingIntent {
			s.state = StateAwaitingInput
		}
		s.mu.Unlock()
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAborted {
		return "", ErrAborted
	}
	s.intent = intent
	s.state = StateInvokingTool
	return intent, nil
}

// Invoke marks a tool call as dispatched.
func (s *Session) Invoke() error {
	return s.transition(StateInvokingTool, StateAwaitingToolResult)
}

// Deliver hands a tool result back to the session. It reports false when
// the result must be discarded because the session aborted (or otherwise
// left awaiting_tool_result) while the call was in flight.
func (s *Session) Deliver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingToolResult {
		if s.logger != nil {
			s.logger.Debug("discarding stale tool result",
				zap.String("conversation_id", s.ConversationID),
				zap.String("state", string(s.state)))
		}
		return false
	}
	s.state = StateResponding
	return true
}

// Respond completes the turn and readies the session for the next input.
func (s *Session) Respond() error {
	return s.transition(StateResponding, StateAwaitingInput)
}

// Abort terminates the session from any state.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAborted
}

// Tool executes the classified turn and returns the response text.
type Tool func(ctx context.Context, intent capability.Intent) (string, error)

// RunTurn drives one full conversational turn: classify the input, invoke
// the tool, deliver its result, respond. A result arriving after the
// session aborted is discarded and ErrAborted returned; a tool error
// still completes the turn so the session can take the next input.
func RunTurn(ctx context.Context, s *Session, text string, tool Tool) (string, error) {
	if err := s.Begin(); err != nil {
		return "", err
	}
	intent, err := s.Classify(ctx, text)
	if err != nil {
		return "", err
	}
	if err := s.Invoke(); err != nil {
		return "", err
	}

	out, toolErr := tool(ctx, intent)
	if !s.Deliver() {
		return "", ErrAborted
	}
	if err := s.Respond(); err != nil {
		return "", err
	}
	return out, toolErr
}

// Manager hands out one session per conversation.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	classifier IntentClassifier
	logger     *zap.Logger
}

func NewManager(classifier IntentClassifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		classifier: classifier,
		logger:     logger,
	}
}

// Get returns the session for a conversation, creating it on first use.
func (m *Manager) Get(conversationID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[conversationID]; ok {
		return s
	}
	s := newSession(conversationID, m.classifier, m.logger)
	m.sessions[conversationID] = s
	return s
}

// Abort terminates a conversation's session if it exists.
func (m *Manager) Abort(conversationID string) {
	m.mu.Lock()
	s, ok := m.sessions[conversationID]
	m.mu.Unlock()
	if ok {
		s.Abort()
	}
}

// Evict drops a session; an aborted conversation id can then start fresh.
func (m *Manager) Evict(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, conversationID)
}
