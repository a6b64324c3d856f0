// Package analysis is the privileged operation behind the gate: it formats the
// selected conversation and asks the language model to analyze it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
	"github.com/tjfontaine/sidebar-gate/internal/tokens"
)

// ErrNoConversation is returned when the request names no loadable conversation.
var ErrNoConversation = errors.New("no conversation to analyze")

// Guard runs fn only when access is allowed.
type Guard interface {
	Guard(ctx context.Context, sel *domain.SelectionContext, fn func(ctx context.Context) error) error
}

// ConversationSource loads a conversation and its messages from the host.
type ConversationSource interface {
	ports.ConversationFetcher
	ConversationMessages(ctx context.Context, conv domain.Conversation) ([]domain.Message, error)
}

// Request asks for the analysis of one conversation.
type Request struct {
	Selection      *domain.SelectionContext `json:"selection,omitempty"`
	ConversationID string                   `json:"conversation_id,omitempty"`
	// Text replaces the conversation's messages as the analyzed content. The
	// conversation is still required: it determines the tenant.
	Text   string `json:"text,omitempty"`
	Preset string `json:"preset,omitempty"`
}

// Result is the model's analysis.
type Result struct {
	Preset      string `json:"preset"`
	Model       string `json:"model"`
	Content     string `json:"content"`
	InputTokens int    `json:"input_tokens"`
	TotalTokens int    `json:"total_tokens"`
	Truncated   bool   `json:"truncated"`
}

// Service runs analyses.
type Service struct {
	guard          Guard
	source         ConversationSource
	completer      ports.Completer
	counter        *tokens.Counter
	model          string
	maxInputTokens int
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxInputTokens bounds the conversation text sent to the model.
func WithMaxInputTokens(n int) Option {
	return func(s *Service) {
		s.maxInputTokens = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates an analysis service. Every analysis passes through guard
// before any host lookup or model call.
func NewService(guard Guard, source ConversationSource, completer ports.Completer, opts ...Option) (*Service, error) {
	if guard == nil {
		return nil, fmt.Errorf("access guard required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer required")
	}
	s := &Service{
		guard:          guard,
		source:         source,
		completer:      completer,
		counter:        tokens.NewCounter(),
		model:          "gpt-4o-mini",
		maxInputTokens: 6000,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Analyze validates access, then loads, formats and analyzes the conversation.
// The gate sees a selection naming only the conversation being analyzed, so the
// tenant is checked against the host's record of that conversation. A tenant
// sent with the request must agree with it.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	preset, err := LookupPreset(req.Preset)
	if err != nil {
		return nil, err
	}

	id := req.conversationID()
	if id == "" {
		return nil, ErrNoConversation
	}
	sel := &domain.SelectionContext{ConversationIDs: []string{id}}
	if req.Selection != nil {
		sel.Tenant = req.Selection.Tenant
	}

	var result *Result
	err = s.guard.Guard(ctx, sel, func(ctx context.Context) error {
		text, err := s.conversationText(ctx, id, req.Text)
		if err != nil {
			return err
		}

		text, truncated, err := s.counter.Truncate(s.model, text, s.maxInputTokens)
		if err != nil {
			return fmt.Errorf("apply token budget: %w", err)
		}
		inputTokens, err := s.counter.CountText(s.model, text)
		if err != nil {
			return fmt.Errorf("count tokens: %w", err)
		}

		completion, err := s.completer.Complete(ctx, ports.CompletionRequest{
			Model:        s.model,
			SystemPrompt: preset.SystemPrompt,
			UserPrompt:   "Analyze this email conversation:\n\n" + text,
			MaxTokens:    preset.MaxTokens,
			Temperature:  preset.Temperature,
		})
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		content := completion.Content
		if content == "" {
			content = "No analysis available"
		}
		result = &Result{
			Preset:      preset.Name,
			Model:       completion.Model,
			Content:     content,
			InputTokens: inputTokens,
			TotalTokens: completion.TotalTokens,
			Truncated:   truncated,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("analysis completed",
		slog.String("preset", result.Preset),
		slog.Int("input_tokens", result.InputTokens),
		slog.Bool("truncated", result.Truncated))
	return result, nil
}

func (r Request) conversationID() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	if r.Selection != nil && len(r.Selection.ConversationIDs) > 0 {
		return r.Selection.ConversationIDs[0]
	}
	return ""
}

// conversationText returns text when set, otherwise the formatted messages of
// the conversation.
func (s *Service) conversationText(ctx context.Context, id, text string) (string, error) {
	if text != "" {
		return text, nil
	}
	if s.source == nil {
		return "", ErrNoConversation
	}

	convs, err := s.source.FetchConversations(ctx, []string{id})
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}
	if len(convs) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoConversation, id)
	}

	messages, err := s.source.ConversationMessages(ctx, convs[0])
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}
	return FormatConversation(messages), nil
}
