// Package chatbot is the public entry for conversation turns: it parses the
// per-turn configuration, loads history, runs the orchestration graph and
// assembles the response contract.
package chatbot

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/ragbot-core-v1/server/internal/chatbot/graph"
	"github.com/ragbot-core-v1/server/internal/chatbot/history"
	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/notify"
	logx "github.com/ragbot-core-v1/server/pkg/logger"
)

// Bot drives complete turns over a compiled conversation graph.
type Bot struct {
	runner       graph.Runner
	history      history.Repository
	notifier     notify.Notifier
	maxRecursion int
}

// New builds a Bot. The history repository and notifier are optional; a nil
// repository disables persistence, a nil notifier falls back to logging.
func New(runner graph.Runner, repo history.Repository, notifier notify.Notifier, maxRecursion int) *Bot {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if maxRecursion <= 0 {
		maxRecursion = graph.DefaultMaxRecursionLimit
	}
	return &Bot{runner: runner, history: repo, notifier: notifier, maxRecursion: maxRecursion}
}

// ProcessTurn runs one user turn end to end. Configuration errors and
// upstream failures abort the turn; history persistence is best effort.
func (b *Bot) ProcessTurn(ctx context.Context, ev *model.TurnEvent) (*model.TurnResponse, error) {
	cfg, err := model.ParseChatbotConfig(ev.ChatbotConfig)
	if err != nil {
		return nil, err
	}
	if ev.CustomMessageID == "" {
		ev.CustomMessageID = uuid.NewString()
	}

	if cfg.UseHistory && len(ev.ChatHistory) == 0 && b.history != nil && ev.WSConnectionID != "" {
		msgs, err := b.history.LoadHistory(ctx, ev.WSConnectionID)
		if err != nil {
			logx.Warn().Err(err).Str("conversation_id", ev.WSConnectionID).Msg("history load failed, continuing without")
		} else {
			ev.ChatHistory = msgs
		}
	}

	s := model.NewConversationState(ev, cfg)
	if s.RecursionLimit > b.maxRecursion {
		logx.Warn().
			Int("requested", s.RecursionLimit).
			Int("max", b.maxRecursion).
			Msg("agent recursion limit clamped")
		s.RecursionLimit = b.maxRecursion
	}

	b.notifier.Send(notify.Event{
		Type:         notify.EventStart,
		ConnectionID: ev.WSConnectionID,
		MessageID:    ev.CustomMessageID,
	})

	out, err := b.runner.Invoke(ctx, s)
	if err != nil {
		b.notifier.Send(notify.Event{
			Type:         notify.EventError,
			ConnectionID: ev.WSConnectionID,
			MessageID:    ev.CustomMessageID,
			Content:      err.Error(),
		})
		return nil, err
	}

	answer := answerText(out.Answer)
	b.notifier.Send(notify.Event{
		Type:         notify.EventEnd,
		ConnectionID: ev.WSConnectionID,
		MessageID:    ev.CustomMessageID,
		Content:      answer,
	})

	b.persist(ctx, ev, cfg, answer)

	return &model.TurnResponse{
		Answer:        out.Answer,
		Sources:       out.Sources,
		Contexts:      out.Contexts,
		DebugInfo:     out.DebugInfo,
		ExtraResponse: out.ExtraResponse,
	}, nil
}

// persist appends the turn's exchange to the conversation history. Failures
// are logged, never fatal for the turn.
func (b *Bot) persist(ctx context.Context, ev *model.TurnEvent, cfg *model.ChatbotConfig, answer string) {
	if !cfg.UseHistory || b.history == nil || ev.WSConnectionID == "" {
		return
	}
	if err := b.history.AddMessage(ctx, ev.WSConnectionID, schema.UserMessage(ev.Query)); err != nil {
		logx.Warn().Err(err).Msg("failed to persist user message")
		return
	}
	if err := b.history.AddMessage(ctx, ev.WSConnectionID, schema.AssistantMessage(answer, nil)); err != nil {
		logx.Warn().Err(err).Msg("failed to persist assistant message")
	}
}

func answerText(answer any) string {
	switch v := answer.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
