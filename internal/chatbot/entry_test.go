package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbot-core-v1/server/internal/chatbot/history"
	"github.com/ragbot-core-v1/server/internal/chatbot/model"
	"github.com/ragbot-core-v1/server/internal/chatbot/notify"
	"github.com/ragbot-core-v1/server/internal/core/errx"
	pkgredis "github.com/ragbot-core-v1/server/pkg/redis"
)

type fakeRunner struct {
	mutate func(s *model.ConversationState)
	err    error
	last   *model.ConversationState
}

func (f *fakeRunner) Invoke(_ context.Context, s *model.ConversationState) (*model.ConversationState, error) {
	f.last = s
	if f.err != nil {
		return nil, f.err
	}
	if f.mutate != nil {
		f.mutate(s)
	}
	return s, nil
}

type recordingNotifier struct {
	types []notify.EventType
}

func (r *recordingNotifier) Send(ev notify.Event) {
	r.types = append(r.types, ev.Type)
}

func chatConfigJSON() json.RawMessage {
	return json.RawMessage(`{"chatbot_mode": "chat", "use_history": true}`)
}

func testHistory(t *testing.T) history.Repository {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return history.NewRedisRepository(rdb, pkgredis.DefaultKeyspace, time.Minute)
}

func TestProcessTurnAssemblesResponse(t *testing.T) {
	runner := &fakeRunner{mutate: func(s *model.ConversationState) {
		s.Answer = "the answer"
		s.SetContexts([]string{"ctx"}, []string{"src"})
		s.MergeDebug(map[string]any{"stage": "done"})
	}}
	bot := New(runner, nil, nil, 0)

	resp, err := bot.ProcessTurn(context.Background(), &model.TurnEvent{
		Query:         "hello",
		ChatbotConfig: chatConfigJSON(),
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Answer)
	assert.Equal(t, []string{"ctx"}, resp.Contexts)
	assert.Equal(t, []string{"src"}, resp.Sources)
	assert.Equal(t, "done", resp.DebugInfo["stage"])
}

func TestProcessTurnInvalidConfig(t *testing.T) {
	bot := New(&fakeRunner{}, nil, nil, 0)
	_, err := bot.ProcessTurn(context.Background(), &model.TurnEvent{
		Query:         "hello",
		ChatbotConfig: json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrConfiguration))
}

func TestProcessTurnGeneratesMessageID(t *testing.T) {
	runner := &fakeRunner{mutate: func(s *model.ConversationState) { s.Answer = "x" }}
	bot := New(runner, nil, nil, 0)

	ev := &model.TurnEvent{Query: "hello", ChatbotConfig: chatConfigJSON()}
	_, err := bot.ProcessTurn(context.Background(), ev)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.CustomMessageID)
	assert.Equal(t, ev.CustomMessageID, runner.last.MessageID)
}

func TestProcessTurnNotifiesStartAndEnd(t *testing.T) {
	nt := &recordingNotifier{}
	bot := New(&fakeRunner{mutate: func(s *model.ConversationState) { s.Answer = "x" }}, nil, nt, 0)

	_, err := bot.ProcessTurn(context.Background(), &model.TurnEvent{
		Query:         "hello",
		ChatbotConfig: chatConfigJSON(),
	})
	require.NoError(t, err)
	assert.Equal(t, []notify.EventType{notify.EventStart, notify.EventEnd}, nt.types)
}

func TestProcessTurnNotifiesError(t *testing.T) {
	nt := &recordingNotifier{}
	bot := New(&fakeRunner{err: errors.New("graph failed")}, nil, nt, 0)

	_, err := bot.ProcessTurn(context.Background(), &model.TurnEvent{
		Query:         "hello",
		ChatbotConfig: chatConfigJSON(),
	})
	require.Error(t, err)
	assert.Equal(t, []notify.EventType{notify.EventStart, notify.EventError}, nt.types)
}

func TestProcessTurnPersistsAndReloadsHistory(t *testing.T) {
	repo := testHistory(t)
	runner := &fakeRunner{mutate: func(s *model.ConversationState) { s.Answer = "first answer" }}
	bot := New(runner, repo, nil, 0)
	ctx := context.Background()

	_, err := bot.ProcessTurn(ctx, &model.TurnEvent{
		Query:          "first question",
		ChatbotConfig:  chatConfigJSON(),
		WSConnectionID: "conn-1",
	})
	require.NoError(t, err)

	// second turn loads the persisted exchange
	_, err = bot.ProcessTurn(ctx, &model.TurnEvent{
		Query:          "second question",
		ChatbotConfig:  chatConfigJSON(),
		WSConnectionID: "conn-1",
	})
	require.NoError(t, err)
	require.Len(t, runner.last.ChatHistory, 2)
	assert.Equal(t, "first question", runner.last.ChatHistory[0].Content)
	assert.Equal(t, "first answer", runner.last.ChatHistory[1].Content)
}

func TestProcessTurnSkipsHistoryWhenDisabled(t *testing.T) {
	repo := testHistory(t)
	runner := &fakeRunner{mutate: func(s *model.ConversationState) { s.Answer = "x" }}
	bot := New(runner, repo, nil, 0)
	ctx := context.Background()

	cfg := json.RawMessage(`{"chatbot_mode": "chat", "use_history": false}`)
	_, err := bot.ProcessTurn(ctx, &model.TurnEvent{
		Query:          "q",
		ChatbotConfig:  cfg,
		WSConnectionID: "conn-2",
	})
	require.NoError(t, err)

	msgs, err := repo.LoadHistory(ctx, "conn-2")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestProcessTurnClampsRecursionLimit(t *testing.T) {
	runner := &fakeRunner{mutate: func(s *model.ConversationState) { s.Answer = "x" }}
	bot := New(runner, nil, nil, 4)

	cfg := json.RawMessage(`{"chatbot_mode": "chat", "agent_recursion_limit": 99}`)
	_, err := bot.ProcessTurn(context.Background(), &model.TurnEvent{
		Query:         "q",
		ChatbotConfig: cfg,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, runner.last.RecursionLimit)
}
