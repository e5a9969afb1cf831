package parsers

import (
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragbot-core-v1/server/internal/chatbot/tools"
	"github.com/ragbot-core-v1/server/internal/core/errx"
)

func testRegistry() *tools.Registry {
	return tools.NewRegistry(
		tools.NewGiveFinalResponse(),
		tools.NewKnowledgeBaseRetrieve(nil),
	)
}

func toolCallMessage(calls ...schema.ToolCall) *schema.Message {
	return &schema.Message{Role: schema.Assistant, ToolCalls: calls}
}

func call(name, args string) schema.ToolCall {
	return schema.ToolCall{
		ID:       "call-1",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}
}

func TestParseToolCallingSuccess(t *testing.T) {
	msg := toolCallMessage(call("knowledge_base_retrieve", `{"query":"object storage"}`))
	calls, err := ParseToolCalling(msg, testRegistry(), "model-x")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "knowledge_base_retrieve", calls[0].Name)
	assert.Equal(t, "object storage", calls[0].Kwargs["query"])
	assert.Equal(t, "model-x", calls[0].ModelID)
}

func TestParseToolCallingNoToolCall(t *testing.T) {
	_, err := ParseToolCalling(&schema.Message{Role: schema.Assistant, Content: "plain text"}, testRegistry(), "m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrToolNotFound))
	assert.True(t, errx.IsToolParsing(err))
}

func TestParseToolCallingNilMessage(t *testing.T) {
	_, err := ParseToolCalling(nil, testRegistry(), "m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrToolNotFound))
}

func TestParseToolCallingMultipleCalls(t *testing.T) {
	msg := toolCallMessage(
		call("knowledge_base_retrieve", `{"query":"a"}`),
		call("give_final_response", `{"response":"b"}`),
	)
	_, err := ParseToolCalling(msg, testRegistry(), "m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrMultipleToolName))
}

func TestParseToolCallingUnknownTool(t *testing.T) {
	msg := toolCallMessage(call("made_up_tool", `{}`))
	_, err := ParseToolCalling(msg, testRegistry(), "m")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrToolNotExist))
}

func TestParseToolCallingBadArguments(t *testing.T) {
	for name, args := range map[string]string{
		"not json":         `not-json`,
		"missing required": `{"other":"x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			msg := toolCallMessage(call("knowledge_base_retrieve", args))
			_, err := ParseToolCalling(msg, testRegistry(), "m")
			require.Error(t, err)
			assert.True(t, errors.Is(err, errx.ErrToolParameterNotExist))
		})
	}
}

func TestFailureRecordsShape(t *testing.T) {
	raw := toolCallMessage(call("made_up_tool", `{}`))
	_, parseErr := ParseToolCalling(raw, testRegistry(), "m")
	require.Error(t, parseErr)

	records := FailureRecords(raw, parseErr)
	require.Len(t, records, 2)
	assert.Same(t, raw, records[0].Message)
	assert.Equal(t, schema.User, records[1].Message.Role)
	assert.Contains(t, records[1].Message.Content, "could not be used")
}

func TestFailureRecordsNilRaw(t *testing.T) {
	records := FailureRecords(nil, errors.New("no output"))
	require.Len(t, records, 1)
	assert.Equal(t, schema.User, records[0].Message.Role)
}
