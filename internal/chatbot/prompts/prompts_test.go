package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmbeddedDefaults(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for task, vars := range map[TaskType]map[string]any{
		TaskChat:      ChatVars("demo"),
		TaskRAG:       RAGVars("demo", []string{"ctx one", "ctx two"}),
		TaskRewrite:   {},
		TaskAgentPlan: AgentVars("demo", "knowledge_qa", []string{"knowledge_qa"}),
	} {
		out, err := store.Render(ctx, "demo", "model-x", task, vars)
		require.NoError(t, err, "task %s", task)
		assert.NotEmpty(t, out, "task %s", task)
	}
}

func TestRenderRAGNumbersContexts(t *testing.T) {
	store := NewStore()
	out, err := store.Render(context.Background(), "demo", "model-x", TaskRAG,
		RAGVars("demo", []string{"alpha", "beta"}))
	require.NoError(t, err)
	assert.Contains(t, out, "[1] alpha")
	assert.Contains(t, out, "[2] beta")
}

func TestOverridesWinPerGroupAndModel(t *testing.T) {
	store := NewStore()
	store.SetOverrides("demo", "model-x", map[TaskType]string{
		TaskChat: "custom chat prompt for {{.GroupName}}",
	})

	out, err := store.Render(context.Background(), "demo", "model-x", TaskChat, ChatVars("demo"))
	require.NoError(t, err)
	assert.Equal(t, "custom chat prompt for demo", out)

	// other pairs keep the default
	other, err := store.Render(context.Background(), "demo", "model-y", TaskChat, ChatVars("demo"))
	require.NoError(t, err)
	assert.NotEqual(t, out, other)
}

func TestAgentVarsIncludeFinalTool(t *testing.T) {
	vars := AgentVars("demo", "knowledge_qa", []string{"a", "b"})
	assert.Equal(t, "a, b", vars["ToolNames"])
	assert.Equal(t, "give_final_response", vars["FinalTool"])
}
