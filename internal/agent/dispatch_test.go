package agent

import (
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/waclaw/internal/store"
)

func TestBuildMessages_ReplaysHistoryInOrder(t *testing.T) {
	turns := []store.Turn{
		{Role: "user", Content: "first batch"},
		{Role: "assistant", Content: "first reply"},
	}

	msgs := buildMessages(turns, "second batch")

	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, "first batch", msgs[0].Content[0].OfText.Text)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, "first reply", msgs[1].Content[0].OfText.Text)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	assert.Equal(t, "second batch", msgs[2].Content[0].OfText.Text)
}

func TestBuildMessages_NoHistory(t *testing.T) {
	msgs := buildMessages(nil, "hello")

	require.Len(t, msgs, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content[0].OfText.Text)
}
