package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiro-rag/kiro/internal/history"
)

func TestBuildMessagesOrdering(t *testing.T) {
	past := []history.Message{
		history.NewMessage("user", "earlier question"),
		history.NewMessage("assistant", "earlier answer"),
	}
	messages := buildMessages("some reference\n", past, "new question")

	require.Len(t, messages, 4)
	assert.NotNil(t, messages[0].OfSystem)
	assert.NotNil(t, messages[1].OfUser)
	assert.NotNil(t, messages[2].OfAssistant)
	assert.NotNil(t, messages[3].OfUser)
}

func TestBuildMessagesEmptyReferenceKeepsClarifyInstruction(t *testing.T) {
	messages := buildMessages("", nil, "q")
	require.Len(t, messages, 2)
	require.NotNil(t, messages[0].OfSystem)

	system := messages[0].OfSystem.Content.OfString.Value
	assert.True(t, strings.Contains(system, "clarifying question"))
}
