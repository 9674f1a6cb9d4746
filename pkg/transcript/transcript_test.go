package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_AppendPreservesOrder(t *testing.T) {
	tr := New("chat-1")
	tr.Append(Message{Role: RoleUser, Content: "one"})
	tr.Append(Message{Role: RoleAssistant, Content: "two"})
	tr.Append(Message{Role: RoleUser, Content: "three"})

	msgs := tr.Current()
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
	assert.Equal(t, "chat-1", tr.SessionID())
}

func TestTranscript_AppendNormalizesWhitespace(t *testing.T) {
	tr := New("chat-1")
	tr.Append(Message{Role: RoleAssistant, Content: "[\n  {\"type\":\t\"text\"}\n]"})

	msgs := tr.Current()
	assert.Equal(t, "[ {\"type\": \"text\"} ]", msgs[0].Content)
}

func TestTranscript_Reset(t *testing.T) {
	tr := New("chat-1",
		Message{Role: RoleUser, Content: "old"},
		Message{Role: RoleAssistant, Content: "old reply"},
	)

	seed := []Message{
		{Role: RoleSystem, Content: "confirmed"},
		{Role: RoleUser, Content: "start"},
	}
	tr.Reset(seed)

	assert.Equal(t, seed, tr.Current())

	// Mutating the seed afterwards must not leak into the transcript
	seed[0].Content = "changed"
	assert.Equal(t, "confirmed", tr.Current()[0].Content)
}

func TestTranscript_CurrentReturnsCopy(t *testing.T) {
	tr := New("chat-1", Message{Role: RoleUser, Content: "hello"})

	msgs := tr.Current()
	msgs[0].Content = "mutated"

	assert.Equal(t, "hello", tr.Current()[0].Content)
}

func TestTranscript_LastAssistantMessage(t *testing.T) {
	tr := New("chat-1")

	_, err := tr.LastAssistantMessage()
	assert.ErrorIs(t, err, ErrEmptyTranscript)

	tr.Append(Message{Role: RoleAssistant, Content: "first"})
	tr.Append(Message{Role: RoleUser, Content: "hi"})
	tr.Append(Message{Role: RoleAssistant, Content: "second"})
	tr.Append(Message{Role: RoleSystem, Content: "note"})

	msg, err := tr.LastAssistantMessage()
	require.NoError(t, err)
	assert.Equal(t, "second", msg.Content)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}
