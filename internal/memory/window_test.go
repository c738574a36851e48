package memory

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowKeepsLastKPairs(t *testing.T) {
	w := NewWindow(2)
	for i := 1; i <= 3; i++ {
		w.AddUser(fmt.Sprintf("u%d", i))
		w.AddAssistant(fmt.Sprintf("a%d", i))
	}
	assert.Equal(t, "User: u2\nAI: a2\nUser: u3\nAI: a3", w.FormattedHistory())
}

func TestWindowNeverExceedsTwoK(t *testing.T) {
	for _, k := range []int{1, 3, 10} {
		w := NewWindow(k)
		for i := 0; i < 5*k+1; i++ {
			w.AddUser("q")
			require.LessOrEqual(t, w.Len(), 2*k)
			w.AddAssistant("a")
			require.LessOrEqual(t, w.Len(), 2*k)
		}
		assert.Equal(t, 2*k, w.Len())
	}
}

func TestWindowEvictsOneTurnAtATime(t *testing.T) {
	w := NewWindow(1)
	w.AddUser("u1")
	w.AddAssistant("a1")
	w.AddUser("u2")
	assert.Equal(t, []Turn{
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "u2"},
	}, w.Turns())
}

func TestWindowClearAndEmptyHistory(t *testing.T) {
	w := NewWindow(3)
	assert.Equal(t, "", w.FormattedHistory())
	w.AddUser("hello")
	w.Clear()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, "", w.FormattedHistory())
}

func TestWindowCustomLabels(t *testing.T) {
	w := NewWindow(1)
	w.UserLabel = "用户"
	w.AssistantLabel = "AI"
	w.AddUser("你好")
	w.AddAssistant("你好呀")
	assert.Equal(t, "用户: 你好\nAI: 你好呀", w.FormattedHistory())
}

func TestWindowLoadAppliesBound(t *testing.T) {
	w := NewWindow(1)
	w.Load([]Turn{
		{Role: RoleUser, Content: "old"},
		{Role: RoleAssistant, Content: "older reply"},
		{Role: RoleUser, Content: "new"},
		{Role: RoleAssistant, Content: "new reply"},
	})
	assert.Equal(t, "User: new\nAI: new reply", w.FormattedHistory())
}

func TestNewWindowNormalizesCapacity(t *testing.T) {
	assert.Equal(t, 1, NewWindow(0).Capacity())
	assert.Equal(t, 1, NewWindow(-4).Capacity())
}

func TestWindowTurnsIsACopy(t *testing.T) {
	w := NewWindow(2)
	w.AddUser("x")
	turns := w.Turns()
	turns[0].Content = "mutated"
	assert.Equal(t, "User: x", w.FormattedHistory())
}
