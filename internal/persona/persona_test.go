package persona

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
    "user_profile": {
        "basic_info": {
            "name": {"value": "Mia", "description": "name"},
            "occupation": {"value": "librarian", "description": "job"}
        },
        "personality": {
            "core_traits": {"value": ["calm", "curious"], "description": "traits"}
        }
    },
    "communication_style": {
        "language_tone": {"value": "warm", "description": "tone"}
    },
    "example_responses": {
        "examples": [
            {"user_message": "hi", "your_response": "hello there"},
            {"user_message": "bye", "your_response": ""}
        ]
    }
}`

func TestParseBuildsTypedTree(t *testing.T) {
	root, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"user_profile", "communication_style", "example_responses"}, root.Keys())

	n, err := root.Lookup("user_profile.basic_info.name")
	require.NoError(t, err)
	leaf, ok := n.(*Leaf)
	require.True(t, ok)
	assert.Equal(t, "Mia", leaf.Value)
	assert.Equal(t, "name", leaf.Description)

	n, err = root.Lookup("example_responses.examples")
	require.NoError(t, err)
	list, ok := n.(*List)
	require.True(t, ok)
	assert.Len(t, list.Items, 2)
}

func TestParseRejectsNonMapping(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"))
	assert.Error(t, err)
	_, err = Parse([]byte(""))
	assert.Error(t, err)
}

func TestFieldsInDocumentOrder(t *testing.T) {
	root, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	fields := Fields(root)
	paths := make([]string, len(fields))
	for i, f := range fields {
		paths[i] = f.Path
	}
	assert.Equal(t, []string{
		"user_profile.basic_info.name",
		"user_profile.basic_info.occupation",
		"user_profile.personality.core_traits",
		"communication_style.language_tone",
	}, paths)
}

func TestSetIsTypeChecked(t *testing.T) {
	root := DefaultTemplate()

	require.NoError(t, Set(root, "user_profile.basic_info.name", "Mia"))
	assert.Equal(t, "Mia", Text(root, "user_profile.basic_info.name"))

	require.NoError(t, Set(root, "user_profile.personality.interests", []any{"books", "tea"}))
	assert.Equal(t, "books, tea", Text(root, "user_profile.personality.interests"))

	assert.ErrorIs(t, Set(root, "user_profile.basic_info.age", 30), ErrUnknownPath)
	assert.ErrorIs(t, Set(root, "user_profile.basic_info.name.first", "M"), ErrNotGroup)
	assert.ErrorIs(t, Set(root, "user_profile.basic_info", "x"), ErrTypeMismatch)
	assert.ErrorIs(t, Set(root, "user_profile.basic_info.name", map[string]any{"a": 1}), ErrTypeMismatch)

	require.NoError(t, Set(root, "example_responses.examples", []any{
		map[string]any{"user_message": "hey", "your_response": "yo"},
	}))
	assert.ErrorIs(t, Set(root, "example_responses.examples", "nope"), ErrTypeMismatch)
}

func TestValidateReportsStructure(t *testing.T) {
	tmpl := DefaultTemplate()
	cfg := tmpl.Clone()
	assert.Empty(t, Validate(cfg, tmpl))

	basic, err := cfg.Lookup("user_profile.basic_info")
	require.NoError(t, err)
	basic.(*Group).Put("nickname", &Leaf{Value: "M"})
	cfg.Put("communication_style", &Leaf{Value: "loud"})

	problems := Validate(cfg, tmpl)
	assert.Contains(t, problems, Problem{Path: "user_profile.basic_info.nickname", Kind: ProblemExtra})
	assert.Contains(t, problems, Problem{Path: "communication_style", Kind: ProblemMismatch})
}

func TestCloneDoesNotShareState(t *testing.T) {
	tmpl := DefaultTemplate()
	cfg := tmpl.Clone()
	require.NoError(t, Set(cfg, "user_profile.basic_info.name", "Mia"))
	assert.Equal(t, "", Text(tmpl, "user_profile.basic_info.name"))
}

func TestRenderSections(t *testing.T) {
	root, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)
	out := Render(root)

	assert.True(t, strings.HasPrefix(out, "# Role\nYou call yourself Mia, a librarian. Your core traits: calm, curious."))
	assert.Contains(t, out, "# Communication style\nYour tone is warm.")
	assert.Contains(t, out, "When asked \"hi\", you answer: \"hello there\"")
	assert.NotContains(t, out, "bye")
	assert.NotContains(t, out, "# Response guidelines")
	assert.Contains(t, out, "# Final instructions\n")
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	root, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	for _, name := range []string{"persona.json", "persona.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, WriteFile(path, root))
		back, err := LoadFile(path)
		require.NoError(t, err)
		assert.Empty(t, Validate(back, root), name)
		assert.Equal(t, Render(root), Render(back), name)
	}
}

func TestGroupJSONKeepsOrder(t *testing.T) {
	root, err := Parse([]byte("b:\n  value: 1\n  description: one\na:\n  value: x\n  description: two\n"))
	require.NoError(t, err)
	raw, err := json.Marshal(root)
	require.NoError(t, err)
	assert.Equal(t, `{"b":{"value":1,"description":"one"},"a":{"value":"x","description":"two"}}`, string(raw))
}
