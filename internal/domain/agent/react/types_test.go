package react

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		raw  string
		want Action
		ok   bool
	}{
		{"SEARCH", ActionSearch, true},
		{"final answer", ActionFinalAnswer, true},
		{" web-search ", ActionWebSearch, true},
		{"Clarify", ActionClarify, true},
		{"refine_query", ActionRefineQuery, true},
		{"translate", Action("TRANSLATE"), false},
	}
	for _, tc := range cases {
		got, ok := ParseAction(tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
	}
}

func TestActionToolName(t *testing.T) {
	assert.Equal(t, "search", ActionSearch.ToolName())
	assert.Equal(t, "web_search", ActionWebSearch.ToolName())
	assert.Equal(t, "translate", Action("TRANSLATE").ToolName())
	assert.True(t, ActionFinalAnswer.Terminal())
	assert.False(t, ActionRefineQuery.Terminal())
}
