package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirectivesNoDirectives(t *testing.T) {
	cases := []string{
		"",
		"Just a plain answer.",
		"Brackets [like this] are not directives.",
		"Multiline\nanswer\nwith no directives.\n",
	}
	for _, text := range cases {
		res := ParseDirectives(text)
		assert.Equal(t, text, res.DisplayText, "input %q must round-trip", text)
		assert.Empty(t, res.Operations)
	}
}

func TestParseDirectivesCreate(t *testing.T) {
	res := ParseDirectives("Sure thing.\n[MEMORIZE: likes tea]")

	assert.Equal(t, "Sure thing.", res.DisplayText)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, Operation{Action: ActionCreate, Content: "likes tea"}, res.Operations[0])
}

func TestParseDirectivesUpdate(t *testing.T) {
	res := ParseDirectives("Noted.\n[UPDATE_MEMORY: likes tea -> prefers green tea]")

	assert.Equal(t, "Noted.", res.DisplayText)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, Operation{
		Action:        ActionUpdate,
		TargetContent: "likes tea",
		Content:       "prefers green tea",
	}, res.Operations[0])
}

func TestParseDirectivesForget(t *testing.T) {
	res := ParseDirectives("Done.\n[FORGET_MEMORY: likes tea]")

	assert.Equal(t, "Done.", res.DisplayText)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, Operation{Action: ActionDeleteSuggested, TargetContent: "likes tea"}, res.Operations[0])
}

func TestParseDirectivesMultipleInOrder(t *testing.T) {
	res := ParseDirectives("Got it.\n[MEMORIZE: plays chess]\n[FORGET_MEMORY: plays checkers]")

	assert.Equal(t, "Got it.", res.DisplayText)
	require.Len(t, res.Operations, 2)
	assert.Equal(t, ActionCreate, res.Operations[0].Action)
	assert.Equal(t, "plays chess", res.Operations[0].Content)
	assert.Equal(t, ActionDeleteSuggested, res.Operations[1].Action)
}

func TestParseDirectivesMalformedLeftUntouched(t *testing.T) {
	cases := []string{
		"Hmm.\n[MEMORIZE likes tea]",             // missing colon
		"Hmm.\n[UPDATE_MEMORY: only old value]",  // no separator
		"Hmm.\n[UPDATE_MEMORY:  -> new]",         // empty old side
		"Hmm.\n[REMEMBER: likes tea]",            // unknown keyword
		"Hmm.\n[MEMORIZE: ]",                     // empty content
	}
	for _, text := range cases {
		res := ParseDirectives(text)
		assert.Equal(t, text, res.DisplayText, "input %q must stay untouched", text)
		assert.Empty(t, res.Operations)
	}
}

func TestParseDirectivesMidTextIgnored(t *testing.T) {
	text := "I stored that as [MEMORIZE: likes tea] earlier. More prose follows."
	res := ParseDirectives(text)
	assert.Equal(t, text, res.DisplayText)
	assert.Empty(t, res.Operations)
}

func TestParseDirectivesIdempotent(t *testing.T) {
	once := ParseDirectives("Sure thing.\n[MEMORIZE: likes tea]")
	twice := ParseDirectives(once.DisplayText)
	assert.Equal(t, once.DisplayText, twice.DisplayText)
	assert.Empty(t, twice.Operations)
}

func TestParseDirectivesMalformedBlocksEarlierDirectives(t *testing.T) {
	// A malformed trailing span means nothing after it is "the end", so the
	// earlier well-formed directive stays visible too.
	text := "Ok.\n[MEMORIZE: likes tea]\n[UPDATE_MEMORY: broken]"
	res := ParseDirectives(text)
	assert.Equal(t, text, res.DisplayText)
	assert.Empty(t, res.Operations)
}
