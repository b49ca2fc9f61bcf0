// Package memory holds the memory mutation model: the directive mini-language
// the model embeds in its final text, and the store boundary those mutations
// are applied to.
package memory

import (
	"regexp"
	"strings"
)

// Action describes what a MemoryOperation does.
type Action string

const (
	ActionCreate          Action = "create"
	ActionUpdate          Action = "update"
	ActionDeleteSuggested Action = "delete_suggested"
)

// Operation is one structured memory mutation extracted from final assistant
// text. Update and DeleteSuggested match an existing memory by exact content.
type Operation struct {
	Action        Action `json:"action"`
	Content       string `json:"content,omitempty"`
	TargetContent string `json:"target_content,omitempty"`
}

// ParseResult is the outcome of ParseDirectives.
type ParseResult struct {
	// DisplayText is the input with all recognized directive spans removed
	// and trailing whitespace trimmed.
	DisplayText string
	// Operations in the order the directives appeared.
	Operations []Operation
}

// Directive grammar. Three forms, each on its own bracketed span:
//
//	[MEMORIZE: <content>]
//	[UPDATE_MEMORY: <old> -> <new>]
//	[FORGET_MEMORY: <content>]
//
// Directives are only honored at the end of the text; anything directive-like
// earlier, or malformed, is left in place untouched.
var directiveRe = regexp.MustCompile(`\[(MEMORIZE|UPDATE_MEMORY|FORGET_MEMORY):\s*([^\[\]]*?)\s*\]$`)

const updateSeparator = " -> "

// ParseDirectives extracts memory directives from finalized assistant text.
// It never fails: unrecognized or malformed directives stay in DisplayText.
// Parsing directive-free text returns it unchanged, so the call is idempotent.
func ParseDirectives(text string) ParseResult {
	remaining := text
	var reversed []Operation

	for {
		trimmed := strings.TrimRight(remaining, " \t\r\n")
		m := directiveRe.FindStringSubmatchIndex(trimmed)
		if m == nil {
			break
		}
		keyword := trimmed[m[2]:m[3]]
		payload := trimmed[m[4]:m[5]]

		op, ok := buildOperation(keyword, payload)
		if !ok {
			// Malformed: fail open, keep it (and everything before it)
			// visible.
			break
		}
		reversed = append(reversed, op)
		remaining = trimmed[:m[0]]
	}

	if len(reversed) == 0 {
		return ParseResult{DisplayText: text}
	}

	ops := make([]Operation, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		ops = append(ops, reversed[i])
	}

	return ParseResult{
		DisplayText: strings.TrimRight(remaining, " \t\r\n"),
		Operations:  ops,
	}
}

func buildOperation(keyword, payload string) (Operation, bool) {
	switch keyword {
	case "MEMORIZE":
		if payload == "" {
			return Operation{}, false
		}
		return Operation{Action: ActionCreate, Content: payload}, true
	case "UPDATE_MEMORY":
		idx := strings.Index(payload, updateSeparator)
		if idx <= 0 {
			return Operation{}, false
		}
		oldContent := strings.TrimSpace(payload[:idx])
		newContent := strings.TrimSpace(payload[idx+len(updateSeparator):])
		if oldContent == "" || newContent == "" {
			return Operation{}, false
		}
		return Operation{Action: ActionUpdate, TargetContent: oldContent, Content: newContent}, true
	case "FORGET_MEMORY":
		if payload == "" {
			return Operation{}, false
		}
		return Operation{Action: ActionDeleteSuggested, TargetContent: payload}, true
	}
	return Operation{}, false
}
