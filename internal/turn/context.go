package turn

import (
	"strings"

	"tern/internal/gemini"
)

// HistoryEntry is one prior exchange entry. Exactly one of Text or Parts is
// set: Parts carries pre-structured content for entries that held attachment
// references or tool call/response pairs.
type HistoryEntry struct {
	Role  string
	Text  string
	Parts []gemini.Part
}

const (
	memoryPreamble = "The following is prior knowledge about the user, " +
		"recorded across earlier conversations. Treat it as ground truth " +
		"and apply it without being asked:"
	noMemoriesMarker     = "No memories have been recorded about the user yet."
	memoryAcknowledgment = "Understood. I will keep that prior knowledge in mind."
)

// BuildContext assembles the ordered context for a turn: a synthetic leading
// exchange declaring the memory snippets as prior knowledge, a synthetic
// model acknowledgment, then the turn history in order. Deterministic and
// free of side effects.
func BuildContext(history []HistoryEntry, memories []string) []gemini.Content {
	out := make([]gemini.Content, 0, len(history)+2)

	var block strings.Builder
	if len(memories) == 0 {
		block.WriteString(noMemoriesMarker)
	} else {
		block.WriteString(memoryPreamble)
		for _, m := range memories {
			block.WriteString("\n- ")
			block.WriteString(m)
		}
	}
	out = append(out,
		gemini.Content{Role: "user", Parts: []gemini.Part{{Text: block.String()}}},
		gemini.Content{Role: "model", Parts: []gemini.Part{{Text: memoryAcknowledgment}}},
	)

	for _, h := range history {
		role := h.Role
		if role == "" {
			role = "user"
		}
		parts := h.Parts
		if parts == nil {
			parts = []gemini.Part{{Text: h.Text}}
		}
		out = append(out, gemini.Content{Role: role, Parts: parts})
	}
	return out
}
