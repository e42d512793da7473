package annotate

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/snapgloss/snapgloss/internal/document"
)

//go:embed stream_system.tmpl
var streamSystemPrompt string

//go:embed batch_system.tmpl
var batchSystemPrompt string

// buildUserPrompt constructs the numbered line listing sent as the user
// message. Line numbers are the caller's slice indices; the model echoes them
// back so responses can be matched to inputs regardless of delivery order.
func buildUserPrompt(texts []string, script document.ScriptVariant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Script: %s\n\n", scriptLabel(script))
	for i, text := range texts {
		// A newline inside a text would corrupt the numbering.
		text = strings.ReplaceAll(text, "\n", " ")
		fmt.Fprintf(&b, "%d: %s\n", i, text)
	}
	return b.String()
}

func scriptLabel(script document.ScriptVariant) string {
	if script == document.ScriptTraditional {
		return "Traditional Chinese"
	}
	return "Simplified Chinese"
}
