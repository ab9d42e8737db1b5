package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/planly/study-kb-server/internal/knowledge"
)

// DefaultContextLength bounds assembled chat context when the caller does
// not specify a budget.
const DefaultContextLength = 2000

// contextHeader opens every non-empty context block handed to the chat
// orchestrator.
const contextHeader = "[Knowledge Base References]"

// BuildContext formats ranked results into a reference block of at most
// maxLength runes. Blocks are appended in rank order; assembly stops at the
// first block that would exceed the budget, a block is never cut mid-way.
// The header counts against the budget. Empty results yield an empty string.
func BuildContext(results []knowledge.SearchResult, maxLength int) string {
	if len(results) == 0 {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultContextLength
	}

	used := utf8.RuneCountInString(contextHeader)
	if used > maxLength {
		return ""
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	for i, r := range results {
		block := fmt.Sprintf("\n\nReference %d:\n%s", i+1, r.Content)
		n := utf8.RuneCountInString(block)
		if used+n > maxLength {
			break
		}
		b.WriteString(block)
		used += n
	}
	return b.String()
}
