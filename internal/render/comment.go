// Package render builds the deterministic stack comment posted on every PR.
package render

import (
	"fmt"
	"strings"

	"github.com/k4r01q/rung/internal/model"
)

// Marker is the sentinel that identifies rung's own comment on a PR, so
// submit can update it in place and leave human comments alone.
const Marker = "<!-- rung:stack-comment v1 -->"

// IsStackComment reports whether body is a comment rung owns.
func IsStackComment(body string) bool {
	return strings.Contains(body, Marker)
}

// Comment renders the stack comment for the PR belonging to highlight: the
// chain from the trunk down through highlight, then highlight's subtree,
// with the highlighted line marked. Output is deterministic for a given
// stack, which keeps repeated submits from producing comment churn.
func Comment(stack *model.Stack, highlight model.BranchName) string {
	var sb strings.Builder
	sb.WriteString("## Stack\n\n")
	sb.WriteString(fmt.Sprintf("- `%s`\n", stack.Trunk))

	// Ancestors, trunk-nearest first.
	chain := stack.AncestorsToTrunk(highlight)
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	depth := 1
	for _, name := range chain {
		writeLine(&sb, stack, name, depth, false)
		depth++
	}
	writeLine(&sb, stack, highlight, depth, true)
	writeSubtree(&sb, stack, highlight, depth+1)

	sb.WriteString("\n---\n")
	sb.WriteString("*This stack is managed by rung.*\n")
	sb.WriteString(Marker + "\n")
	return sb.String()
}

func writeSubtree(sb *strings.Builder, stack *model.Stack, root model.BranchName, depth int) {
	for _, c := range stack.Children(root) {
		writeLine(sb, stack, c, depth, false)
		writeSubtree(sb, stack, c, depth+1)
	}
}

func writeLine(sb *strings.Builder, stack *model.Stack, name model.BranchName, depth int, highlight bool) {
	indent := strings.Repeat("  ", depth)
	label := fmt.Sprintf("`%s`", name)
	if b := stack.Get(name); b != nil && b.PR.Valid() {
		label = fmt.Sprintf("#%d %s", b.PR, label)
	}
	if highlight {
		sb.WriteString(fmt.Sprintf("%s- **→ %s** ← you are here\n", indent, label))
	} else {
		sb.WriteString(fmt.Sprintf("%s- %s\n", indent, label))
	}
}
