package export

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Block is one paragraph of exported text
type Block struct {
	Text    string
	Heading bool
}

var inlineRules = []struct {
	re   *regexp2.Regexp
	repl string
}{
	{regexp2.MustCompile(`\*\*(.+?)\*\*`, regexp2.None), "$1"},
	{regexp2.MustCompile(`__(.+?)__`, regexp2.None), "$1"},
	{regexp2.MustCompile(`(?<![\w*])\*(?!\s)(.+?)(?<!\s)\*(?![\w*])`, regexp2.None), "$1"},
	{regexp2.MustCompile("`([^`]+)`", regexp2.None), "$1"},
	{regexp2.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`, regexp2.None), "$1 ($2)"},
}

// ParseMarkdown turns model output into plain paragraphs. Headings are kept
// as separate blocks, emphasis markers and code fences are dropped, and
// list bullets become "•".
func ParseMarkdown(md string) []Block {
	var blocks []Block
	for _, line := range strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		if trimmed == "" || trimmed == "---" || trimmed == "***" {
			if len(blocks) > 0 && blocks[len(blocks)-1].Text != "" {
				blocks = append(blocks, Block{})
			}
			continue
		}

		heading := false
		if strings.HasPrefix(trimmed, "#") {
			heading = true
			trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
		for _, bullet := range []string{"- ", "* ", "+ "} {
			if strings.HasPrefix(trimmed, bullet) {
				trimmed = "• " + strings.TrimSpace(trimmed[len(bullet):])
				break
			}
		}
		blocks = append(blocks, Block{Text: cleanInline(trimmed), Heading: heading})
	}

	// drop trailing separators
	for len(blocks) > 0 && blocks[len(blocks)-1].Text == "" {
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}

// CleanMarkdown returns md as plain text
func CleanMarkdown(md string) string {
	var lines []string
	for _, b := range ParseMarkdown(md) {
		lines = append(lines, b.Text)
	}
	return strings.Join(lines, "\n")
}

func cleanInline(s string) string {
	for _, rule := range inlineRules {
		if out, err := rule.re.Replace(s, rule.repl, -1, -1); err == nil {
			s = out
		}
	}
	return s
}
