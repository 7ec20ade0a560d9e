package intent

import (
	"strings"

	"github.com/dlclark/regexp2"
)

var hintRes = []*regexp2.Regexp{
	regexp2.MustCompile(`\bв\s+тендер[еа]?\s+([^\n,.!?]+)`, regexp2.IgnoreCase),
	regexp2.MustCompile(`\bпо\s+тендер[уе]?\s+([^\n,.!?]+)`, regexp2.IgnoreCase),
	regexp2.MustCompile(`\bдля\s+тендер[а]?\s+([^\n,.!?]+)`, regexp2.IgnoreCase),
	regexp2.MustCompile(`\b(?:in|for|from)\s+(?:the\s+)?store\s+([^\n,.!?]+)`, regexp2.IgnoreCase),
}

// question words that end a store mention: "в тендере Дубровка какие сроки"
var hintTail = regexp2.MustCompile(
	`\b(что|какие|какой|когда|сколько|нужно|есть|требования|сроки|цены|стоимость|what|which|when|how)\b.*$`,
	regexp2.IgnoreCase)

// TargetHint extracts a store mentioned inline, e.g. "в тендере Дубровка".
// It returns "" when the text names no store.
func TargetHint(text string) string {
	for _, re := range hintRes {
		name := group(re, text, 1)
		if name == "" {
			continue
		}
		if out, err := hintTail.Replace(name, "", -1, -1); err == nil {
			name = out
		}
		if name = CleanStoreName(strings.TrimSpace(name)); name != "" {
			return name
		}
	}
	return ""
}
