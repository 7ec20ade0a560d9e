package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":{\"b\":[1,2]}}\n```", `{"a":{"b":[1,2]}}`, true},
		{"prose around", `Sure! ["Dubrovka", "Mitino"] hope it helps`, `["Dubrovka", "Mitino"]`, true},
		{"braces in strings", `{"q":"use } and ] here \" ok"}`, `{"q":"use } and ] here \" ok"}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"mismatched", `{"a":1]`, "", false},
		{"none", `no json here`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
