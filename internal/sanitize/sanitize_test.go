package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "hidden layer 1", "hidden layer 1"},
		{"newlines flattened", "line one\nline two", "line one line two"},
		{"whitespace collapsed", "  a \t\t b  ", "a b"},
		{"control chars", "a\x00b\x1bc", "abc"},
		{"tags removed", "<script>alert</script>node", "alertnode"},
		{"unicode kept", "Knoten ü", "Knoten ü"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.input); got != tt.want {
				t.Errorf("Name(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestName_Truncates(t *testing.T) {
	got := Name(strings.Repeat("é", MaxNameLength+10))
	if n := utf8.RuneCountInString(got); n != MaxNameLength {
		t.Errorf("rune count = %d, want %d", n, MaxNameLength)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a rune")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"keeps newlines", "choose:\n\ta\n\tb", "choose:\n\ta\n\tb"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"strips tags and controls", "<b>bold</b>\x07 text", "bold text"},
		{"trims", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.input); got != tt.want {
				t.Errorf("Message(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}

	if got := Message(strings.Repeat("x", MaxMessageLength*2)); len(got) != MaxMessageLength {
		t.Errorf("Message length = %d, want %d", len(got), MaxMessageLength)
	}
}
