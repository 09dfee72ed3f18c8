// Package sanitize cleans free text arriving from agent clients before it
// becomes a node name, nodenet name or user prompt message.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxNameLength bounds node, nodespace and nodenet names.
const MaxNameLength = 80

// MaxMessageLength bounds prompt messages.
const MaxMessageLength = 2000

var (
	// reTag matches XML/HTML tags and processing instructions.
	reTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reSpaces = regexp.MustCompile(`[ \t]+`)

	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
)

// Name returns input as a single-line name: control characters and tags
// are removed, runs of whitespace become one space, and the result is cut
// to MaxNameLength runes.
func Name(input string) string {
	if input == "" {
		return ""
	}
	s := reTag.ReplaceAllString(input, "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
	return truncateRunes(s, MaxNameLength)
}

// Message keeps newlines and tabs but otherwise applies the same cleaning
// as Name, collapsing blank-line runs and cutting to MaxMessageLength runes.
func Message(input string) string {
	if input == "" {
		return ""
	}
	s := strings.Map(func(r rune) rune {
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	s = reTag.ReplaceAllString(s, "")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	return truncateRunes(strings.TrimSpace(s), MaxMessageLength)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
