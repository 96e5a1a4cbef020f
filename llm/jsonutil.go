package llm

import (
	"regexp"
	"strings"
)

var (
	fencedObject  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	fencedArray   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	bareObject    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	bareArray     = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls a JSON object out of a model response. Markdown code
// fences, // comments, and trailing commas are tolerated because local
// models produce all three.
func ExtractJSON(content string) string {
	if m := fencedObject.FindStringSubmatch(content); len(m) > 1 {
		return sanitizeJSON(m[1])
	}
	if m := bareObject.FindString(content); m != "" {
		return sanitizeJSON(m)
	}
	return ""
}

// ExtractJSONArray is ExtractJSON for top-level arrays.
func ExtractJSONArray(content string) string {
	if m := fencedArray.FindStringSubmatch(content); len(m) > 1 {
		return sanitizeJSON(m[1])
	}
	if m := bareArray.FindString(content); m != "" {
		return sanitizeJSON(m)
	}
	return ""
}

// sanitizeJSON strips // comments that sit outside string values, then
// trailing commas before a closing brace or bracket.
func sanitizeJSON(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(raw) && raw[i+1] == '/':
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			if i < len(raw) {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(ch)
	}

	return trailingComma.ReplaceAllString(b.String(), "$1")
}
