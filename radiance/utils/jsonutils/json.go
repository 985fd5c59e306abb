package jsonutils

import (
	"encoding/json"
	"regexp"
	"strings"
)

// FallbackPrefixLen bounds how much raw model text the final fallback object
// keeps under "reference_text".
const FallbackPrefixLen = 2000

// Extract recovers a value of type T from raw LLM output. LLM replies are
// supposed to be JSON but frequently are not (fenced in Markdown, truncated,
// single-quoted, prose). Extract never fails: it walks a ladder of recovery
// strategies and, when all of them miss, returns a minimal object whose
// reference_text field keeps a bounded prefix of the raw input.
//
// Ladder, first success wins:
//  1. strip <think>...</think> spans and leftover XML-ish tags
//  2. fenced ```json block
//  3. first balanced {...} span (real brace counting, not regex)
//  4. whole cleaned text as JSON
//  5. structural repair (comments, single quotes, bare keys, trailing
//     commas, unescaped inner quotes), then 2-4 again
//  6. prose/Markdown synthesis from labeled sections
//  7. bounded-prefix fallback object
func Extract[T any](raw string) T {
	cleaned := StripModelTags(raw)

	for _, candidate := range jsonCandidates(cleaned) {
		if v, ok := tryDecode[T](candidate); ok {
			return v
		}
	}

	repaired := Repair(cleaned)
	for _, candidate := range jsonCandidates(repaired) {
		if v, ok := tryDecode[T](candidate); ok {
			return v
		}
	}

	if LooksLikeProse(cleaned) {
		return decodeValue[T](SynthesizeFromProse(cleaned))
	}

	return decodeValue[T](FallbackObject(raw))
}

// tryDecode accepts a candidate only if it is valid JSON. Field-level type
// mismatches against T are tolerated: encoding/json keeps decoding past them,
// so we take the partial fill rather than discarding a legitimate parse.
func tryDecode[T any](candidate string) (T, bool) {
	var out T
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !json.Valid([]byte(candidate)) {
		return out, false
	}
	_ = json.Unmarshal([]byte(candidate), &out)
	return out, true
}

// decodeValue round-trips an arbitrary value into T, best effort.
func decodeValue[T any](v interface{}) T {
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

var (
	reThinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	reXMLTag     = regexp.MustCompile(`(?s)</?[a-zA-Z][a-zA-Z0-9_\-]*(\s[^<>]*)?>`)
	reFence      = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
)

// StripModelTags removes reasoning leakage (<think> spans) and any other
// XML-like tags, plus BOMs and zero-width characters.
func StripModelTags(input string) string {
	input = strings.Map(func(r rune) rune {
		if r == '\uFEFF' || r == '\u200B' || r == '\u200C' || r == '\u200D' {
			return -1 // skip
		}
		return r
	}, input)
	input = reThinkBlock.ReplaceAllString(input, "")
	input = reXMLTag.ReplaceAllString(input, "")
	return strings.TrimSpace(input)
}

// jsonCandidates yields object-shaped spans to attempt, in ladder order.
func jsonCandidates(s string) []string {
	var out []string
	if m := reFence.FindStringSubmatch(s); len(m) > 1 {
		fenced := strings.TrimSpace(m[1])
		if strings.HasPrefix(fenced, "{") {
			out = append(out, fenced)
		}
	}
	if span := FirstJSONObject(s); span != "" {
		out = append(out, span)
	}
	if trimmed := strings.TrimSpace(s); strings.HasPrefix(trimmed, "{") {
		out = append(out, trimmed)
	}
	return out
}

// FirstJSONObject returns the first balanced top-level {...} span, counting
// braces while honoring string literals and escapes. Returns "" when no
// balanced span exists (e.g. truncated output).
func FirstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// Repair applies the structural fix-ups in a fixed order. Each step is a
// standalone transformation so it can be tested on its own.
func Repair(s string) string {
	s = StripComments(s)
	s = NormalizeSingleQuotes(s)
	s = QuoteBareKeys(s)
	s = DropTrailingCommas(s)
	s = EscapeInnerQuotes(s)
	return s
}

// StripComments removes // line comments and /* */ block comments outside of
// string literals.
func StripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) {
			if s[i+1] == '/' {
				for i < len(s) && s[i] != '\n' {
					i++
				}
				if i < len(s) {
					b.WriteByte('\n')
				}
				continue
			}
			if s[i+1] == '*' {
				i += 2
				for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
					i++
				}
				i++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// NormalizeSingleQuotes rewrites 'single quoted' strings as "double quoted",
// escaping any embedded double quotes.
func NormalizeSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inDouble {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
			continue
		}
		if inSingle {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '\'':
				inSingle = false
				b.WriteByte('"')
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '"':
			inDouble = true
			b.WriteByte(c)
		case '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var reBareKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)\s*:`)

// QuoteBareKeys quotes unquoted object keys: {foo: 1} -> {"foo": 1}.
func QuoteBareKeys(s string) string {
	return reBareKey.ReplaceAllString(s, `$1"$2":`)
}

var reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// DropTrailingCommas removes commas that directly precede ] or }.
func DropTrailingCommas(s string) string {
	return reTrailingComma.ReplaceAllString(s, "$1")
}

// EscapeInnerQuotes escapes stray double quotes inside string literals using
// a simple in/out-of-string scan: a quote closes the string only when the
// next non-space character is a structural one (, } ] :) or end of input.
func EscapeInnerQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		if c == '\\' {
			escaped = true
			b.WriteByte(c)
			continue
		}
		if c != '"' {
			b.WriteByte(c)
			continue
		}
		if isStringTerminator(s, i+1) {
			inString = false
			b.WriteByte(c)
		} else {
			b.WriteString(`\"`)
		}
	}
	return b.String()
}

func isStringTerminator(s string, from int) bool {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		case ',', '}', ']', ':':
			return true
		default:
			return false
		}
	}
	return true
}

var reSectionHeader = regexp.MustCompile(`(?m)^\s*(?:#{1,4}\s+|\*\*)?[A-Za-z][A-Za-z0-9 /_\-]{1,48}:?\*{0,2}\s*$`)

// LooksLikeProse reports whether the text reads as Markdown/prose rather
// than JSON: a heading marker up front or labeled section headers.
func LooksLikeProse(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	return reSectionHeader.MatchString(trimmed)
}

var reBullet = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)

// SynthesizeFromProse pattern-matches labeled sections ("Findings:", "##
// Abnormalities") into list/string fields and keeps the full cleaned text
// under reference_text so nothing is lost.
func SynthesizeFromProse(s string) map[string]interface{} {
	out := map[string]interface{}{}
	var current string
	var items []string
	var freeText []string

	flush := func() {
		if current == "" {
			return
		}
		if len(items) > 0 {
			out[current] = append([]string(nil), items...)
		} else if len(freeText) > 0 {
			out[current] = strings.TrimSpace(strings.Join(freeText, " "))
		}
		items = items[:0]
		freeText = freeText[:0]
	}

	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if key, rest, ok := sectionLabel(trimmed); ok {
			flush()
			current = key
			if rest != "" {
				freeText = append(freeText, rest)
			}
			continue
		}
		if m := reBullet.FindStringSubmatch(trimmed); m != nil {
			items = append(items, cleanInline(m[1]))
			continue
		}
		if current != "" {
			freeText = append(freeText, cleanInline(trimmed))
		}
	}
	flush()

	out["reference_text"] = strings.TrimSpace(s)
	return out
}

// sectionLabel recognizes "Findings:", "## Findings", "**Findings:** rest"
// and returns the normalized key plus any trailing inline value.
func sectionLabel(line string) (key, rest string, ok bool) {
	stripped := strings.TrimLeft(line, "#")
	stripped = strings.TrimSpace(stripped)
	stripped = strings.Trim(stripped, "*")
	idx := strings.Index(stripped, ":")
	var label string
	if idx >= 0 {
		label = strings.TrimSpace(stripped[:idx])
		rest = cleanInline(strings.TrimSpace(stripped[idx+1:]))
	} else if strings.HasPrefix(line, "#") {
		label = strings.TrimSpace(stripped)
	} else {
		return "", "", false
	}
	if label == "" || len(label) > 48 {
		return "", "", false
	}
	for _, r := range label {
		if !(r == ' ' || r == '_' || r == '-' || r == '/' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", "", false
		}
	}
	key = strings.ToLower(label)
	key = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(key)
	return key, rest, true
}

func cleanInline(s string) string {
	return strings.TrimSpace(strings.Trim(s, "*_"))
}

// FallbackObject is the last rung: a minimal object carrying a bounded
// prefix of the raw text under reference_text.
func FallbackObject(raw string) map[string]interface{} {
	return map[string]interface{}{
		"reference_text": BoundedPrefix(raw, FallbackPrefixLen),
	}
}

// BoundedPrefix returns at most n runes of s.
func BoundedPrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(runes[:n]))
}

// ToJSON serializes a Go value to a JSON string with indentation.
// Returns an empty string if serialization fails.
func ToJSON(v interface{}) string {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(bytes))
}
