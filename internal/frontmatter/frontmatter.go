// Package frontmatter extracts metadata from the head of a text artifact.
//
// Two encodings are recognized:
//
//	---
//	key: value
//	list:
//	  - item
//	---
//	body...
//
// and a single HTML comment holding a serialized object:
//
//	<!-- Metadata: {"status": "draft"} -->
//	body...
//
// Parsing never fails. Text without metadata, or with metadata that cannot be
// read, yields an empty map and the original text.
package frontmatter

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const delimiter = "---"

var (
	commentBlock = regexp.MustCompile(`(?s)<!--(.*?)-->`)
	commentLabel = regexp.MustCompile(`^[A-Za-z][\w -]*:\s*$`)
	listItem     = regexp.MustCompile(`^\s+-\s*(.*)$`)
)

// Parse splits text into metadata and body.
func Parse(text string) (map[string]any, string) {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if strings.HasPrefix(normalized, delimiter+"\n") || normalized == delimiter {
		if meta, body, ok := parseDelimited(normalized); ok {
			return meta, body
		}
		return map[string]any{}, text
	}
	if meta, body, ok := parseComment(text); ok {
		return meta, body
	}
	return map[string]any{}, text
}

func parseDelimited(text string) (map[string]any, string, bool) {
	lines := strings.Split(text, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, "", false
	}

	meta := make(map[string]any)
	var listKey string
	var list []string
	flush := func() {
		if listKey == "" {
			return
		}
		if list != nil {
			meta[listKey] = list
		}
		listKey, list = "", nil
	}

	for _, line := range lines[1:end] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := listItem.FindStringSubmatch(line); m != nil && listKey != "" {
			list = append(list, strings.TrimSpace(m[1]))
			continue
		}
		flush()

		key, value, found := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			meta[key] = ""
			listKey = key
			continue
		}
		meta[key] = decodeScalar(value)
	}
	flush()

	body := strings.Join(lines[end+1:], "\n")
	return meta, strings.TrimLeft(body, "\n"), true
}

// decodeScalar returns the JSON value of s when s is valid JSON, s otherwise.
func decodeScalar(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// parseComment finds the first HTML comment holding a serialized object,
// optionally behind a label such as "Metadata:". Other comments stay in the
// body.
func parseComment(text string) (map[string]any, string, bool) {
	for _, loc := range commentBlock.FindAllStringSubmatchIndex(text, -1) {
		meta, ok := commentObject(text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		body := text[:loc[0]] + text[loc[1]:]
		return meta, strings.TrimSpace(body), true
	}
	return nil, "", false
}

func commentObject(inner string) (map[string]any, bool) {
	inner = strings.TrimSpace(inner)
	i := strings.Index(inner, "{")
	if i < 0 || !strings.HasSuffix(inner, "}") {
		return nil, false
	}
	if i > 0 {
		if !commentLabel.MatchString(inner[:i]) {
			return nil, false
		}
		inner = inner[i:]
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(inner), &meta); err != nil || len(meta) == 0 {
		return nil, false
	}
	return meta, true
}

// Render writes meta as a delimited block followed by body.
// Strings that Parse would decode as another type are JSON-quoted. Lists of
// strings are written as item lines. Everything else is compact JSON.
func Render(meta map[string]any, body string) string {
	if len(meta) == 0 {
		return body
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(delimiter + "\n")
	for _, k := range keys {
		b.WriteString(k + ":")
		if items, ok := stringList(meta[k]); ok && len(items) > 0 && plainItems(items) {
			b.WriteString("\n")
			for _, it := range items {
				b.WriteString("  - " + it + "\n")
			}
			continue
		}
		b.WriteString(" " + renderScalar(meta[k]) + "\n")
	}
	b.WriteString(delimiter + "\n")
	b.WriteString(body)
	return b.String()
}

func renderScalar(v any) string {
	if s, ok := v.(string); ok && plainString(s) {
		return s
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(out)
}

func plainString(s string) bool {
	if s == "" || s != strings.TrimSpace(s) || strings.ContainsAny(s, "\n\r") {
		return false
	}
	return !json.Valid([]byte(s))
}

func plainItems(items []string) bool {
	for _, it := range items {
		if it == "" || it != strings.TrimSpace(it) || strings.ContainsAny(it, "\n\r") {
			return false
		}
	}
	return true
}

func stringList(v any) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return val, true
	case []any:
		out := make([]string, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = s
		}
		return out, true
	}
	return nil, false
}
