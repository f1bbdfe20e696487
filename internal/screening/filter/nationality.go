package filter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseNationalities turns whatever the extractor produced for a nationality
// into a list. It never panics; a non-empty input always yields at least one
// element.
func ParseNationalities(raw interface{}) []string {
	switch v := raw.(type) {
	case nil:
		return []string{}
	case []string:
		return cleanList(v)
	case []interface{}:
		return stringifyAll(v)
	case string:
		return parseNationalityString(v)
	default:
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			return []string{}
		}
		return []string{s}
	}
}

func parseNationalityString(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return []string{}
	}

	if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		var items []interface{}
		if err := json.Unmarshal([]byte(strings.ReplaceAll(trimmed, "'", `"`)), &items); err == nil {
			if out := stringifyAll(items); len(out) > 0 {
				return out
			}
		}
		stripped := strings.TrimSpace(strings.Map(func(r rune) rune {
			switch r {
			case '[', ']', '\'', '"':
				return -1
			}
			return r
		}, trimmed))
		if stripped == "" {
			return []string{trimmed}
		}
		return []string{stripped}
	}

	out := cleanList(strings.Split(trimmed, ","))
	if len(out) == 0 {
		return []string{trimmed}
	}
	return out
}

func stringifyAll(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if s := cleanItem(fmt.Sprint(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := cleanItem(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cleanItem(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}
