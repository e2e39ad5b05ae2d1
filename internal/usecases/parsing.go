package usecases

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"krishibondhu/internal/entities"
)

const maxSuggestions = 3

var (
	// A bullet (•, -, *) or "12." followed by whitespace; the rest of the line is the item.
	suggestionLine = regexp.MustCompile(`^\s*(?:[•\-*]|\d+\.)\s+(.+)$`)
	// Leading list markers stripped from positional lines.
	listMarker = regexp.MustCompile(`^[•\-*\d.\s]+`)
)

// ExtractSuggestions returns up to three bullet or numbered items from text, markers removed,
// in their original order.
func ExtractSuggestions(text string) []string {
	suggestions := []string{}
	for _, line := range strings.Split(text, "\n") {
		m := suggestionLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[1])
		if item == "" {
			continue
		}
		suggestions = append(suggestions, item)
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return suggestions
}

// ExtractJSONArray decodes the first JSON array of T found in text. The whole text is tried
// first, then every bracket-balanced span starting at a '[' in order of appearance. An empty
// array counts as a failure.
func ExtractJSONArray[T any](text string) ([]T, error) {
	trimmed := strings.TrimSpace(text)
	if out, err := decodeArray[T](trimmed); err == nil {
		return out, nil
	}

	for start := strings.IndexByte(trimmed, '['); start >= 0; {
		if end := matchingBracket(trimmed, start); end > start {
			if out, err := decodeArray[T](trimmed[start : end+1]); err == nil {
				return out, nil
			}
		}
		next := strings.IndexByte(trimmed[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, errors.Mark(errors.New("no JSON array found in response"), entities.ErrParse)
}

func decodeArray[T any](s string) ([]T, error) {
	if !strings.HasPrefix(s, "[") {
		return nil, errors.New("not an array")
	}
	var out []T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("empty array")
	}
	return out, nil
}

// matchingBracket returns the index of the ']' closing the '[' at start, skipping brackets
// inside JSON strings, or -1.
func matchingBracket(s string, start int) int {
	depth := 0
	inString, escaped := false, false
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
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// responseLines returns the non-blank lines of text with list markers stripped.
func responseLines(text string) []string {
	lines := lo.Filter(strings.Split(text, "\n"), func(line string, _ int) bool {
		return strings.TrimSpace(line) != ""
	})
	return lo.Map(lines, func(line string, _ int) string {
		return strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
	})
}

// linesBetween returns lines[from:to] clipped to the slice bounds; never nil.
func linesBetween(lines []string, from, to int) []string {
	if from >= len(lines) {
		return []string{}
	}
	out := make([]string, 0, to-from)
	return append(out, lines[from:min(to, len(lines))]...)
}

// ParseWarehouseAdvice splits a free-text reply positionally: lines 0-2 are recommendations,
// 3-5 storage optimisation and 6-8 alerts.
func ParseWarehouseAdvice(text string) entities.WarehouseAdvice {
	lines := responseLines(text)
	return entities.WarehouseAdvice{
		Recommendations:     linesBetween(lines, 0, 3),
		StorageOptimization: linesBetween(lines, 3, 6),
		Alerts:              linesBetween(lines, 6, 9),
	}
}

// ParseDeliveryAdvice splits a free-text reply positionally: lines 0-1 are route
// recommendations, 2-3 time optimisation and 4-5 weather alerts.
func ParseDeliveryAdvice(text string) entities.DeliveryAdvice {
	lines := responseLines(text)
	return entities.DeliveryAdvice{
		RouteRecommendations: linesBetween(lines, 0, 2),
		TimeOptimization:     linesBetween(lines, 2, 4),
		WeatherAlerts:        linesBetween(lines, 4, 6),
	}
}
