package genscore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Model responses are rarely clean JSON: they arrive wrapped in prose,
// fenced in markdown, or truncated mid-object by a token limit. Recovery
// is an ordered list of pure extraction strategies tried until one yields
// parseable JSON.

type strategy struct {
	name    string
	extract func(string) (string, bool)
}

var strategies = []strategy{
	{"direct", extractDirect},
	{"fenced", extractFenced},
	{"bracketed", extractBracketed},
	{"salvage", extractSalvaged},
}

var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Recover unmarshals the first strategy's output that parses into target,
// returning the strategy name for run logging.
func Recover(raw string, target any) (string, error) {
	var lastErr error
	for _, s := range strategies {
		candidate, ok := s.extract(raw)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), target); err != nil {
			lastErr = err
			continue
		}
		return s.name, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON found in response")
	}
	return "", fmt.Errorf("all recovery strategies failed: %w", lastErr)
}

func extractDirect(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	return trimmed, trimmed != ""
}

func extractFenced(raw string) (string, bool) {
	m := fencedRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func extractBracketed(raw string) (string, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// extractSalvaged trims a truncated array back to its last complete
// object and closes it, recovering everything emitted before the cut.
func extractSalvaged(raw string) (string, bool) {
	start := strings.Index(raw, "[")
	if start == -1 {
		return "", false
	}
	end := strings.LastIndex(raw, "}")
	if end <= start {
		return "", false
	}
	return raw[start:end+1] + "]", true
}
