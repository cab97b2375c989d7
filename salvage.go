package chatbridge

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Salvager recovers a usable reply from a failed generation call.
type Salvager interface {
	Salvage(err error) (string, bool)
}

// StructuredSalvager reads the partial text carried by a BlockedError.
type StructuredSalvager struct{}

// Salvage implements Salvager.
func (StructuredSalvager) Salvage(err error) (string, bool) {
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		return "", false
	}
	if strings.TrimSpace(blocked.Partial) == "" {
		return "", false
	}
	return blocked.Partial, true
}

// partialTextPattern matches the first text part of a candidate dump such as
// `content { parts { text: "..." } }`. Escaped quotes stay inside the
// capture.
var partialTextPattern = regexp.MustCompile(`content\s*{\s*parts\s*{\s*text:\s*"((?:[^"\\]|\\.)+)"`)

// PatternSalvager extracts partial text from the error's string form. It is
// the fallback for clients that only expose an opaque error. The capture is
// decoded as a quoted string; when that fails only `\n` is unescaped.
type PatternSalvager struct{}

// Salvage implements Salvager.
func (PatternSalvager) Salvage(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	match := partialTextPattern.FindStringSubmatch(err.Error())
	if match == nil {
		return "", false
	}
	if text, uerr := strconv.Unquote(`"` + match[1] + `"`); uerr == nil {
		return text, true
	}
	return strings.ReplaceAll(match[1], `\n`, "\n"), true
}

// SalvageChain tries each salvager in order and returns the first hit.
type SalvageChain []Salvager

// Salvage implements Salvager.
func (c SalvageChain) Salvage(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	for _, s := range c {
		if text, ok := s.Salvage(err); ok {
			return text, true
		}
	}
	return "", false
}

// DefaultSalvager prefers structured partial results over string parsing.
var DefaultSalvager Salvager = SalvageChain{StructuredSalvager{}, PatternSalvager{}}
