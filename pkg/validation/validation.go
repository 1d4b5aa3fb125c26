// Package validation post-processes a synthesized answer against the resources
// the agent gathered: citation insertion and numeric fact checking.
package validation

import (
	"context"
	"strings"
	"unicode"

	"github.com/wilhg/sherpa/pkg/belief"
)

// Result is the outcome of one validator. Result holds the (possibly
// rewritten) answer; Feedback explains a rejection to the model.
type Result struct {
	Valid    bool
	Result   string
	Feedback string
}

// Validator checks or rewrites an answer.
type Validator interface {
	Name() string
	Validate(ctx context.Context, text string, b *belief.Belief) Result
}

// Chain runs validators in order, feeding each the previous result. It stops
// at the first rejection.
func Chain(ctx context.Context, validators []Validator, text string, b *belief.Belief) Result {
	res := Result{Valid: true, Result: text}
	for _, v := range validators {
		res = v.Validate(ctx, res.Result, b)
		if !res.Valid {
			return res
		}
	}
	return res
}

// segment is one sentence plus the whitespace that followed it.
type segment struct {
	text  string
	space string
}

// splitSentences cuts text after '.', '!' or '?' followed by whitespace, and at
// newlines. The target of a "](...)" link is never cut, so citation markers
// stay whole. Concatenating text+space of every segment gives back the input.
func splitSentences(text string) []segment {
	var out []segment
	runes := []rune(text)
	start, i := 0, 0
	for i < len(runes) {
		r := runes[i]
		if r == ']' && i+1 < len(runes) && runes[i+1] == '(' {
			if end := closingParen(runes, i+2); end > 0 {
				i = end + 1
				continue
			}
		}
		var sentEnd int
		switch {
		case r == '\n':
			sentEnd = i
		case (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])):
			sentEnd = i + 1
		default:
			i++
			continue
		}
		j := sentEnd
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		out = append(out, segment{text: string(runes[start:sentEnd]), space: string(runes[sentEnd:j])})
		start, i = j, j
	}
	if start < len(runes) {
		out = append(out, segment{text: string(runes[start:])})
	}
	return out
}

// closingParen returns the index of the first ')' at or after from, or -1 when
// a newline or the end of text comes first.
func closingParen(runes []rune, from int) int {
	for j := from; j < len(runes); j++ {
		switch runes[j] {
		case ')':
			return j
		case '\n':
			return -1
		}
	}
	return -1
}

// tokens lower-cases s and splits it into letter/digit runs.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(ts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		out[t] = struct{}{}
	}
	return out
}
