package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wilhg/sherpa/pkg/belief"
)

var numberRE = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

// NumberValidation rejects answers that state numbers found nowhere in the
// resources, the task or the action outputs. Earlier answers and feedback do
// not count as sources.
type NumberValidation struct{}

func (NumberValidation) Name() string { return "number" }

func (NumberValidation) Validate(_ context.Context, text string, b *belief.Belief) Result {
	var sources []string
	for _, r := range b.Resources() {
		sources = append(sources, r.Content)
	}
	for _, e := range b.Events() {
		switch e.Type {
		case belief.EventTask, belief.EventUserInput, belief.EventActionOutput, belief.EventObservation:
			sources = append(sources, e.Content)
		}
	}
	missing := CheckNumbers(text, sources...)
	if len(missing) == 0 {
		return Result{Valid: true, Result: text}
	}
	return Result{
		Valid:  false,
		Result: text,
		Feedback: fmt.Sprintf("The answer uses numbers that do not appear in the context: %s. Only use numbers from the context.",
			strings.Join(missing, ", ")),
	}
}

// CheckNumbers returns the numbers in text, in order of first appearance,
// that occur in none of sources. Citation markers are ignored and thousands
// separators do not matter.
func CheckNumbers(text string, sources ...string) []string {
	known := map[string]bool{}
	for _, s := range sources {
		for _, n := range numberRE.FindAllString(s, -1) {
			known[normalizeNumber(n)] = true
		}
	}
	seen := map[string]bool{}
	var missing []string
	for _, n := range numberRE.FindAllString(markerRE.ReplaceAllString(text, ""), -1) {
		norm := normalizeNumber(n)
		if known[norm] || seen[norm] {
			continue
		}
		seen[norm] = true
		missing = append(missing, n)
	}
	return missing
}

func normalizeNumber(n string) string {
	return strings.ReplaceAll(n, ",", "")
}
