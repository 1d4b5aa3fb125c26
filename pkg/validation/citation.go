package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
	"github.com/wilhg/sherpa/pkg/belief"
)

// minCitableTokens keeps short fragments ("Yes.", "In short:") uncited.
const minCitableTokens = 3

var markerRE = regexp.MustCompile(`\s*\[(\d+)\]\([^)]*\)`)

// CitationConfig holds the match thresholds. A sentence cites a resource when
// any score is strictly above its threshold.
type CitationConfig struct {
	SequenceThreshold    float64
	ContainmentThreshold float64
	JaccardThreshold     float64
}

// DefaultCitationConfig returns 0.7 for every threshold.
func DefaultCitationConfig() CitationConfig {
	return CitationConfig{SequenceThreshold: 0.7, ContainmentThreshold: 0.7, JaccardThreshold: 0.7}
}

// CitationValidation appends [k](link) markers to answer sentences that match
// a resource. k is the resource's 1-based position in the list it was given.
// It never rejects an answer.
type CitationValidation struct {
	cfg CitationConfig
}

// NewCitationValidation returns a citation validator.
func NewCitationValidation(cfg CitationConfig) *CitationValidation {
	return &CitationValidation{cfg: cfg}
}

func (c *CitationValidation) Name() string { return "citation" }

func (c *CitationValidation) Validate(_ context.Context, text string, b *belief.Belief) Result {
	return Result{Valid: true, Result: c.Cite(text, b.Resources())}
}

// Cite inserts citation markers. A resource is cited at most once per
// sentence, so running Cite on its own output changes nothing.
func (c *CitationValidation) Cite(text string, resources []vectorstore.Document) string {
	if len(resources) == 0 || strings.TrimSpace(text) == "" {
		return text
	}
	index := make([][][]string, len(resources))
	for k, r := range resources {
		for _, seg := range splitSentences(r.Content) {
			if ts := tokens(seg.text); len(ts) > 0 {
				index[k] = append(index[k], ts)
			}
		}
	}

	var sb strings.Builder
	for _, seg := range splitSentences(text) {
		sb.WriteString(c.citeSentence(seg.text, resources, index))
		sb.WriteString(seg.space)
	}
	return sb.String()
}

func (c *CitationValidation) citeSentence(sentence string, resources []vectorstore.Document, index [][][]string) string {
	cited := map[int]bool{}
	for _, m := range markerRE.FindAllStringSubmatch(sentence, -1) {
		if k, err := strconv.Atoi(m[1]); err == nil {
			cited[k] = true
		}
	}
	answer := tokens(markerRE.ReplaceAllString(sentence, ""))
	if len(answer) < minCitableTokens {
		return sentence
	}
	var markers []string
	for k, r := range resources {
		if cited[k+1] || !c.matches(answer, index[k]) {
			continue
		}
		markers = append(markers, fmt.Sprintf("[%d](%s)", k+1, r.Source))
	}
	if len(markers) == 0 {
		return sentence
	}
	body := strings.TrimRight(sentence, " \t")
	punct := ""
	if n := len(body); n > 0 && strings.ContainsRune(".!?", rune(body[n-1])) {
		body, punct = body[:n-1], body[n-1:]
	}
	return body + " " + strings.Join(markers, " ") + punct
}

func (c *CitationValidation) matches(answer []string, sentences [][]string) bool {
	aset := tokenSet(answer)
	for _, rs := range sentences {
		if lcsRatio(answer, rs) > c.cfg.SequenceThreshold {
			return true
		}
		rset := tokenSet(rs)
		inter := 0
		for t := range aset {
			if _, ok := rset[t]; ok {
				inter++
			}
		}
		if float64(inter)/float64(len(aset)) > c.cfg.ContainmentThreshold {
			return true
		}
		union := len(aset) + len(rset) - inter
		if union > 0 && float64(inter)/float64(union) > c.cfg.JaccardThreshold {
			return true
		}
	}
	return false
}

// lcsRatio is 2*LCS(a,b)/(len(a)+len(b)) over tokens.
func lcsRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(b)]) / float64(len(a)+len(b))
}
