package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/wilhg/sherpa/pkg/adapters/vectorstore"
	"github.com/wilhg/sherpa/pkg/belief"
)

var resources = []vectorstore.Document{
	{Content: "Bread is made from flour, water and yeast. It is baked in an oven.", Source: "https://example.com/bread"},
	{Content: "Paris is the capital and largest city of France. It has about 2,100,000 residents.", Source: "https://example.com/paris"},
}

func TestSplitSentencesRoundTrip(t *testing.T) {
	text := "First one. Second one!  Third?\nFourth line without stop\n\nLast. "
	var sb strings.Builder
	segs := splitSentences(text)
	for _, s := range segs {
		sb.WriteString(s.text + s.space)
	}
	if sb.String() != text {
		t.Fatalf("round trip lost text: %q", sb.String())
	}
	if segs[0].text != "First one." || segs[2].text != "Third?" || segs[3].text != "Fourth line without stop" {
		t.Fatalf("segments=%q", segs)
	}
}

func TestSplitSentences_KeepsLinkTargetsWhole(t *testing.T) {
	segs := splitSentences("It is old [1](a. b). Next one.")
	if len(segs) != 2 || segs[0].text != "It is old [1](a. b)." {
		t.Fatalf("segments=%q", segs)
	}
}

func TestCite_AddsMarkersInInputOrder(t *testing.T) {
	c := NewCitationValidation(DefaultCitationConfig())
	got := c.Cite("Paris is the capital and largest city of France. I like turtles very much.", resources)
	want := "Paris is the capital and largest city of France [2](https://example.com/paris). I like turtles very much."
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestCite_Idempotent(t *testing.T) {
	c := NewCitationValidation(DefaultCitationConfig())
	once := c.Cite("Bread is made from flour, water and yeast. Paris is the capital and largest city of France.", resources)
	twice := c.Cite(once, resources)
	if once != twice {
		t.Fatalf("second pass changed output:\n%q\n%q", once, twice)
	}
	if strings.Count(once, "[1](") != 1 || strings.Count(once, "[2](") != 1 {
		t.Fatalf("markers=%q", once)
	}

	// a file path source may itself contain a sentence break
	notes := []vectorstore.Document{{Content: resources[1].Content, Source: "notes/Geo. vol 2.txt"}}
	once = c.Cite("Paris is the capital and largest city of France.", notes)
	if once != "Paris is the capital and largest city of France [1](notes/Geo. vol 2.txt)." {
		t.Fatalf("once=%q", once)
	}
	if twice := c.Cite(once, notes); twice != once {
		t.Fatalf("second pass changed output:\n%q\n%q", once, twice)
	}
}

func TestCite_NoMatchNoMarker(t *testing.T) {
	c := NewCitationValidation(DefaultCitationConfig())
	text := "Quantum computers use qubits for computation."
	if got := c.Cite(text, resources); got != text {
		t.Fatalf("got %q", got)
	}
	if got := c.Cite(text, nil); got != text {
		t.Fatalf("no resources: %q", got)
	}
}

func TestCite_MultipleResourcesOnOneSentence(t *testing.T) {
	docs := []vectorstore.Document{
		{Content: "Go has goroutines and channels.", Source: "a"},
		{Content: "Go has goroutines and channels built in.", Source: "b"},
	}
	got := NewCitationValidation(DefaultCitationConfig()).Cite("Go has goroutines and channels.", docs)
	if got != "Go has goroutines and channels [1](a) [2](b)." {
		t.Fatalf("got %q", got)
	}
}

func TestLCSRatio(t *testing.T) {
	if r := lcsRatio([]string{"a", "b", "c"}, []string{"a", "b", "c"}); r != 1 {
		t.Fatalf("identical=%v", r)
	}
	if r := lcsRatio([]string{"a", "b"}, []string{"c", "d"}); r != 0 {
		t.Fatalf("disjoint=%v", r)
	}
	if r := lcsRatio([]string{"a", "x", "b"}, []string{"a", "b"}); r != 0.8 {
		t.Fatalf("partial=%v", r)
	}
}

func TestCheckNumbers(t *testing.T) {
	missing := CheckNumbers("Paris has 2100000 residents [2](x) and 12 bridges, not 12.", resources[1].Content)
	if len(missing) != 1 || missing[0] != "12" {
		t.Fatalf("missing=%v", missing)
	}
}

func TestChain(t *testing.T) {
	b := belief.New()
	b.SetCurrentTask("How many people live in Paris?")
	b.AddResources(resources...)
	vs := []Validator{NumberValidation{}, NewCitationValidation(DefaultCitationConfig())}

	res := Chain(context.Background(), vs, "Paris has about 2,100,000 residents.", b)
	if !res.Valid || !strings.Contains(res.Result, "[2](https://example.com/paris)") {
		t.Fatalf("res=%+v", res)
	}

	res = Chain(context.Background(), vs, "Paris has about 9 residents.", b)
	if res.Valid || !strings.Contains(res.Feedback, "9") {
		t.Fatalf("res=%+v", res)
	}
}
