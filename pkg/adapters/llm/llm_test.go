package llm_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/wilhg/sherpa/pkg/adapters/llm"
	"github.com/wilhg/sherpa/pkg/adapters/llm/fake"
	"github.com/wilhg/sherpa/pkg/errmodel"
)

func TestClassify(t *testing.T) {
	base := errors.New("provider said no")
	cases := []struct {
		status int
		err    error
		code   string
	}{
		{401, base, errmodel.CodeAuthentication},
		{403, base, errmodel.CodeAuthentication},
		{429, base, errmodel.CodeRateLimit},
		{400, base, errmodel.CodeInvalidRequest},
		{504, base, errmodel.CodeTimeout},
		{0, fmt.Errorf("call: %w", context.DeadlineExceeded), errmodel.CodeTimeout},
		{0, &net.OpError{Op: "dial", Err: errors.New("refused")}, errmodel.CodeConnection},
	}
	for _, c := range cases {
		got := llm.Classify("test", c.status, c.err)
		if !errmodel.IsUpstream(got) || !errmodel.HasCode(got, c.code) {
			t.Fatalf("status=%d err=%v: got %v want %s", c.status, c.err, got, c.code)
		}
	}
	if got := llm.Classify("test", 500, base); errmodel.IsUpstream(got) {
		t.Fatalf("500 should not be upstream: %v", got)
	}
	if got := llm.Classify("test", 0, context.Canceled); !errors.Is(got, context.Canceled) {
		t.Fatalf("cancellation changed: %v", got)
	}
	if llm.Classify("test", 0, nil) != nil {
		t.Fatal("nil in, nil out")
	}
}

func TestRegistryResolvesFake(t *testing.T) {
	m, err := llm.New(context.Background(), "fake", map[string]any{"replies": []string{"pong"}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := llm.Prompt(context.Background(), m, "ping", nil)
	if err != nil || out != "pong" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if _, err := llm.New(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestFakeScript(t *testing.T) {
	boom := errors.New("boom")
	f := fake.New("one").ThenFail(boom).Then("three")
	ctx := context.Background()
	for i, want := range []string{"one", "", "three", "three"} {
		res, err := f.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprint(i)}}, nil)
		if i == 1 {
			if !errors.Is(err, boom) {
				t.Fatalf("call %d: err=%v", i, err)
			}
			continue
		}
		if err != nil || res.Text != want {
			t.Fatalf("call %d: %q %v", i, res.Text, err)
		}
	}
	if f.Calls() != 4 || f.Prompt(2) != "2" {
		t.Fatalf("calls=%d prompt=%q", f.Calls(), f.Prompt(2))
	}
}

func TestDefaults_PerCallOverrides(t *testing.T) {
	d := llm.DefaultsFrom(map[string]any{"temperature": 1}, "base-model")
	model, temp := d.For(nil)
	if model != "base-model" || temp == nil || *temp != 1 {
		t.Fatalf("model=%s temp=%v", model, temp)
	}
	model, temp = d.For(map[string]any{"model": "other", "temperature": 0.2})
	if model != "other" || *temp != 0.2 {
		t.Fatalf("model=%s temp=%v", model, *temp)
	}
	if _, temp := llm.DefaultsFrom(nil, "m").For(nil); temp != nil {
		t.Fatalf("temperature should be unset, got %v", *temp)
	}
}
