package statemachine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/wilhg/sherpa/pkg/action"
	"github.com/wilhg/sherpa/pkg/errmodel"
)

func always() Guard {
	return func(context.Context) (bool, error) { return true, nil }
}

func never() Guard {
	return func(context.Context) (bool, error) { return false, nil }
}

func newMachine(t *testing.T, states ...State) *Machine {
	t.Helper()
	m := New()
	for _, s := range states {
		if err := m.AddState(s); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func names(actions []action.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Name()
	}
	return out
}

func TestActions_RegistrationOrderAndGuards(t *testing.T) {
	m := newMachine(t, State{Name: "A"}, State{Name: "B"}, State{Name: "C"})
	_ = m.UpdateTransition("go_b", "A", "B")
	_ = m.UpdateTransition("go_c", "A", "C", WithGuards(always()))
	_ = m.UpdateTransition("blocked", "A", "C", WithGuards(never()))
	_ = m.UpdateTransition("back", "B", "A")

	got, err := m.Actions(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names(got), ",") != "go_b,go_c" {
		t.Fatalf("actions=%v", names(got))
	}
	for _, a := range got {
		if a.Kind() != action.KindTransition {
			t.Fatalf("%s kind=%s", a.Name(), a.Kind())
		}
	}
}

func TestActions_OnePerTrigger(t *testing.T) {
	m := newMachine(t, State{Name: "A"}, State{Name: "B"}, State{Name: "C"})
	_ = m.UpdateTransition("next", "A", "B", WithGuards(never()))
	_ = m.UpdateTransition("next", "A", "C")

	got, _ := m.Actions(context.Background(), false)
	if len(got) != 1 {
		t.Fatalf("actions=%v", names(got))
	}
	if _, err := got[0].Execute(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if m.Current().Name != "C" {
		t.Fatalf("state=%s want C (first passing transition)", m.Current().Name)
	}
}

func TestActions_WaitingStateHidden(t *testing.T) {
	m := newMachine(t, State{Name: "ask", Tags: []string{TagWaiting}}, State{Name: "done"})
	_ = m.UpdateTransition("answer", "ask", "done")

	got, _ := m.Actions(context.Background(), false)
	if len(got) != 0 {
		t.Fatalf("waiting transitions leaked: %v", names(got))
	}
	got, _ = m.Actions(context.Background(), true)
	if len(got) != 1 || got[0].Name() != "answer" {
		t.Fatalf("includeWaiting: %v", names(got))
	}
}

func TestUpdateTransition_Idempotent(t *testing.T) {
	m := newMachine(t, State{Name: "A"}, State{Name: "B"})
	for i := 0; i < 3; i++ {
		if err := m.UpdateTransition("go", "A", "B"); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(m.Transitions()); n != 1 {
		t.Fatalf("transitions=%d want 1", n)
	}
	if err := m.UpdateTransition("go", "A", "Z"); err == nil {
		t.Fatal("expected unknown state error")
	}
}

func TestUsageOrder(t *testing.T) {
	m := New()
	_ = m.AddState(State{Name: "A"}, OnExit(Callback{Usage: "exit-A."}))
	_ = m.AddState(State{Name: "B"}, OnEnter(Callback{Usage: "enter-B."}))
	_ = m.UpdateTransition("go", "A", "B",
		WithBefore(Callback{Usage: "before."}),
		WithAfter(Callback{Usage: "after."}))

	got, _ := m.Actions(context.Background(), false)
	want := "exit-A. before. enter-B. after. Moves from A to B."
	if got[0].Usage() != want {
		t.Fatalf("usage=%q want %q", got[0].Usage(), want)
	}
}

func TestTrigger_ExecutionOrderAndResult(t *testing.T) {
	var trace []string
	rec := func(name string) Callback {
		return Callback{Func: func(context.Context, map[string]any) (any, error) {
			trace = append(trace, name)
			return nil, nil
		}}
	}
	m := New()
	_ = m.AddState(State{Name: "A"}, OnExit(rec("exit")))
	_ = m.AddState(State{Name: "B"}, OnEnter(rec("enter")))
	double := action.NewFunction("double", "Doubles n", []action.ArgumentSpec{{Name: "n", Type: "integer"}},
		func(_ context.Context, args map[string]any) (any, error) {
			trace = append(trace, "action")
			n, _ := args["n"].(int)
			return n * 2, nil
		})
	_ = m.UpdateTransition("go", "A", "B",
		WithGuards(func(context.Context) (bool, error) { trace = append(trace, "guard"); return true, nil }),
		WithBefore(rec("before")),
		WithAfter(rec("after")),
		WithAction(double))

	out, err := m.Trigger(context.Background(), "go", map[string]any{"n": 21})
	if err != nil {
		t.Fatal(err)
	}
	if out != "42" {
		t.Fatalf("out=%v", out)
	}
	if strings.Join(trace, ",") != "guard,before,action,exit,enter,after" {
		t.Fatalf("order=%v", trace)
	}
	if m.Current().Name != "B" {
		t.Fatalf("state=%s", m.Current().Name)
	}
}

func TestTrigger_FailureBeforeMoveKeepsState(t *testing.T) {
	m := newMachine(t, State{Name: "A"}, State{Name: "B"})
	boom := errors.New("boom")
	_ = m.UpdateTransition("go", "A", "B", WithBefore(Callback{Func: func(context.Context, map[string]any) (any, error) {
		return nil, boom
	}}))
	if _, err := m.Trigger(context.Background(), "go", nil); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if m.Current().Name != "A" {
		t.Fatalf("state moved to %s", m.Current().Name)
	}
}

func TestTrigger_UnknownIsPolicyError(t *testing.T) {
	m := newMachine(t, State{Name: "A"}, State{Name: "B"})
	_ = m.UpdateTransition("go", "A", "B", WithGuards(never()))
	_, err := m.Trigger(context.Background(), "go", nil)
	if !errmodel.IsPolicy(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestTrigger_Atomic(t *testing.T) {
	m := newMachine(t, State{Name: "A"}, State{Name: "B"})
	_ = m.UpdateTransition("go", "A", "B")
	_ = m.UpdateTransition("back", "B", "A")

	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Trigger(context.Background(), "go", nil); err == nil {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if fired != 1 {
		t.Fatalf("go fired %d times from A", fired)
	}
}

func TestSetState(t *testing.T) {
	m := newMachine(t, State{Name: "A", Description: "start"}, State{Name: "B"})
	if m.Current().Description != "start" {
		t.Fatalf("current=%+v", m.Current())
	}
	if err := m.SetState("B"); err != nil || m.Current().Name != "B" {
		t.Fatalf("err=%v state=%s", err, m.Current().Name)
	}
	if err := m.SetState("nope"); err == nil {
		t.Fatal("expected error")
	}
}
