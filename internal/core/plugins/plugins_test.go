package plugins

import (
	"context"
	stderrs "errors"
	"testing"

	perr "rhat/internal/platform/errors"
	kit "rhat/internal/platform/testkit"

	"github.com/google/go-cmp/cmp"
)

func constComp(name string, kind Kind, v any, requires ...string) *Component {
	return &Component{
		Name:     name,
		Kind:     kind,
		Requires: requires,
		Eval:     func(*Broker, Deps) (any, error) { return v, nil },
	}
}

func TestRegistry_RegisterGetRule(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(
		constComp("a.cond", KindCondition, true),
		constComp("a.rule", KindRule, MakePass("OK", nil), "a.cond"),
	); err != nil {
		t.Fatalf("Register: %v", err)
	}

	kit.MustCode(t, r.Register(constComp("a.cond", KindCondition, true)), perr.ErrorCodeDuplicateKey)
	kit.MustCode(t, r.Register(constComp("a.bad", Kind("widget"), true)), perr.ErrorCodeInvalidArgument)
	kit.MustCode(t, r.Register(&Component{Name: "a.noeval", Kind: KindSpec}), perr.ErrorCodeInvalidArgument)

	if _, err := r.Rule("a.rule"); err != nil {
		t.Fatalf("Rule(a.rule): %v", err)
	}
	_, err := r.Rule("a.cond")
	kit.MustCode(t, err, perr.ErrorCodeNotARule)
	if got := err.Error(); got != "a.cond is not a rule." {
		t.Fatalf("not-a-rule message = %q", got)
	}
	_, err = r.Rule("a.missing")
	kit.MustCode(t, err, perr.ErrorCodeNotFound)

	if got := len(r.List(KindRule)); got != 1 {
		t.Fatalf("List(rule) = %d, want 1", got)
	}
	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
}

func TestDependencyGraph_ClosureAndOrder(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(
		constComp("s.one", KindSpec, &Content{}),
		constComp("s.two", KindSpec, &Content{}),
		constComp("p.one", KindParser, map[string]any{}, "s.one"),
		constComp("c.x", KindCondition, true, "p.one"),
		constComp("c.y", KindIncident, false, "p.one", "s.two"),
		&Component{Name: "r.rule", Kind: KindRule, Requires: []string{"c.x"}, Optional: []string{"c.y", "c.unknown"},
			Eval: func(*Broker, Deps) (any, error) { return nil, nil }},
		constComp("unrelated", KindSpec, &Content{}),
	)

	g, err := r.DependencyGraph("r.rule")
	if err != nil {
		t.Fatalf("DependencyGraph: %v", err)
	}
	want := []string{"s.one", "p.one", "c.x", "s.two", "c.y", "r.rule"}
	if diff := cmp.Diff(want, g.Order()); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if g.Has("unrelated") || g.Has("c.unknown") {
		t.Fatalf("graph should not contain unrelated or unknown optional nodes")
	}

	var bools []string
	for _, c := range g.Select(KindCondition, KindIncident) {
		bools = append(bools, c.Name)
	}
	if diff := cmp.Diff([]string{"c.x", "c.y"}, bools); diff != "" {
		t.Fatalf("bool select mismatch (-want +got):\n%s", diff)
	}
}

func TestDependencyGraph_Errors(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(
		constComp("loop.a", KindCondition, true, "loop.b"),
		constComp("loop.b", KindCondition, true, "loop.a"),
		constComp("needs.missing", KindRule, nil, "nope"),
	)
	_, err := r.DependencyGraph("loop.a")
	kit.MustCode(t, err, perr.ErrorCodeValidation)

	_, err = r.DependencyGraph("needs.missing")
	kit.MustCode(t, err, perr.ErrorCodeNotFound)

	_, err = r.DependencyGraph("not.registered")
	kit.MustCode(t, err, perr.ErrorCodeNotFound)
}

func TestRun_SkipsUnmetAndRecordsFailures(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(
		constComp("s.absent", KindSpec, nil),
		constComp("c.never", KindCondition, true, "s.absent"),
		&Component{Name: "c.boom", Kind: KindCondition,
			Eval: func(*Broker, Deps) (any, error) { return nil, stderrs.New("boom") }},
		&Component{Name: "c.panic", Kind: KindCondition,
			Eval: func(*Broker, Deps) (any, error) { panic("kaboom") }},
		constComp("c.ok", KindCondition, false),
		constComp("c.after", KindCondition, true, "c.boom"),
	)
	g, err := r.DependencyGraph("c.never", "c.boom", "c.panic", "c.ok", "c.after")
	if err != nil {
		t.Fatalf("DependencyGraph: %v", err)
	}

	b := NewBroker(t.TempDir())
	if err := Run(context.Background(), g, b); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, n := range []string{"s.absent", "c.never", "c.boom", "c.panic", "c.after"} {
		if b.Has(n) {
			t.Fatalf("%s should have produced nothing", n)
		}
	}
	if v, ok := b.Get("c.ok"); !ok || v != false {
		t.Fatalf("c.ok = %v,%v want false,true", v, ok)
	}
	if _, ok := b.Exceptions["c.boom"]; !ok {
		t.Fatalf("c.boom error not recorded")
	}
	kit.MustCode(t, b.Exceptions["c.panic"], perr.ErrorCodePanic)
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(constComp("c.ok", KindCondition, true))
	g, _ := r.DependencyGraph("c.ok")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Run(ctx, g, NewBroker("")); !stderrs.Is(err, context.Canceled) {
		t.Fatalf("Run(cancelled) = %v, want context.Canceled", err)
	}
}

func TestResponse_IsFail(t *testing.T) {
	cases := []struct {
		r    *Response
		want bool
	}{
		{MakeFail("K", nil), true},
		{&Response{Type: ResponseGeneric, Key: "K"}, true},
		{MakePass("K", nil), false},
		{MakeInfo("K", nil), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := c.r.IsFail(); got != c.want {
			t.Fatalf("IsFail(%+v) = %v, want %v", c.r, got, c.want)
		}
	}
}

func TestShortName(t *testing.T) {
	if got := ShortName("examples.rules.bash.old_bash"); got != "old_bash" {
		t.Fatalf("ShortName = %q", got)
	}
	if got := ShortName("plain"); got != "plain" {
		t.Fatalf("ShortName(plain) = %q", got)
	}
}
