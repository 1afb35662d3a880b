package statemap

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testStart = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("state %q is not a JSON object: %v", s, err)
	}
	return m
}

func TestCompute_NoRulesKeepsState(t *testing.T) {
	prev := `{"cursor":"abc","count":3,"nested":{"k":[1,2]}}`
	got, err := Compute(prev, nil, Context{Start: testStart})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	a, b := decode(t, prev), decode(t, got)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("state = %s, want %s", jb, ja)
	}
}

func TestCompute_LiteralRuleStoresUpdateUnderFrom(t *testing.T) {
	rules := []Rule{{From: "a", To: "b", Update: "literal"}}
	got, err := Compute(`{"b":"untouched"}`, rules, Context{Start: testStart})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	m := decode(t, got)
	if m["a"] != "literal" {
		t.Errorf(`state["a"] = %v, want "literal"`, m["a"])
	}
	if m["b"] != "untouched" {
		t.Errorf(`state["b"] = %v, want "untouched"`, m["b"])
	}
}

func TestCompute_Expressions(t *testing.T) {
	tests := []struct {
		name   string
		update string
		want   string
	}{
		{"format_date", `$format_date(start_date, "%Y-%m-%d")`, "2025-03-15"},
		{"sub_days", `$format_date(sub_days(start_date, 7), "%Y-%m-%d")`, "2025-03-08"},
		{"method form", `$start_date.sub_days(1).format_date("%d/%m/%Y")`, "14/03/2025"},
		{"concatenation", `$"since:" + format_date(start_date, "%Y")`, "since:2025"},
		{"string plus integer", `$"page-" + (2 * 3 - 1)`, "page-5"},
		{"unary minus", `$format_date(sub_days(start_date, -1), "%d")`, "16"},
		{"string literal", `$"fixed"`, "fixed"},
		{"char literal", `$'x' + "y"`, "xy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []Rule{{From: "v", To: "_", Update: tt.update}}
			got, err := Compute(`{}`, rules, Context{Start: testStart})
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if v := decode(t, got)["v"]; v != tt.want {
				t.Errorf("v = %v, want %q", v, tt.want)
			}
		})
	}
}

func TestCompute_RulesOverwriteInOrder(t *testing.T) {
	rules := []Rule{
		{From: "k", Update: `$"first"`},
		{From: "k", Update: `$"second"`},
	}
	got, err := Compute(`{"k":"old"}`, rules, Context{Start: testStart})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if v := decode(t, got)["k"]; v != "second" {
		t.Errorf("k = %v, want second", v)
	}
}

func TestCompute_ExpressionErrors(t *testing.T) {
	tests := []struct {
		name   string
		update string
	}{
		{"integer result", `$1 + 2`},
		{"timestamp result", `$start_date`},
		{"unknown function", `$exec("rm -rf /")`},
		{"unknown variable", `$os`},
		{"selector without call", `$start_date.Year`},
		{"syntax error", `$format_date(`},
		{"wrong arity", `$format_date(start_date)`},
		{"wrong argument type", `$sub_days(start_date, "1")`},
		{"unsupported operator", `$"a" - "b"`},
		{"index expression", `$"abc"[0]`},
		{"float literal", `$"x" + 1.5`},
		{"empty", `$`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []Rule{{From: "ok", Update: "lit"}, {From: "v", Update: tt.update}}
			got, err := Compute(`{}`, rules, Context{Start: testStart})
			if !errors.Is(err, ErrExpression) {
				t.Fatalf("err = %v, want ErrExpression", err)
			}
			if got != "" {
				t.Errorf("partial state returned: %q", got)
			}
		})
	}
}

func TestCompute_LiteralRuleOnEmptyState(t *testing.T) {
	got, err := Compute(`{}`, []Rule{{From: "a", To: "b", Update: "literal"}}, Context{Start: testStart})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != `{"a":"literal"}` {
		t.Errorf("state = %s, want {\"a\":\"literal\"}", got)
	}
}

func TestCompute_RunDateFromStart(t *testing.T) {
	rules := []Rule{{From: "runDate", To: "_", Update: `$format_date(start_date, "%Y-%m-%d")`}}
	got, err := Compute(`{"runDate":"2025-01-01"}`, rules, Context{Start: testStart})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if v := decode(t, got)["runDate"]; v != testStart.Format("2006-01-02") {
		t.Errorf("runDate = %v, want %s", v, testStart.Format("2006-01-02"))
	}
}

func TestCompute_InvalidState(t *testing.T) {
	for _, prev := range []string{``, `null`, `[]`, `"s"`, `{broken`} {
		_, err := Compute(prev, nil, Context{Start: testStart})
		if !errors.Is(err, ErrInvalidState) {
			t.Errorf("Compute(%q) err = %v, want ErrInvalidState", prev, err)
		}
	}
}

func TestEval_Limits(t *testing.T) {
	ev := newEvaluator(testStart)
	long := make([]byte, maxExprLen+1)
	for i := range long {
		long[i] = '1'
	}
	if _, err := ev.Eval(string(long)); err == nil {
		t.Error("expected error for oversized expression")
	}

	deep := ""
	for range maxExprDepth + 2 {
		deep += "("
	}
	deep += `"x"`
	for range maxExprDepth + 2 {
		deep += ")"
	}
	if _, err := ev.Eval(deep); err == nil {
		t.Error("expected error for deeply nested expression")
	}
}

func TestLookup(t *testing.T) {
	v, ok, err := Lookup(`{"since":"2025-01-01"}`, "since")
	if err != nil || !ok || string(v) != `"2025-01-01"` {
		t.Errorf("Lookup = %s, %v, %v", v, ok, err)
	}
	if _, ok, _ := Lookup(`{}`, "since"); ok {
		t.Error("Lookup on empty state reported a value")
	}
}
