package metis

import (
	"testing"
)

func evalText(t *testing.T, env *Environment, text string, expected any) any {
	t.Helper()
	var typ = TypeAny
	switch expected.(type) {
	case bool:
		typ = TypeBool
	case string:
		typ = TypeString
	case int:
		typ = TypeInt
	}
	h, err := env.Evaluator().CreateValueHandle(env, text, typ)
	if err != nil {
		t.Fatalf("compile %q: %v", text, err)
	}
	v, err := h.Evaluate(env)
	if err != nil {
		t.Fatalf("evaluate %q: %v", text, err)
	}
	return v
}

func TestExprEvaluatorResolvesVariables(t *testing.T) {
	env := NewEnvironment()
	env.SetAttribute("count", 3)
	env.SetAttribute("user", map[string]any{"name": "ada"})

	if v := evalText(t, env, "count * 2", 0); v != 6 {
		t.Fatalf("count * 2 = %v", v)
	}
	if v := evalText(t, env, `user.name == "ada"`, false); v != true {
		t.Fatalf("member access = %v", v)
	}
	if v := evalText(t, env, "Hello ${user.name}, ${count} items", ""); v != "Hello ada, 3 items" {
		t.Fatalf("interpolation = %q", v)
	}
	if v := evalText(t, env, "undefined == nil", false); v != true {
		t.Fatalf("undefined identifiers should be nil, got %v", v)
	}
}

func TestExprEvaluatorCoercion(t *testing.T) {
	env := NewEnvironment()
	env.SetAttribute("flag", "true")
	env.SetAttribute("n", 2.0)
	if v := evalText(t, env, "flag", false); v != true {
		t.Fatalf("string flag coerced to %v", v)
	}
	if v := evalText(t, env, "n", 0); v != 2 {
		t.Fatalf("float coerced to %v (%T)", v, v)
	}
	if v := evalText(t, env, "n", ""); v != "2" {
		t.Fatalf("float as string = %q", v)
	}
	h, err := env.Evaluator().CreateValueHandle(env, `"abc"`, TypeBool)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := h.Evaluate(env); err == nil {
		t.Fatalf("expected coercion error for non-boolean string")
	}
}

func TestExprEvaluatorCompileErrors(t *testing.T) {
	env := NewEnvironment()
	for _, text := range []string{"", "1 +", "${unterminated"} {
		if _, err := env.Evaluator().CreateValueHandle(env, text, TypeAny); err == nil {
			t.Fatalf("expected compile error for %q", text)
		}
	}
}

func TestExprEvaluatorSeesLaterBindings(t *testing.T) {
	env := NewEnvironment()
	h, err := env.Evaluator().CreateValueHandle(env, "x + 1", TypeInt)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env.SetAttribute("x", 1)
	if v, _ := h.Evaluate(env); v != 2 {
		t.Fatalf("first evaluation = %v", v)
	}
	env.SetAttribute("x", 10)
	if v, _ := h.Evaluate(env); v != 11 {
		t.Fatalf("handles must be re-evaluatable, got %v", v)
	}
}

func TestExprFunctions(t *testing.T) {
	env := NewEnvironment()
	env.SetAttribute("greeting", "hi")
	fn, err := env.Evaluator().CreateFunctionHandle(env, `greeting + " " + who`, []string{"who"})
	if err != nil {
		t.Fatalf("compile function: %v", err)
	}
	env.FunctionResolver().Bind("str", "greet", fn)
	env.FunctionResolver().Bind("", "twice", mustFunction(t, env, "n * 2", "n"))

	if v := evalText(t, env, `str_greet("bob")`, ""); v != "hi bob" {
		t.Fatalf("str_greet = %q", v)
	}
	if v := evalText(t, env, "twice(4)", 0); v != 8 {
		t.Fatalf("twice = %v", v)
	}
	if _, err := fn.Invoke(env); err == nil {
		t.Fatalf("expected arity error")
	}
}

func TestSelfReferenceReadsStoredValue(t *testing.T) {
	env := NewEnvironment()
	env.SetAttribute("n", 1)
	h, err := env.Evaluator().CreateValueHandle(env, "n + 1", TypeInt)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := env.VariableResolver().Bind("n", h); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if v, _ := env.Attribute("n"); v != 2 {
		t.Fatalf("n = %v after bind", v)
	}
	for i := 0; i < 2; i++ {
		expr, ok := env.VariableResolver().Resolve("n")
		if !ok {
			t.Fatalf("n not resolved")
		}
		if v, _ := expr.Evaluate(env); v != 2 {
			t.Fatalf("read %d of n = %v, want the stored 2", i, v)
		}
	}
	if v := evalText(t, env, "n", 0); v != 2 {
		t.Fatalf("expression read of n = %v", v)
	}
}

func TestSelfReferencingSetCounts(t *testing.T) {
	src := `<template><set name="n" value="n + 1"/><out value="n"/><text>|</text><out value="n"/><set name="n" value="n + 1"/><text>|</text><out value="n"/></template>`
	res, err := runTemplate(t, src, RunOptions{Variables: map[string]any{"n": 1}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.out != "2|2|3" {
		t.Fatalf("output = %q, want %q", res.out, "2|2|3")
	}
	if v, _ := res.env.Attribute("n"); v != 3 {
		t.Fatalf("attribute = %v", v)
	}
}

func mustFunction(t *testing.T, env *Environment, body string, params ...string) Function {
	t.Helper()
	fn, err := env.Evaluator().CreateFunctionHandle(env, body, params)
	if err != nil {
		t.Fatalf("compile function %q: %v", body, err)
	}
	return fn
}
