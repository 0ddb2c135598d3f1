package metis

import (
	"errors"
	"testing"
)

type ownerToken struct{ name string }

func TestAttributeShadowing(t *testing.T) {
	root := NewEnvironment()
	root.SetAttribute("x", 1)
	tok := &ownerToken{"child"}
	child, err := root.EnterChildContext(tok)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	child.SetAttribute("x", 2)
	if v, _ := child.Attribute("x"); v != 2 {
		t.Fatalf("child sees %v, want 2", v)
	}
	if v, _ := root.Attribute("x"); v != 1 {
		t.Fatalf("root sees %v, want 1", v)
	}
	parent, err := child.ExitChildContext(tok)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if parent != root {
		t.Fatalf("exit returned %p, want root %p", parent, root)
	}
	if v, _ := root.Attribute("x"); v != 1 {
		t.Fatalf("root changed to %v after child exit", v)
	}
}

func TestAttributeNilVersusAbsent(t *testing.T) {
	root := NewEnvironment()
	root.SetAttribute("x", "outer")
	child, _ := root.EnterChildContext(&ownerToken{})
	child.SetAttribute("x", nil)

	v, ok := child.Attribute("x")
	if !ok || v != nil {
		t.Fatalf("nil attribute should resolve locally, got %v, %v", v, ok)
	}
	child.RemoveAttribute("x")
	if v, ok := child.Attribute("x"); !ok || v != "outer" {
		t.Fatalf("removed attribute should fall through, got %v, %v", v, ok)
	}
	if _, ok := child.Attribute("nope"); ok {
		t.Fatalf("absent attribute reported present")
	}
}

func TestOwnerTokenDiscipline(t *testing.T) {
	root := NewEnvironment()
	owner := &ownerToken{"owner"}
	child, err := root.EnterChildContext(owner)
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if root.OpenScopes() != 1 || child.Depth() != 1 {
		t.Fatalf("open=%d depth=%d", root.OpenScopes(), child.Depth())
	}

	if _, err := child.ExitChildContext(&ownerToken{"owner"}); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("foreign token should be rejected, got %v", err)
	}
	if root.OpenScopes() != 1 {
		t.Fatalf("failed exit must keep scope open")
	}
	if _, err := child.ExitChildContext(owner); err != nil {
		t.Fatalf("exit: %v", err)
	}
	if _, err := child.ExitChildContext(owner); !errors.Is(err, ErrScopeClosed) {
		t.Fatalf("second exit should fail with ErrScopeClosed, got %v", err)
	}
	if root.OpenScopes() != 0 {
		t.Fatalf("open scopes = %d", root.OpenScopes())
	}
	if _, err := root.ExitChildContext(owner); !errors.Is(err, ErrScopeClosed) {
		t.Fatalf("root exit should fail, got %v", err)
	}
}

func TestExitRequiresNestedScopesClosed(t *testing.T) {
	root := NewEnvironment()
	outer := &ownerToken{"outer"}
	inner := &ownerToken{"inner"}
	child, _ := root.EnterChildContext(outer)
	grandchild, _ := child.EnterChildContext(inner)

	if _, err := child.ExitChildContext(outer); !errors.Is(err, ErrScopesOpen) || !IsType(err, ErrScope) {
		t.Fatalf("exit with an open grandchild should fail, got %v", err)
	}
	if root.OpenScopes() != 1 {
		t.Fatalf("rejected exit closed the scope")
	}
	if _, err := grandchild.ExitChildContext(inner); err != nil {
		t.Fatalf("exit grandchild: %v", err)
	}
	if parent, err := child.ExitChildContext(outer); err != nil || parent != root {
		t.Fatalf("exit child: %v", err)
	}
	if root.OpenScopes() != 0 {
		t.Fatalf("open scopes = %d", root.OpenScopes())
	}
}

func TestEnterRejectsInvalidTokens(t *testing.T) {
	root := NewEnvironment()
	if _, err := root.EnterChildContext(nil); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("nil token: %v", err)
	}
	if _, err := root.EnterChildContext([]int{1}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("slice token: %v", err)
	}
	if root.OpenScopes() != 0 {
		t.Fatalf("rejected enter opened a scope")
	}
}

func TestWithChildContextAlwaysExits(t *testing.T) {
	root := NewEnvironment()
	boom := errors.New("boom")
	err := root.WithChildContext(&ownerToken{}, func(child *Environment) error {
		child.SetAttribute("y", 1)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if root.OpenScopes() != 0 {
		t.Fatalf("scope left open after error")
	}
	if _, ok := root.Attribute("y"); ok {
		t.Fatalf("child attribute leaked to root")
	}

	func() {
		defer func() { _ = recover() }()
		_ = root.WithChildContext(&ownerToken{}, func(*Environment) error { panic("bad") })
	}()
	if root.OpenScopes() != 0 {
		t.Fatalf("scope left open after panic")
	}
}

func TestChildSharesConfiguration(t *testing.T) {
	lib := NewLibrary("custom")
	root := NewEnvironment(WithLibrary(lib))
	child, _ := root.EnterChildContext(&ownerToken{})
	if child.Library() != lib || child.Evaluator() != root.Evaluator() {
		t.Fatalf("child does not share root configuration")
	}
	if root.Compiler() != nil {
		t.Fatalf("compiler should be unset by default")
	}
}

func TestServicesForwardToRoot(t *testing.T) {
	services := NewServiceMap().Add("clock", "utc-clock", map[string]string{"zone": "utc"})
	root := NewEnvironment(WithServices(services))
	child, _ := root.EnterChildContext(&ownerToken{})
	grandchild, _ := child.EnterChildContext(&ownerToken{})

	svc, err := grandchild.AcquireService("clock", "zone=utc")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if svc != "utc-clock" || services.References(svc) != 1 {
		t.Fatalf("svc=%v refs=%d", svc, services.References(svc))
	}
	if err := grandchild.ReleaseService(svc); err != nil {
		t.Fatalf("release: %v", err)
	}
	if services.References(svc) != 0 {
		t.Fatalf("reference not released")
	}
	if _, err := NewEnvironment().AcquireService("clock", ""); !errors.Is(err, ErrNoServices) {
		t.Fatalf("expected ErrNoServices, got %v", err)
	}
}
