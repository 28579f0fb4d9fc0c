package environment

import (
	"testing"

	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
)

func TestRegistryLookupHighestSatisfyingVersion(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("svc", "1.0.0", 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("svc", "1.5.0", 2); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("svc", "2.0.0", 3); err != nil {
		t.Fatal(err)
	}

	pid, err := r.Lookup("svc", "^1")
	if err != nil {
		t.Fatal(err)
	}
	if pid != 2 {
		t.Errorf("Lookup(^1) = %d, want 2 (highest 1.x)", pid)
	}

	pid, err = r.Lookup("svc", "^2")
	if err != nil {
		t.Fatal(err)
	}
	if pid != 3 {
		t.Errorf("Lookup(^2) = %d, want 3", pid)
	}
}

func TestRegistryLookupTieBreaksOnMostRecentlyRegistered(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("svc", "1.0.0", 1); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("svc", "1.0.0", 2); err != nil {
		t.Fatal(err)
	}

	pid, err := r.Lookup("svc", "^1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if pid != 2 {
		t.Errorf("Lookup tie-break = %d, want 2 (most recently registered)", pid)
	}
}

func TestRegistryLookupNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup("missing", "^1"); err == nil {
		t.Fatal("expected error for unknown name")
	} else if re, ok := err.(*lunaticerrors.RegistryError); !ok || re.Kind != lunaticerrors.RegistryNotFound {
		t.Errorf("expected RegistryNotFound, got %v", err)
	}
}

func TestRegistryLookupNoSatisfyingVersion(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("svc", "1.0.0", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Lookup("svc", "^2"); err == nil {
		t.Fatal("expected error when no version satisfies requirement")
	}
}

func TestRegistryRegisterInvalidVersion(t *testing.T) {
	r := NewRegistry()
	err := r.Register("svc", "not-a-version", 1)
	if err == nil {
		t.Fatal("expected error for invalid version string")
	}
	re, ok := err.(*lunaticerrors.RegistryError)
	if !ok || re.Kind != lunaticerrors.RegistryVersionParseError {
		t.Errorf("expected RegistryVersionParseError, got %v", err)
	}
}

func TestRegistryUnregisterRemovesAcrossAllNames(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("a", "1.0.0", 7); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("b", "1.0.0", 7); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("b", "2.0.0", 8); err != nil {
		t.Fatal(err)
	}

	r.Unregister(7)

	if _, err := r.Lookup("a", "^1"); err == nil {
		t.Error("expected name \"a\" to have no entries left")
	}
	pid, err := r.Lookup("b", "^2")
	if err != nil {
		t.Fatal(err)
	}
	if pid != 8 {
		t.Errorf("Lookup(b) after unregister = %d, want 8", pid)
	}
}
