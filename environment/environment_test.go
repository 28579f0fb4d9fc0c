package environment

import (
	"testing"

	"github.com/lunatic-solutions/lunatic-go/mailbox"
	"github.com/lunatic-solutions/lunatic-go/process"
)

func TestEnvironmentSpawnRestrictsCapabilitiesToEnvelope(t *testing.T) {
	env := New(Config{Capabilities: []string{"lunatic::message"}})
	p := env.Spawn(1, process.Options{Capabilities: []string{"lunatic::message", "lunatic::networking"}})

	if !p.HasCapability("lunatic::message") {
		t.Error("expected lunatic::message to be granted")
	}
	if p.HasCapability("lunatic::networking") {
		t.Error("expected lunatic::networking to be stripped by the envelope")
	}
}

func TestEnvironmentSpawnWithEmptyEnvelopeAllowsAnyCapability(t *testing.T) {
	env := New(Config{})
	p := env.Spawn(1, process.Options{Capabilities: []string{"lunatic::networking"}})
	if !p.HasCapability("lunatic::networking") {
		t.Error("expected capability to pass through when envelope is unrestricted")
	}
}

func TestEnvironmentLookupAndDeregister(t *testing.T) {
	env := New(Config{})
	p := env.Spawn(42, process.Options{})

	got, ok := env.Lookup(42)
	if !ok || got != p {
		t.Fatalf("Lookup(42) = %v, %v; want %v, true", got, ok, p)
	}

	env.Deregister(42)
	if _, ok := env.Lookup(42); ok {
		t.Error("expected process to be gone after Deregister")
	}
}

func TestEnvironmentRegisterAndLookupService(t *testing.T) {
	env := New(Config{})
	env.Spawn(1, process.Options{})

	if err := env.Register("svc", "1.0.0", 1); err != nil {
		t.Fatal(err)
	}
	pid, err := env.LookupService("svc", "^1")
	if err != nil {
		t.Fatal(err)
	}
	if pid != 1 {
		t.Errorf("LookupService = %d, want 1", pid)
	}
}

func TestEnvironmentDeregisterAlsoRemovesFromRegistry(t *testing.T) {
	env := New(Config{})
	env.Spawn(1, process.Options{})
	if err := env.Register("svc", "1.0.0", 1); err != nil {
		t.Fatal(err)
	}

	env.Deregister(1)

	if _, err := env.LookupService("svc", "^1"); err == nil {
		t.Error("expected registry entry to be removed on Deregister")
	}
}

func TestEnvironmentTeardownKillsAllProcesses(t *testing.T) {
	env := New(Config{})
	p1 := env.Spawn(1, process.Options{})
	p2 := env.Spawn(2, process.Options{})

	env.Teardown()

	for _, p := range []*process.Process{p1, p2} {
		sig, err := p.Mailbox().PopSkipSearch(nil, func(s mailbox.Signal) bool {
			_, ok := s.(mailbox.Kill)
			return ok
		}, 0)
		if err != nil {
			t.Fatalf("expected a Kill signal in process %d's mailbox, got error: %v", p.ID(), err)
		}
		if _, ok := sig.(mailbox.Kill); !ok {
			t.Errorf("expected Kill signal, got %T", sig)
		}
	}
}

func TestEnvironmentProcessesSnapshot(t *testing.T) {
	env := New(Config{})
	env.Spawn(1, process.Options{})
	env.Spawn(2, process.Options{})

	ids := env.Processes()
	if len(ids) != 2 {
		t.Fatalf("Processes() returned %d ids, want 2", len(ids))
	}
}
