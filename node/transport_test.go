package node

import (
	"context"
	"testing"
	"time"

	"github.com/lunatic-solutions/lunatic-go/mailbox"
)

func TestNodeSendDeliversEnvelopeToPeer(t *testing.T) {
	received := make(chan Envelope, 1)

	nodeB, err := New(Config{Name: "b", ListenAddr: "/ip4/127.0.0.1/tcp/0"}, func(env Envelope) {
		received <- env
	}, nil)
	if err != nil {
		t.Fatalf("New(b): %v", err)
	}
	defer nodeB.Close()

	nodeA, err := New(Config{Name: "a", ListenAddr: "/ip4/127.0.0.1/tcp/0"}, nil, nil)
	if err != nil {
		t.Fatalf("New(a): %v", err)
	}
	defer nodeA.Close()

	addrs := nodeB.Addrs()
	if len(addrs) == 0 {
		t.Fatal("expected node B to advertise at least one address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rn, err := nodeA.Connect(ctx, addrs[0])
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	rp := NewRemoteProcess(rn, 99)
	rp.Send(mailbox.Message{Tag: 1, Payload: []byte("ping"), From: 5})

	select {
	case env := <-received:
		if env.TargetPID != 99 {
			t.Errorf("TargetPID = %d, want 99", env.TargetPID)
		}
		msg, ok := env.Signal.(mailbox.Message)
		if !ok || string(msg.Payload) != "ping" {
			t.Errorf("unexpected signal: %+v", env.Signal)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for envelope delivery")
	}
}

func TestRouteDeliversToKnownLocalProcess(t *testing.T) {
	var delivered mailbox.Signal
	sink := sinkFunc(func(sig mailbox.Signal) { delivered = sig })

	lookup := LookupFunc(func(id uint64) (LocalSink, bool) {
		if id == 42 {
			return sink, true
		}
		return nil, false
	})

	Route(lookup, Envelope{TargetPID: 42, Signal: mailbox.Kill{}})
	if _, ok := delivered.(mailbox.Kill); !ok {
		t.Fatalf("expected Kill to be delivered, got %v", delivered)
	}
}

func TestRouteDropsUnknownTarget(t *testing.T) {
	called := false
	lookup := LookupFunc(func(id uint64) (LocalSink, bool) {
		called = true
		return nil, false
	})
	Route(lookup, Envelope{TargetPID: 1, Signal: mailbox.Kill{}})
	if !called {
		t.Fatal("expected lookup to be consulted")
	}
}

type sinkFunc func(mailbox.Signal)

func (f sinkFunc) Send(sig mailbox.Signal) { f(sig) }
