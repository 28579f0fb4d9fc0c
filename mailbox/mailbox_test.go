package mailbox

import (
	"context"
	"testing"
	"time"

	"github.com/lunatic-solutions/lunatic-go/resource"
)

func TestPopNoTagsReturnsFirst(t *testing.T) {
	m := New()
	m.Push(Message{Tag: 0, Payload: []byte("a")})
	m.Push(Message{Tag: 0, Payload: []byte("b")})

	sig, err := m.Pop(context.Background(), nil, -1)
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	msg, ok := sig.(Message)
	if !ok || string(msg.Payload) != "a" {
		t.Fatalf("got %#v, want message a", sig)
	}
}

func matchTag(tag int64) func(Signal) bool {
	return func(s Signal) bool {
		m, ok := s.(Message)
		return ok && m.Tag == tag
	}
}

func TestSelectiveReceiveOrdering(t *testing.T) {
	m := New()
	m.Push(Message{Tag: 1, Payload: []byte("A1")})
	m.Push(Message{Tag: 2, Payload: []byte("B")})
	m.Push(Message{Tag: 3, Payload: []byte("C")})
	m.Push(Message{Tag: 1, Payload: []byte("A2")})

	sig, err := m.Pop(context.Background(), matchTag(3), -1)
	if err != nil {
		t.Fatal(err)
	}
	if string(sig.(Message).Payload) != "C" {
		t.Fatalf("expected C, got %v", sig)
	}

	sig, err = m.Pop(context.Background(), matchTag(1), -1)
	if err != nil {
		t.Fatal(err)
	}
	if string(sig.(Message).Payload) != "A1" {
		t.Fatalf("expected A1, got %v", sig)
	}

	sig, err = m.Pop(context.Background(), matchTag(1), -1)
	if err != nil {
		t.Fatal(err)
	}
	if string(sig.(Message).Payload) != "A2" {
		t.Fatalf("expected A2, got %v", sig)
	}

	if m.Len() != 1 {
		t.Fatalf("expected B to remain queued, len=%d", m.Len())
	}
}

func TestWaitingOnTagWakesOnPush(t *testing.T) {
	m := New()
	done := make(chan Signal, 1)
	go func() {
		sig, err := m.Pop(context.Background(), matchTag(9), -1)
		if err != nil {
			t.Error(err)
			return
		}
		done <- sig
	}()

	time.Sleep(20 * time.Millisecond)
	m.Push(Message{Tag: 9, Payload: []byte("hi")})

	select {
	case sig := <-done:
		if string(sig.(Message).Payload) != "hi" {
			t.Fatalf("unexpected payload: %v", sig)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop never returned")
	}
}

func TestKillPreemptsSelectiveReceive(t *testing.T) {
	m := New()
	done := make(chan error, 1)
	go func() {
		_, err := m.Pop(context.Background(), matchTag(42), -1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	m.Push(Kill{})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Pop returned error instead of Kill signal: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Kill did not preempt receive")
	}
}

func TestPopTimeout(t *testing.T) {
	m := New()
	_, err := m.Pop(context.Background(), matchTag(1), 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestPopSkipSearchIgnoresBacklog(t *testing.T) {
	m := New()
	m.Push(Message{Tag: 7, Payload: []byte("stale")})

	done := make(chan Signal, 1)
	go func() {
		sig, err := m.PopSkipSearch(context.Background(), matchTag(7), -1)
		if err != nil {
			t.Error(err)
			return
		}
		done <- sig
	}()

	time.Sleep(20 * time.Millisecond)
	m.Push(Message{Tag: 7, Payload: []byte("fresh")})

	select {
	case sig := <-done:
		if string(sig.(Message).Payload) != "fresh" {
			t.Fatalf("expected fresh reply, got %v", sig)
		}
	case <-time.After(time.Second):
		t.Fatal("PopSkipSearch never returned")
	}

	if m.Len() != 1 {
		t.Fatalf("expected stale message to remain queued, len=%d", m.Len())
	}
}

type droppableResource struct{ dropped *bool }

func (d droppableResource) Drop() { *d.dropped = true }

func TestCloseDropsUnreadTransferredResources(t *testing.T) {
	m := New()
	dropped := false
	m.Push(Message{
		Tag:     1,
		Payload: []byte("carries a resource"),
		Resources: []TransferredResource{
			{Kind: resource.Kind(1), Value: droppableResource{dropped: &dropped}},
		},
	})

	m.Close()

	if !dropped {
		t.Fatal("expected unread resource to be dropped on Close")
	}
}

func TestCancellationSafety(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Pop(ctx, matchTag(1), -1)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not observe cancellation")
	}
}
