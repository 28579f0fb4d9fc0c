package mailbox

import (
	"context"
	"sync"
	"time"

	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
	"github.com/lunatic-solutions/lunatic-go/resource"
)

// waiter is a suspended receiver: Push delivers a matching Signal directly
// through ch rather than appending it to the queue, mirroring the Rust
// implementation's waker registered against InnerMessageMailbox.
type waiter struct {
	match func(Signal) bool
	ch    chan Signal
}

// Mailbox is a process's thread-safe signal queue. Zero value is not
// usable; construct with New.
type Mailbox struct {
	mu      sync.Mutex
	queue   []Signal
	waiters []*waiter
	closed  bool
}

// New creates an empty mailbox.
func New() *Mailbox {
	return &Mailbox{}
}

// alwaysMatches wraps a caller predicate so that a Kill signal always
// satisfies it. This is the mailbox-level enforcement of spec's "Kill
// preempts receive" invariant: callers never need to remember to special
// case Kill in their own predicates.
func alwaysMatches(match func(Signal) bool) func(Signal) bool {
	return func(s Signal) bool {
		if _, ok := s.(Kill); ok {
			return true
		}
		if match == nil {
			return true
		}
		return match(s)
	}
}

// Push enqueues a signal, non-blocking. If a suspended receiver's
// predicate matches, the signal is delivered directly to it instead of
// entering the backlog. Push on a closed mailbox is a silent no-op,
// matching spec 3's "dereference-on-send fails silently if the target is
// terminated" rule at the mailbox boundary.
func (m *Mailbox) Push(sig Signal) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if _, isKill := sig.(Kill); isKill {
		delivered := false
		for _, w := range m.waiters {
			select {
			case w.ch <- sig:
				delivered = true
			default:
			}
		}
		m.waiters = nil
		if !delivered {
			m.queue = append(m.queue, sig)
		}
		m.mu.Unlock()
		return
	}

	for i, w := range m.waiters {
		if w.match(sig) {
			w.ch <- sig
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			m.mu.Unlock()
			return
		}
	}

	m.queue = append(m.queue, sig)
	m.mu.Unlock()
}

// Pop performs a selective receive: it scans the existing backlog from the
// head for the first Signal satisfying match (nil matches anything), and
// if none is found, suspends until one arrives, ctx is cancelled, or
// timeout elapses. A negative timeout waits indefinitely. Non-matching
// entries encountered during the scan are left at their positions.
func (m *Mailbox) Pop(ctx context.Context, match func(Signal) bool, timeout time.Duration) (Signal, error) {
	return m.pop(ctx, match, timeout, false)
}

// PopSkipSearch is the RPC fast path: it does not scan the existing
// backlog for a match (only for an already-queued Kill, which must always
// preempt), and instead waits only for a newly arriving signal. Use this
// when the caller just sent a request under a freshly generated tag and
// knows no reply for it can already be queued.
func (m *Mailbox) PopSkipSearch(ctx context.Context, match func(Signal) bool, timeout time.Duration) (Signal, error) {
	return m.pop(ctx, match, timeout, true)
}

func (m *Mailbox) pop(ctx context.Context, match func(Signal) bool, timeout time.Duration, skipSearch bool) (Signal, error) {
	full := alwaysMatches(match)

	m.mu.Lock()
	if !skipSearch {
		for i, sig := range m.queue {
			if full(sig) {
				m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return sig, nil
			}
		}
	} else {
		for i, sig := range m.queue {
			if _, ok := sig.(Kill); ok {
				m.queue = append(m.queue[:i:i], m.queue[i+1:]...)
				m.mu.Unlock()
				return sig, nil
			}
		}
	}

	if m.closed {
		m.mu.Unlock()
		return nil, lunaticerrors.NewMailboxError(lunaticerrors.MailboxNoSenders)
	}

	w := &waiter{match: full, ch: make(chan Signal, 1)}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	if timeout < 0 {
		select {
		case sig := <-w.ch:
			return sig, nil
		case <-ctx.Done():
			m.removeWaiter(w)
			return nil, ctx.Err()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-w.ch:
		return sig, nil
	case <-timer.C:
		m.removeWaiter(w)
		return nil, lunaticerrors.NewMailboxError(lunaticerrors.MailboxTimeout)
	case <-ctx.Done():
		m.removeWaiter(w)
		return nil, ctx.Err()
	}
}

func (m *Mailbox) removeWaiter(target *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.waiters {
		if w == target {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// Len returns the number of signals currently queued (not counting
// suspended waiters).
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// IsEmpty reports whether the backlog is empty.
func (m *Mailbox) IsEmpty() bool {
	return m.Len() == 0
}

// Close marks the mailbox closed: further Push calls are no-ops and any
// suspended Pop returns MailboxError{NoSenders} once it re-scans on the
// next call. Existing waiters are left to time out or be cancelled by
// their caller's context, mirroring how a process's own goroutine exit
// unwinds its pending receive.
//
// Any Message signals still sitting unread in the backlog are drained and
// every resource they carry is dropped, the mailbox-queue counterpart to
// resource.LocalBackend.Close's sweep over a process's own resource table:
// a resource attached to a message nobody ever read must still be released
// exactly once, not leaked.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	backlog := m.queue
	m.queue = nil
	m.mu.Unlock()

	for _, sig := range backlog {
		msg, ok := sig.(Message)
		if !ok {
			continue
		}
		for _, r := range msg.Resources {
			if d, ok := r.Value.(resource.Dropper); ok {
				d.Drop()
			}
		}
	}
}
