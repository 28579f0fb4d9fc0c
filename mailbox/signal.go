// Package mailbox implements the per-process signal queue: an ordered
// sequence of Signals supporting tag-based selective receive, with Kill
// signals able to preempt a blocked receive unconditionally.
package mailbox

import "github.com/lunatic-solutions/lunatic-go/resource"

// Reason is the termination reason carried by LinkDied and MonitorDied.
type Reason struct {
	// "normal", "trap", "killed" or "cancelled". Empty string means "normal".
	Kind    string
	Message string
}

// Normal reports whether this reason represents an ordinary exit.
func (r Reason) Normal() bool {
	return r.Kind == "" || r.Kind == "normal"
}

// Signal is any value a process's mailbox can hold: a data-carrying
// Message, or one of the supervision signals (Link, Unlink, Kill,
// LinkDied, Monitor, MonitorDied). Only Message participates in tag-based
// selective receive; the others never match a tag filter and are seen only
// by receivers whose predicate accepts them (Kill matches every receive).
type Signal interface {
	isSignal()
}

// Message is a tagged data signal with an optional list of resource
// handles being transferred from the sender's resource table to the
// receiver's. Tag is used for selective receive; a zero tag is a valid,
// ordinary tag distinct from "no filter".
type Message struct {
	Tag       int64
	Payload   []byte
	Resources []TransferredResource
	From      uint64
}

// TransferredResource pairs a resource's kind with the value moved out of
// the sender's table. It stays intact (not yet inserted anywhere) until
// the receiver dequeues the Message, per spec 3's "moves on dequeue" rule.
type TransferredResource struct {
	Kind  resource.Kind
	Value any
}

func (Message) isSignal() {}

// Link notifies the receiver that From has linked to it.
type Link struct{ From uint64 }

func (Link) isSignal() {}

// Unlink notifies the receiver that From has unlinked from it.
type Unlink struct{ From uint64 }

func (Unlink) isSignal() {}

// Kill is an un-maskable signal: it preempts any blocked receive
// unconditionally and causes the receiving process to terminate.
type Kill struct{}

func (Kill) isSignal() {}

// LinkDied is delivered to every process linked to a process that just
// terminated, carrying its id and termination reason.
type LinkDied struct {
	From   uint64
	Reason Reason
}

func (LinkDied) isSignal() {}

// Monitor notifies the receiver that From is now monitoring it.
type Monitor struct{ From uint64 }

func (Monitor) isSignal() {}

// MonitorDied is delivered to a monitoring process when the monitored
// process terminates.
type MonitorDied struct {
	From   uint64
	Reason Reason
}

func (MonitorDied) isSignal() {}
