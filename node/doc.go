// Package node implements the distributed node transport (spec 4.G): a
// remote process handle that forwards signals to a peer node over a
// libp2p stream, and the receiving side that re-enqueues them into a
// local process's mailbox.
//
// Wire framing is deliberately minimal: an Envelope (target process id +
// one Signal) is encoded with protowire's low-level varint/length-delimited
// primitives rather than a generated .pb.go, since spec.md scopes "exact
// distributed wire framing" out and only requires the semantic message
// types to be carried faithfully.
//
// Resource handles attached to a Message do not survive the trip: only
// their Kind tag is carried across, never the live Go value behind them
// (an open socket or file has no cross-process, let alone cross-node,
// representation). This is a documented simplification, not an attempt at
// full remote resource transfer.
package node
