package node

import (
	"context"
	"io"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
)

// signalProtocol is the libp2p stream protocol ID envelopes are exchanged
// over, grounded on the teacher corpus's own packet-protocol convention
// ("/packet/1.0.0").
const signalProtocol = "/lunatic/signal/1.0.0"

// Node wraps a libp2p host, exposing the minimal surface spec 4.G needs:
// dialing a peer by multiaddr and registering a handler for inbound
// envelopes.
type Node struct {
	host libp2phost.Host
	Name string

	mu        sync.Mutex
	peers     map[peer.ID]*RemoteNode
	peerOrder []peer.ID
}

// Config configures a new Node.
type Config struct {
	// Name labels this node in the CLI's startup output and in transport
	// errors (spec 6's --node-name); it is not sent to peers.
	Name string
	// ListenAddr is a multiaddr this node binds to, e.g.
	// "/ip4/0.0.0.0/tcp/4001". Empty uses libp2p's default listen
	// addresses (ephemeral ports on all interfaces).
	ListenAddr string
	// Identity is this node's static libp2p private key. A fresh Ed25519
	// key is generated when nil.
	Identity crypto.PrivKey
}

// New starts a libp2p host and installs the signal and lookup stream
// handlers. onRecv is called once per inbound envelope, from the handler's
// own goroutine. lookupSvc answers peers' distributed lookup requests
// against this node's own registry; nil means this node offers no
// services for peers to discover (a lookup request always answers "not
// found").
func New(cfg Config, onRecv func(Envelope), lookupSvc LookupServiceFunc) (*Node, error) {
	opts := []libp2p.Option{}
	if cfg.ListenAddr != "" {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddr))
	}
	if cfg.Identity != nil {
		opts = append(opts, libp2p.Identity(cfg.Identity))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, lunaticerrors.NewTransportError(lunaticerrors.TransportPeerUnreachable, cfg.Name, err)
	}

	n := &Node{
		host:  h,
		Name:  cfg.Name,
		peers: make(map[peer.ID]*RemoteNode),
	}

	h.SetStreamHandler(signalProtocol, func(s network.Stream) {
		defer s.Close()
		data, err := io.ReadAll(s)
		if err != nil {
			Logger().Sugar().Warnw("node: failed reading inbound stream", "error", err)
			return
		}
		env, err := DecodeEnvelope(data)
		if err != nil {
			Logger().Sugar().Warnw("node: dropping malformed envelope", "error", err)
			return
		}
		if onRecv != nil {
			onRecv(env)
		}
	})

	h.SetStreamHandler(lookupProtocol, func(s network.Stream) {
		handleLookupStream(lookupSvc, s)
	})

	return n, nil
}

// Addrs returns this node's listen multiaddrs joined with its peer id, the
// form a remote node passes to --peer.
func (n *Node) Addrs() []string {
	id := n.host.ID().String()
	out := make([]string, 0, len(n.host.Addrs()))
	for _, a := range n.host.Addrs() {
		out = append(out, a.String()+"/p2p/"+id)
	}
	return out
}

// Close shuts down the underlying libp2p host.
func (n *Node) Close() error {
	return n.host.Close()
}

// Connect dials a peer by its full multiaddr (including /p2p/<id>) and
// returns a handle used to forward envelopes to it. Only peers dialed
// through Connect are recorded and used for remote sends and lookups; no
// further peers are discovered through a connected one.
func (n *Node) Connect(ctx context.Context, addr string) (*RemoteNode, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, lunaticerrors.NewTransportError(lunaticerrors.TransportPeerUnreachable, addr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, lunaticerrors.NewTransportError(lunaticerrors.TransportPeerUnreachable, addr, err)
	}
	if err := n.host.Connect(ctx, *info); err != nil {
		return nil, lunaticerrors.NewTransportError(lunaticerrors.TransportPeerUnreachable, addr, err)
	}

	rn := &RemoteNode{node: n, peerID: info.ID}
	n.mu.Lock()
	if _, exists := n.peers[info.ID]; !exists {
		n.peerOrder = append(n.peerOrder, info.ID)
	}
	n.peers[info.ID] = rn
	n.mu.Unlock()
	return rn, nil
}

// peerIndex returns the stable position id was first Connect-ed at, the
// value LookupRemote embeds into a node-qualified pid so a later
// ResolveRemote call can find its way back to the same RemoteNode.
func (n *Node) peerIndex(id peer.ID) (uint32, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, p := range n.peerOrder {
		if p == id {
			return uint32(i), true
		}
	}
	return 0, false
}

// peerByIndex is peerIndex's inverse.
func (n *Node) peerByIndex(idx uint32) (*RemoteNode, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if int(idx) >= len(n.peerOrder) {
		return nil, false
	}
	rn, ok := n.peers[n.peerOrder[idx]]
	return rn, ok
}

// RemoteNode is a live connection to a peer node, used to send envelopes
// to processes hosted there.
type RemoteNode struct {
	node   *Node
	peerID peer.ID
}

// Send serialises env and writes it to a fresh stream to this peer.
// Delivery is best-effort: a peer that has crashed or become unreachable
// yields a TransportError rather than blocking indefinitely, per spec
// 4.G's "known limitation" on link-broken notification guarantees.
func (rn *RemoteNode) Send(ctx context.Context, env Envelope) error {
	data, err := EncodeEnvelope(env)
	if err != nil {
		return lunaticerrors.NewTransportError(lunaticerrors.TransportSerializationError, rn.peerID.String(), err)
	}

	s, err := rn.node.host.NewStream(ctx, rn.peerID, signalProtocol)
	if err != nil {
		return lunaticerrors.NewTransportError(lunaticerrors.TransportPeerDisconnected, rn.peerID.String(), err)
	}
	defer s.Close()

	if _, err := s.Write(data); err != nil {
		return lunaticerrors.NewTransportError(lunaticerrors.TransportPeerDisconnected, rn.peerID.String(), err)
	}
	return nil
}

// PeerID returns the remote node's libp2p peer id string.
func (rn *RemoteNode) PeerID() string {
	return rn.peerID.String()
}
