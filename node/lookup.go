package node

import (
	"context"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/network"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lunatic-solutions/lunatic-go/hostabi"
)

// lookupProtocol carries a one-shot name+requirement query to a peer's
// registry and its yes/no+pid answer back, the request/response
// counterpart to signalProtocol's fire-and-forget envelope push.
const lookupProtocol = "/lunatic/lookup/1.0.0"

// LookupServiceFunc answers a peer's distributed lookup request against
// this node's own environment.Registry. A caller wires this to
// environment.Environment.LookupService with a small adapter, mirroring
// LookupFunc's role for inbound envelopes.
type LookupServiceFunc func(name, requirement string) (uint64, bool)

const (
	lookupFieldName = 1
	lookupFieldReq  = 2
)

func encodeLookupRequest(name, requirement string) []byte {
	var b []byte
	b = protowire.AppendTag(b, lookupFieldName, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(name))
	b = protowire.AppendTag(b, lookupFieldReq, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(requirement))
	return b
}

func decodeLookupRequest(data []byte) (name, requirement string, err error) {
	for len(data) > 0 {
		num, _, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", "", fmt.Errorf("node: malformed lookup request tag")
		}
		data = data[n:]
		switch num {
		case lookupFieldName:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return "", "", fmt.Errorf("node: malformed lookup request name")
			}
			name = string(v)
			data = data[n:]
		case lookupFieldReq:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return "", "", fmt.Errorf("node: malformed lookup request requirement")
			}
			requirement = string(v)
			data = data[n:]
		default:
			return "", "", fmt.Errorf("node: unknown lookup request field %d", num)
		}
	}
	return name, requirement, nil
}

const (
	lookupRespFieldFound = 1
	lookupRespFieldPID   = 2
)

func encodeLookupResponse(found bool, pid uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, lookupRespFieldFound, protowire.VarintType)
	v := uint64(0)
	if found {
		v = 1
	}
	b = protowire.AppendVarint(b, v)
	if found {
		b = protowire.AppendTag(b, lookupRespFieldPID, protowire.VarintType)
		b = protowire.AppendVarint(b, pid)
	}
	return b
}

func decodeLookupResponse(data []byte) (found bool, pid uint64, err error) {
	for len(data) > 0 {
		num, _, n := protowire.ConsumeTag(data)
		if n < 0 {
			return false, 0, fmt.Errorf("node: malformed lookup response tag")
		}
		data = data[n:]
		switch num {
		case lookupRespFieldFound:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return false, 0, fmt.Errorf("node: malformed lookup response found flag")
			}
			found = v != 0
			data = data[n:]
		case lookupRespFieldPID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return false, 0, fmt.Errorf("node: malformed lookup response pid")
			}
			pid = v
			data = data[n:]
		default:
			return false, 0, fmt.Errorf("node: unknown lookup response field %d", num)
		}
	}
	return found, pid, nil
}

// handleLookupStream answers one inbound lookup request against svc,
// writing found=false when svc is nil (no distributed capability
// configured) rather than refusing the stream outright.
func handleLookupStream(svc LookupServiceFunc, s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		Logger().Sugar().Warnw("node: failed reading lookup request stream", "error", err)
		return
	}
	name, requirement, err := decodeLookupRequest(data)
	if err != nil {
		Logger().Sugar().Warnw("node: dropping malformed lookup request", "error", err)
		return
	}

	var pid uint64
	var found bool
	if svc != nil {
		pid, found = svc(name, requirement)
	}
	if _, err := s.Write(encodeLookupResponse(found, pid)); err != nil {
		Logger().Sugar().Debugw("node: failed writing lookup response", "error", err)
	}
}

// queryPeer performs one lookup round-trip against rn, per spec 4.G
// treating a disconnected or non-responding peer the same as "not found"
// rather than surfacing a network error to the caller.
func (rn *RemoteNode) queryPeer(ctx context.Context, name, requirement string) (uint64, bool) {
	s, err := rn.node.host.NewStream(ctx, rn.peerID, lookupProtocol)
	if err != nil {
		return 0, false
	}
	defer s.Close()

	if _, err := s.Write(encodeLookupRequest(name, requirement)); err != nil {
		return 0, false
	}
	if err := s.CloseWrite(); err != nil {
		return 0, false
	}

	data, err := io.ReadAll(s)
	if err != nil {
		return 0, false
	}
	found, pid, err := decodeLookupResponse(data)
	if err != nil || !found {
		return 0, false
	}
	return pid, true
}

// These constants reserve the high bit of a node-qualified pid to
// distinguish it from a plain local pid, the next 16 bits for the
// connected-peer index queryPeer's caller resolved the answer through,
// and the low 47 bits for the pid as the peer itself knows it.
const (
	remoteFlagBit  = uint64(1) << 63
	remoteIdxShift = 47
	remoteIdxMask  = uint64(0xFFFF)
	remotePIDMask  = uint64(1)<<47 - 1
)

func encodeQualifiedPID(peerIdx uint32, pid uint64) (uint64, bool) {
	if pid > remotePIDMask || uint64(peerIdx) > remoteIdxMask {
		return 0, false
	}
	return remoteFlagBit | (uint64(peerIdx) << remoteIdxShift) | pid, true
}

func decodeQualifiedPID(qualified uint64) (peerIdx uint32, pid uint64, ok bool) {
	if qualified&remoteFlagBit == 0 {
		return 0, 0, false
	}
	peerIdx = uint32((qualified >> remoteIdxShift) & remoteIdxMask)
	pid = qualified & remotePIDMask
	return peerIdx, pid, true
}

// LookupRemote implements hostabi.RemoteResolver, querying every currently
// connected peer for name+requirement and returning the first hit encoded
// as a node-qualified pid ResolveRemote can later decode.
func (n *Node) LookupRemote(ctx context.Context, name, requirement string) (uint64, bool) {
	n.mu.Lock()
	peers := make([]*RemoteNode, 0, len(n.peers))
	for _, rn := range n.peers {
		peers = append(peers, rn)
	}
	n.mu.Unlock()

	for _, rn := range peers {
		pid, ok := rn.queryPeer(ctx, name, requirement)
		if !ok {
			continue
		}
		idx, ok := n.peerIndex(rn.peerID)
		if !ok {
			continue
		}
		qualified, ok := encodeQualifiedPID(idx, pid)
		if !ok {
			continue
		}
		return qualified, true
	}
	return 0, false
}

// ResolveRemote implements hostabi.RemoteResolver, decoding a
// node-qualified pid previously handed back by LookupRemote into a live
// RemoteProcess addressing that peer.
func (n *Node) ResolveRemote(qualified uint64) (hostabi.RemoteSink, bool) {
	idx, pid, ok := decodeQualifiedPID(qualified)
	if !ok {
		return nil, false
	}
	rn, ok := n.peerByIndex(idx)
	if !ok {
		return nil, false
	}
	return NewRemoteProcess(rn, pid), true
}

var _ hostabi.RemoteResolver = (*Node)(nil)
