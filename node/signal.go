package node

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lunatic-solutions/lunatic-go/mailbox"
	"github.com/lunatic-solutions/lunatic-go/resource"
)

// kind discriminants for the wire envelope's field 2.
const (
	kindMessage     = 0
	kindLink        = 1
	kindUnlink      = 2
	kindKill        = 3
	kindLinkDied    = 4
	kindMonitor     = 5
	kindMonitorDied = 6
)

const (
	fieldTargetPID    = 1
	fieldKind         = 2
	fieldFrom         = 3
	fieldTag          = 4
	fieldPayload      = 5
	fieldResourceKind = 6
	fieldReasonKind   = 7
	fieldReasonMsg    = 8
)

// Envelope pairs a remote signal with the local process id it is destined
// for, the unit a stream actually carries between two nodes.
type Envelope struct {
	TargetPID uint64
	Signal    mailbox.Signal
}

// EncodeEnvelope serialises env into a self-delimited byte buffer.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, fieldTargetPID, protowire.VarintType)
	b = protowire.AppendVarint(b, env.TargetPID)

	switch sig := env.Signal.(type) {
	case mailbox.Message:
		b = appendKind(b, kindMessage)
		b = appendFrom(b, sig.From)
		b = protowire.AppendTag(b, fieldTag, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(sig.Tag))
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, sig.Payload)
		for _, r := range sig.Resources {
			b = protowire.AppendTag(b, fieldResourceKind, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(r.Kind))
		}
	case mailbox.Link:
		b = appendKind(b, kindLink)
		b = appendFrom(b, sig.From)
	case mailbox.Unlink:
		b = appendKind(b, kindUnlink)
		b = appendFrom(b, sig.From)
	case mailbox.Kill:
		b = appendKind(b, kindKill)
	case mailbox.LinkDied:
		b = appendKind(b, kindLinkDied)
		b = appendFrom(b, sig.From)
		b = appendReason(b, sig.Reason)
	case mailbox.Monitor:
		b = appendKind(b, kindMonitor)
		b = appendFrom(b, sig.From)
	case mailbox.MonitorDied:
		b = appendKind(b, kindMonitorDied)
		b = appendFrom(b, sig.From)
		b = appendReason(b, sig.Reason)
	default:
		return nil, fmt.Errorf("node: unencodable signal type %T", sig)
	}
	return b, nil
}

func appendKind(b []byte, k uint64) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	return protowire.AppendVarint(b, k)
}

func appendFrom(b []byte, from uint64) []byte {
	b = protowire.AppendTag(b, fieldFrom, protowire.VarintType)
	return protowire.AppendVarint(b, from)
}

func appendReason(b []byte, r mailbox.Reason) []byte {
	b = protowire.AppendTag(b, fieldReasonKind, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(r.Kind))
	b = protowire.AppendTag(b, fieldReasonMsg, protowire.BytesType)
	return protowire.AppendBytes(b, []byte(r.Message))
}

// DecodeEnvelope parses the buffer written by EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var (
		targetPID uint64
		kind      uint64
		haveKind  bool
		from      uint64
		tag       int64
		payload   []byte
		resources []mailbox.TransferredResource
		reason    mailbox.Reason
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Envelope{}, fmt.Errorf("node: malformed envelope tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldTargetPID:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed target pid")
			}
			targetPID = v
			data = data[n:]
		case fieldKind:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed kind")
			}
			kind, haveKind = v, true
			data = data[n:]
		case fieldFrom:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed from")
			}
			from = v
			data = data[n:]
		case fieldTag:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed tag")
			}
			tag = protowire.DecodeZigZag(v)
			data = data[n:]
		case fieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed payload")
			}
			payload = append([]byte{}, v...)
			data = data[n:]
		case fieldResourceKind:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed resource kind")
			}
			resources = append(resources, mailbox.TransferredResource{Kind: resource.Kind(v)})
			data = data[n:]
		case fieldReasonKind:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed reason kind")
			}
			reason.Kind = string(v)
			data = data[n:]
		case fieldReasonMsg:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed reason message")
			}
			reason.Message = string(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Envelope{}, fmt.Errorf("node: malformed unknown field")
			}
			data = data[n:]
		}
	}

	if !haveKind {
		return Envelope{}, fmt.Errorf("node: envelope missing kind field")
	}

	var sig mailbox.Signal
	switch kind {
	case kindMessage:
		sig = mailbox.Message{Tag: tag, Payload: payload, Resources: resources, From: from}
	case kindLink:
		sig = mailbox.Link{From: from}
	case kindUnlink:
		sig = mailbox.Unlink{From: from}
	case kindKill:
		sig = mailbox.Kill{}
	case kindLinkDied:
		sig = mailbox.LinkDied{From: from, Reason: reason}
	case kindMonitor:
		sig = mailbox.Monitor{From: from}
	case kindMonitorDied:
		sig = mailbox.MonitorDied{From: from, Reason: reason}
	default:
		return Envelope{}, fmt.Errorf("node: unknown signal kind %d", kind)
	}

	return Envelope{TargetPID: targetPID, Signal: sig}, nil
}
