package node

import (
	"reflect"
	"testing"

	"github.com/lunatic-solutions/lunatic-go/mailbox"
	"github.com/lunatic-solutions/lunatic-go/resource"
)

func roundTrip(t *testing.T, env Envelope) Envelope {
	t.Helper()
	data, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	return got
}

func TestEnvelopeRoundTripMessage(t *testing.T) {
	env := Envelope{
		TargetPID: 7,
		Signal: mailbox.Message{
			Tag:     -42,
			Payload: []byte("hello"),
			From:    3,
			Resources: []mailbox.TransferredResource{
				{Kind: resource.KindTCPStream},
			},
		},
	}
	got := roundTrip(t, env)
	if got.TargetPID != 7 {
		t.Fatalf("TargetPID = %d, want 7", got.TargetPID)
	}
	msg, ok := got.Signal.(mailbox.Message)
	if !ok {
		t.Fatalf("Signal = %T, want mailbox.Message", got.Signal)
	}
	if msg.Tag != -42 || string(msg.Payload) != "hello" || msg.From != 3 {
		t.Fatalf("round-tripped message mismatch: %+v", msg)
	}
	if len(msg.Resources) != 1 || msg.Resources[0].Kind != resource.KindTCPStream {
		t.Fatalf("round-tripped resources mismatch: %+v", msg.Resources)
	}
}

func TestEnvelopeRoundTripSupervisionSignals(t *testing.T) {
	cases := []mailbox.Signal{
		mailbox.Link{From: 1},
		mailbox.Unlink{From: 2},
		mailbox.Kill{},
		mailbox.LinkDied{From: 5, Reason: mailbox.Reason{Kind: "trap", Message: "oops"}},
		mailbox.Monitor{From: 9},
		mailbox.MonitorDied{From: 11, Reason: mailbox.Reason{Kind: "killed"}},
	}
	for _, sig := range cases {
		got := roundTrip(t, Envelope{TargetPID: 1, Signal: sig})
		if !reflect.DeepEqual(got.Signal, sig) {
			t.Errorf("round trip of %T: got %+v, want %+v", sig, got.Signal, sig)
		}
	}
}

func TestDecodeEnvelopeRejectsMissingKind(t *testing.T) {
	var b []byte
	b = append(b, 0x08, 0x01) // field 1 (target pid), varint 1 -- no kind field
	if _, err := DecodeEnvelope(b); err == nil {
		t.Fatal("expected error for envelope missing kind field")
	}
}

func TestDecodeEnvelopeRejectsTruncatedData(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{0xFF}); err == nil {
		t.Fatal("expected error for truncated/malformed data")
	}
}
