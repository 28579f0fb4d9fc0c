package normalise

import "testing"

func TestMarkerRoundTrip(t *testing.T) {
	opts := Options{ReductionThreshold: 5000, HeapProfiler: true, ExternrefWrap: false}
	m := simpleModule()
	stampMarker(m, opts)

	got, ok := findMarker(m)
	if !ok {
		t.Fatal("expected marker to be found")
	}
	if !sameOptions(got, opts) {
		t.Fatalf("round-tripped options differ: got %+v, want %+v", got, opts)
	}
}

func TestMarkerDiffersOnOptionChange(t *testing.T) {
	a := Options{ReductionThreshold: 5000}
	b := Options{ReductionThreshold: 9000}
	if sameOptions(a, b) {
		t.Fatal("expected different thresholds to compare unequal")
	}
}
