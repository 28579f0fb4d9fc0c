package environment

import (
	"testing"

	"github.com/coreos/go-semver/semver"
)

func mustVersion(t *testing.T, s string) *semver.Version {
	v, err := semver.NewVersion(s)
	if err != nil {
		t.Fatalf("semver.NewVersion(%q): %v", s, err)
	}
	return v
}

func TestParseRequirementCaret(t *testing.T) {
	cases := []struct {
		req     string
		version string
		want    bool
	}{
		{"^1.2", "1.2.0", true},
		{"^1.2", "1.9.9", true},
		{"^1.2", "2.0.0", false},
		{"^1.2", "1.1.9", false},
		{"^1", "1.9.9", true},
		{"^1", "2.0.0", false},
		{"^0.2.3", "0.2.3", true},
		{"^0.2.3", "0.2.9", true},
		{"^0.2.3", "0.3.0", false},
		{"1.2", "1.9.0", true},
		{"1.2", "2.0.0", false},
	}
	for _, c := range cases {
		req, err := parseRequirement(c.req)
		if err != nil {
			t.Fatalf("parseRequirement(%q): %v", c.req, err)
		}
		got := req.matches(mustVersion(t, c.version))
		if got != c.want {
			t.Errorf("%q matches %q = %v, want %v", c.req, c.version, got, c.want)
		}
	}
}

func TestParseRequirementExact(t *testing.T) {
	cases := []struct {
		req     string
		version string
		want    bool
	}{
		{"=1.2.3", "1.2.3", true},
		{"=1.2.3", "1.2.4", false},
		{"=1.2", "1.2.9", true},
		{"=1.2", "1.3.0", false},
		{"=1", "1.9.9", true},
		{"=1", "2.0.0", false},
	}
	for _, c := range cases {
		req, err := parseRequirement(c.req)
		if err != nil {
			t.Fatalf("parseRequirement(%q): %v", c.req, err)
		}
		got := req.matches(mustVersion(t, c.version))
		if got != c.want {
			t.Errorf("%q matches %q = %v, want %v", c.req, c.version, got, c.want)
		}
	}
}

func TestParseRequirementInvalid(t *testing.T) {
	for _, s := range []string{"", "^", "=", "^1.2.3.4", "^abc"} {
		if _, err := parseRequirement(s); err == nil {
			t.Errorf("parseRequirement(%q): expected error, got nil", s)
		}
	}
}
