package environment

import (
	"strconv"
	"strings"

	"github.com/coreos/go-semver/semver"
	lunaticerrors "github.com/lunatic-solutions/lunatic-go/errors"
)

// requirement is a parsed lookup version constraint: either an exact match
// (`=1.2.3`) or a caret range (`^1.2`, `^1.2.3`, or a bare version treated
// as caret by default, matching the ecosystem default most registries with
// a caret operator use). Missing trailing components default to zero for
// the lower bound and widen the matched range: `^1.2` matches any 1.2.x or
// later 1.x release; `^1` matches any 1.x.
type requirement struct {
	exact         bool
	major         int64
	minor         int64
	patch         int64
	hasMinor      bool
	hasPatch      bool
}

func parseRequirement(s string) (requirement, error) {
	req := requirement{}
	rest := s
	switch {
	case strings.HasPrefix(s, "="):
		req.exact = true
		rest = s[1:]
	case strings.HasPrefix(s, "^"):
		rest = s[1:]
	}

	parts := strings.Split(rest, ".")
	if len(parts) == 0 || parts[0] == "" {
		return requirement{}, lunaticerrors.NewRegistryError(lunaticerrors.RegistryVersionParseError, s, nil)
	}

	major, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return requirement{}, lunaticerrors.NewRegistryError(lunaticerrors.RegistryVersionParseError, s, err)
	}
	req.major = major

	if len(parts) > 1 {
		minor, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return requirement{}, lunaticerrors.NewRegistryError(lunaticerrors.RegistryVersionParseError, s, err)
		}
		req.minor = minor
		req.hasMinor = true
	}

	if len(parts) > 2 {
		patch, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return requirement{}, lunaticerrors.NewRegistryError(lunaticerrors.RegistryVersionParseError, s, err)
		}
		req.patch = patch
		req.hasPatch = true
	}

	if len(parts) > 3 {
		return requirement{}, lunaticerrors.NewRegistryError(lunaticerrors.RegistryVersionParseError, s, nil)
	}

	return req, nil
}

// matches reports whether v satisfies the requirement.
func (r requirement) matches(v *semver.Version) bool {
	if r.exact {
		if r.hasPatch {
			return v.Major == r.major && v.Minor == r.minor && v.Patch == r.patch
		}
		if r.hasMinor {
			return v.Major == r.major && v.Minor == r.minor
		}
		return v.Major == r.major
	}

	lower := semver.Version{Major: r.major, Minor: r.minor, Patch: r.patch}
	if v.LessThan(lower) {
		return false
	}

	// Caret upper bound: the first component read (major, else minor if
	// major is 0, else patch if both are 0) fixes the compatible range,
	// following the widely used "don't cross the first non-zero digit"
	// caret rule.
	var upper semver.Version
	switch {
	case r.major != 0:
		upper = semver.Version{Major: r.major + 1}
	case r.hasMinor && r.minor != 0:
		upper = semver.Version{Major: 0, Minor: r.minor + 1}
	case r.hasPatch:
		upper = semver.Version{Major: 0, Minor: r.minor, Patch: r.patch + 1}
	default:
		// ^0 or ^0.0 with no further precision: matches only 0.x.y for the
		// given prefix.
		if !r.hasMinor {
			upper = semver.Version{Major: 1}
		} else {
			upper = semver.Version{Major: 0, Minor: r.minor + 1}
		}
	}
	return v.LessThan(upper)
}
