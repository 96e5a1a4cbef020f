package workitem

import (
	"fmt"
	"regexp"
	"strconv"
)

// InitialVersion is assigned to every freshly created work item.
const InitialVersion = "1.0"

var (
	versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)$`)
	// numericishPattern matches strings built only from digits and dots,
	// including the empty string: malformed numerics rather than legacy
	// free-form labels.
	numericishPattern = regexp.MustCompile(`^[\d.]*$`)
)

// ParseVersion splits a MAJOR.MINOR version string.
func ParseVersion(v string) (major, minor int, ok bool) {
	m := versionPattern.FindStringSubmatch(v)
	if m == nil {
		return 0, 0, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// NextVersion computes the version of the snapshot that follows current.
// Well-formed MAJOR.MINOR values bump the minor component. Malformed numeric
// values ("", "1", "1.2.3") reset the chain to 1.0; legacy non-numeric
// labels ("v2", "draft") degrade to 1.1.
func NextVersion(current string) string {
	if major, minor, ok := ParseVersion(current); ok {
		return fmt.Sprintf("%d.%d", major, minor+1)
	}
	if numericishPattern.MatchString(current) {
		return InitialVersion
	}
	return "1.1"
}

// CompareVersions orders two version strings numerically by (major, minor).
// Unparseable versions sort below every well-formed one.
func CompareVersions(a, b string) int {
	amaj, amin, aok := ParseVersion(a)
	bmaj, bmin, bok := ParseVersion(b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if amaj != bmaj {
		if amaj < bmaj {
			return -1
		}
		return 1
	}
	if amin != bmin {
		if amin < bmin {
			return -1
		}
		return 1
	}
	return 0
}
