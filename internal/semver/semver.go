// Package semver parses and compares the versions exchanged between endpoints and the broker.
package semver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

var re = regexp.MustCompile(`^v(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

var ErrParse = errors.New("could not parse provided string into semantic version")

type Comparison int

const (
	CompareEqual Comparison = iota
	CompareOldMajor
	CompareNewMajor
	CompareOldMinor
	CompareNewMinor
	CompareOldPatch
	CompareNewPatch
)

type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Parse parses a string of the form vMAJOR.MINOR.PATCH.
func Parse(s string) (Version, error) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return Version{}, ErrParse
	}
	var parts [3]int
	for i, p := range m[1:] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("parsing version component %q: %w", p, err)
		}
		parts[i] = n
	}
	return Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (sv Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", sv.Major, sv.Minor, sv.Patch)
}

// Compare compares the version against the provided oracle.
func (sv Version) Compare(oracle Version) Comparison {
	switch {
	case sv.Major < oracle.Major:
		return CompareOldMajor
	case sv.Major > oracle.Major:
		return CompareNewMajor
	case sv.Minor < oracle.Minor:
		return CompareOldMinor
	case sv.Minor > oracle.Minor:
		return CompareNewMinor
	case sv.Patch < oracle.Patch:
		return CompareOldPatch
	case sv.Patch > oracle.Patch:
		return CompareNewPatch
	default:
		return CompareEqual
	}
}

// Compatible reports whether an endpoint at sv can use a broker at other.
// Versions below v1 only interoperate within the same minor version.
func (sv Version) Compatible(other Version) bool {
	if sv.Major != other.Major {
		return false
	}
	if sv.Major == 0 {
		return sv.Minor == other.Minor
	}
	return true
}

// GetBrokerVersion asks the broker at addr for its version.
func GetBrokerVersion(ctx context.Context, addr string) (Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/version", addr), nil)
	if err != nil {
		return Version{}, fmt.Errorf("building version request: %w", err)
	}
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return Version{}, fmt.Errorf("fetching version from broker: %w", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return Version{}, fmt.Errorf("fetching version from broker: unexpected status %s", r.Status)
	}
	var version Version
	if err := json.NewDecoder(r.Body).Decode(&version); err != nil {
		return Version{}, fmt.Errorf("decoding version response from broker: %w", err)
	}
	return version, nil
}
