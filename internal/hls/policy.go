package hls

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// PolicyKind selects how a variant is chosen from a master playlist.
type PolicyKind int

const (
	// PolicyUnset means no policy was supplied.
	PolicyUnset PolicyKind = iota
	// PolicyBest picks the highest bandwidth.
	PolicyBest
	// PolicyWorst picks the lowest bandwidth.
	PolicyWorst
	// PolicyCeiling picks the highest bandwidth not above a limit.
	PolicyCeiling
)

// BandwidthPolicy decides which variant of a master playlist to record.
type BandwidthPolicy struct {
	Kind    PolicyKind
	Ceiling int
}

var (
	Best  = BandwidthPolicy{Kind: PolicyBest}
	Worst = BandwidthPolicy{Kind: PolicyWorst}
)

// AtMost returns a policy selecting the best variant whose bandwidth does not
// exceed bitsPerSecond.
func AtMost(bitsPerSecond int) BandwidthPolicy {
	return BandwidthPolicy{Kind: PolicyCeiling, Ceiling: bitsPerSecond}
}

// ParseBandwidthPolicy accepts "best", "worst" or a positive integer number of
// bits per second. An empty string yields the unset policy.
func ParseBandwidthPolicy(s string) (BandwidthPolicy, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return BandwidthPolicy{}, nil
	case "best", "highest", "max":
		return Best, nil
	case "worst", "lowest", "min":
		return Worst, nil
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return BandwidthPolicy{}, fmt.Errorf("%w %q: want best, worst or a positive number", ErrInvalidBandwidthPolicy, s)
		}
		return AtMost(n), nil
	}
}

// IsSet reports whether a policy was supplied.
func (p BandwidthPolicy) IsSet() bool {
	return p.Kind != PolicyUnset
}

func (p BandwidthPolicy) String() string {
	switch p.Kind {
	case PolicyBest:
		return "best"
	case PolicyWorst:
		return "worst"
	case PolicyCeiling:
		return strconv.Itoa(p.Ceiling)
	default:
		return ""
	}
}

// SelectVariant applies p to variants. Ties keep manifest order. For a
// ceiling with every variant above it, the lowest-bandwidth variant wins.
// A single variant is returned even when no policy is set.
func SelectVariant(variants []*playlist.MultivariantVariant, p BandwidthPolicy) (*playlist.MultivariantVariant, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: no variants", ErrInvalidManifest)
	}
	if len(variants) == 1 {
		return variants[0], nil
	}

	switch p.Kind {
	case PolicyBest:
		return pick(variants, func(a, b int) bool { return a > b }), nil
	case PolicyWorst:
		return lowest(variants), nil
	case PolicyCeiling:
		var chosen *playlist.MultivariantVariant
		for _, v := range variants {
			if v.Bandwidth > p.Ceiling {
				continue
			}
			if chosen == nil || v.Bandwidth > chosen.Bandwidth {
				chosen = v
			}
		}
		if chosen == nil {
			return lowest(variants), nil
		}
		return chosen, nil
	default:
		return nil, ErrMissingBandwidthPolicy
	}
}

func lowest(variants []*playlist.MultivariantVariant) *playlist.MultivariantVariant {
	return pick(variants, func(a, b int) bool { return a < b })
}

func pick(variants []*playlist.MultivariantVariant, better func(a, b int) bool) *playlist.MultivariantVariant {
	chosen := variants[0]
	for _, v := range variants[1:] {
		if better(v.Bandwidth, chosen.Bandwidth) {
			chosen = v
		}
	}
	return chosen
}
