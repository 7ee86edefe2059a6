// Package netprofile selects the network profile a run uses and describes the
// throttling each profile stands for.
package netprofile

import (
	"strings"
)

// EnvVar is the environment variable holding the profile override token.
const EnvVar = "NETWORK_TYPE"

// Profile is a named network preset.
type Profile string

const (
	Standard Profile = "standard"
	Degraded Profile = "degraded"
)

var degradedTokens = map[string]struct{}{
	"2g":         {},
	"regular 2g": {},
	"regular-2g": {},
	"slow":       {},
	"slow-2g":    {},
	"slow 3g":    {},
	"slow-3g":    {},
	"3g":         {},
	"degraded":   {},
	"throttled":  {},
}

// Resolve maps a raw override token to a profile. Matching is case-insensitive
// and ignores surrounding whitespace. Anything unrecognized, including the
// empty string, resolves to Standard.
func Resolve(raw string) Profile {
	token := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := degradedTokens[token]; ok {
		return Degraded
	}
	return Standard
}

// FromEnv resolves the profile from EnvVar using lookup (os.LookupEnv in
// production). A nil lookup resolves to Standard.
func FromEnv(lookup func(string) (string, bool)) Profile {
	if lookup == nil {
		return Standard
	}
	raw, _ := lookup(EnvVar)
	return Resolve(raw)
}

// GridThrottling is the value of the grid's networkThrottling option.
// Standard leaves it unset.
func (p Profile) GridThrottling() string {
	if p == Degraded {
		return "Regular 2G"
	}
	return ""
}

// Conditions describes throttling in the units used by browser network
// emulation.
type Conditions struct {
	// Minimum latency from request sent to response headers received.
	LatencyMS float64

	// Maximal aggregated download throughput (bytes/sec). -1 disables download throttling.
	Download float64

	// Maximal aggregated upload throughput (bytes/sec). -1 disables upload throttling.
	Upload float64
}

// Throttled reports whether the conditions impose any limit.
func (c Conditions) Throttled() bool {
	return c.LatencyMS > 0 || c.Download >= 0 || c.Upload >= 0
}

// Conditions returns the throttling preset for p.
func (p Profile) Conditions() Conditions {
	switch p {
	case Degraded:
		// Regular 2G: 250 kbit/s down, 50 kbit/s up, 300ms RTT, scaled the same
		// way the DevTools presets are.
		return Conditions{
			LatencyMS: 300 * 5,
			Download:  ((250 * 1000) / 8) * 0.8,
			Upload:    ((50 * 1000) / 8) * 0.8,
		}
	default:
		return Conditions{
			LatencyMS: 0,
			Download:  -1,
			Upload:    -1,
		}
	}
}

func (p Profile) String() string {
	return string(p)
}
