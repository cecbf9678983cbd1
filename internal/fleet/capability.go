package fleet

import (
	"fmt"
	"strings"
)

// Capability is one kind of work a ship can take on.
type Capability uint8

const (
	Mining Capability = 1 << iota
	Hauling
	Trading
	Scanning
	Surveying
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{Mining, "mining"},
	{Hauling, "hauling"},
	{Trading, "trading"},
	{Scanning, "scanning"},
	{Surveying, "surveying"},
}

// Capabilities is a set of Capability flags.
type Capabilities Capability

// Has reports whether c is in the set.
func (s Capabilities) Has(c Capability) bool { return Capability(s)&c != 0 }

// Count returns the number of capabilities in the set.
func (s Capabilities) Count() int {
	n := 0
	for _, cn := range capabilityNames {
		if s.Has(cn.c) {
			n++
		}
	}
	return n
}

// Names lists the capabilities in a fixed order.
func (s Capabilities) Names() []string {
	var out []string
	for _, cn := range capabilityNames {
		if s.Has(cn.c) {
			out = append(out, cn.name)
		}
	}
	return out
}

func (s Capabilities) String() string {
	names := s.Names()
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// MarshalText renders the set as its comma-separated names.
func (s Capabilities) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the comma-separated names written by MarshalText.
func (s *Capabilities) UnmarshalText(b []byte) error {
	var c Capability
	for _, name := range strings.Split(string(b), ",") {
		name = strings.TrimSpace(name)
		if name == "" || name == "none" {
			continue
		}
		v, ok := ParseCapability(name)
		if !ok {
			return fmt.Errorf("unknown capability %q", name)
		}
		c |= v
	}
	*s = Capabilities(c)
	return nil
}

func (c Capability) String() string {
	for _, cn := range capabilityNames {
		if cn.c == c {
			return cn.name
		}
	}
	return "unknown"
}

// ParseCapability maps a name such as "mining" to its Capability.
func ParseCapability(s string) (Capability, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, cn := range capabilityNames {
		if cn.name == s {
			return cn.c, true
		}
	}
	return 0, false
}

// IsProbe reports whether the ship is a satellite or probe frame.
func IsProbe(s Ship) bool {
	return s.Registration.Role == "SATELLITE" || strings.Contains(s.Frame.Symbol, "PROBE")
}

func hasMount(s Ship, parts ...string) bool {
	for _, m := range s.Mounts {
		for _, p := range parts {
			if strings.Contains(m.Symbol, p) {
				return true
			}
		}
	}
	return false
}

// CapabilitiesOf derives what a ship can do from its frame, role, mounts and hold.
func CapabilitiesOf(s Ship) Capabilities {
	var c Capability
	probe := IsProbe(s)
	canMine := !probe && hasMount(s, "MINING", "EXTRACTOR")
	if canMine {
		c |= Mining
	}
	if s.Cargo.Capacity >= 20 && !canMine {
		c |= Hauling
	}
	if s.Cargo.Capacity >= 10 {
		c |= Trading
	}
	if probe || hasMount(s, "SENSOR_ARRAY") {
		c |= Scanning
	}
	if hasMount(s, "SURVEYOR") {
		c |= Surveying
	}
	return Capabilities(c)
}

// MiningPower sums the strength of the ship's mining mounts. Mounts that do
// not report a strength count as 10.
func MiningPower(s Ship) int {
	power := 0
	for _, m := range s.Mounts {
		if !strings.Contains(m.Symbol, "MINING") && !strings.Contains(m.Symbol, "EXTRACTOR") {
			continue
		}
		if m.Strength > 0 {
			power += m.Strength
		} else {
			power += 10
		}
	}
	return power
}
