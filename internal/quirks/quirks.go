// Package quirks consumes the small set of boolean device tags the pipeline
// needs from the external quirks database (§6 "Quirks input"). The real
// libinput quirks file format (an INI-like match/override language) is out
// of scope for this module; Provider only expresses the narrow boolean-tag
// contract the plugins in internal/plugins actually read.
package quirks

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tag is one of the boolean quirks the pipeline consumes.
type Tag string

const (
	// TagBouncingKeys marks a device the kernel already debounces, so the
	// debounce state machine starts in Disabled (§4.4).
	TagBouncingKeys Tag = "bouncing-keys"

	// TagForcedProximityTimeout marks a tablet that never reports a real
	// proximity-out and needs the proximity-timer plugin (§4.8).
	TagForcedProximityTimeout Tag = "forced-proximity-timeout"

	// TagForcedTool marks a tablet that never reports BTN_TOOL_PEN,
	// needing the forced-tool synthesizer (§4.7).
	TagForcedTool Tag = "forced-tool"

	// TagDoubleToolProne marks a tablet known to assert two tool bits at
	// once (§4.5).
	TagDoubleToolProne Tag = "double-tool-prone"
)

// Provider answers whether a named device carries a given boolean tag.
type Provider interface {
	HasTag(deviceName string, tag Tag) bool
}

// rule is one entry of the on-disk quirks file: a device-name match (exact
// string or "*" suffix wildcard) plus the tags it carries.
type rule struct {
	Match string   `yaml:"match"`
	Tags  []string `yaml:"tags"`
}

// file is the on-disk shape of a quirks database.
type file struct {
	Rules []rule `yaml:"rules"`
}

// Static is a Provider backed by a fixed, in-memory rule list. It is safe
// for concurrent reads.
type Static struct {
	rules []rule
}

// Load reads a YAML quirks file from path (§6; the format is this module's
// own, not the real libinput quirks INI grammar, since the real loader is
// out of scope).
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("quirks: reading %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("quirks: parsing %s: %w", path, err)
	}
	return &Static{rules: f.Rules}, nil
}

// Empty returns a Provider with no rules; every HasTag call returns false.
func Empty() *Static {
	return &Static{}
}

// HasTag implements Provider.
func (s *Static) HasTag(deviceName string, tag Tag) bool {
	for _, r := range s.rules {
		if !matches(r.Match, deviceName) {
			continue
		}
		for _, t := range r.Tags {
			if Tag(t) == tag {
				return true
			}
		}
	}
	return false
}

func matches(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if n := len(pattern); n > 0 && pattern[n-1] == '*' {
		prefix := pattern[:n-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}
	return pattern == name
}
