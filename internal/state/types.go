// Package state provides persistent state management for the sandbox.
package state

import (
	"sandboxfs/internal/fs"
)

// currentVersion is written into every state file.
const currentVersion = 1

// FSState represents the persisted sandbox state
type FSState struct {
	// Mappings applied to the sandbox, mount-time and live, in application order
	Mappings []fs.Mapping `json:"mappings"`

	// Version for future compatibility
	Version int `json:"version"`
}

// indexOf returns the position of the mapping recorded for path, or -1.
func (s *FSState) indexOf(path string) int {
	for i, m := range s.Mappings {
		if m.Path == path {
			return i
		}
	}
	return -1
}

// Pending returns the recorded mappings whose virtual paths are not among
// configured, preserving their recorded order.
func Pending(recorded, configured []fs.Mapping) []fs.Mapping {
	seen := make(map[string]bool, len(configured))
	for _, m := range configured {
		seen[m.Path] = true
	}

	var pending []fs.Mapping
	for _, m := range recorded {
		if seen[m.Path] {
			continue
		}
		seen[m.Path] = true
		pending = append(pending, m)
	}
	return pending
}
