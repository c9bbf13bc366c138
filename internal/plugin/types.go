// Package plugin provides discovery and out-of-process execution of fanout
// destination plugins.
package plugin

import "encoding/json"

// Manifest describes a plugin's metadata and the actions it can perform.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Actions     []string `json:"actions"`
}

// Request is the JSON document written to a plugin's stdin for one invocation.
type Request struct {
	InvocationID string          `json:"invocation_id"`
	Action       string          `json:"action"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
}

// Response is the JSON document a plugin writes to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and resolved paths.
type Plugin struct {
	Manifest   Manifest
	Dir        string
	Executable string
}

// Supports reports whether the plugin's manifest declares the given action.
func (p *Plugin) Supports(action string) bool {
	for _, a := range p.Manifest.Actions {
		if a == action {
			return true
		}
	}
	return false
}
