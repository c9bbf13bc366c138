// Package main provides a transform plugin.
// It reshapes the invocation payload and echoes it back, mainly useful for
// smoke-testing a fanout deployment.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	InvocationID string          `json:"invocation_id"`
	Action       string          `json:"action"`
	Payload      json.RawMessage `json:"payload"`
	Config       json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	var data json.RawMessage
	var err error

	switch req.Action {
	case "echo":
		data, err = handleEcho(req)
	case "uppercase":
		data, err = handleUppercase(req.Payload)
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}
	writeSuccessResponse(data)
}

// handleEcho wraps the payload with the invocation ID and a timestamp.
func handleEcho(req Request) (json.RawMessage, error) {
	return json.Marshal(map[string]interface{}{
		"invocation_id": req.InvocationID,
		"payload":       req.Payload,
		"processed_at":  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleUppercase uppercases every string value at the top level of the
// payload object.
func handleUppercase(payload json.RawMessage) (json.RawMessage, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}

	for k, v := range fields {
		if s, ok := v.(string); ok {
			fields[k] = strings.ToUpper(s)
		}
	}
	return json.Marshal(fields)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	resp := Response{
		Success: true,
		Data:    data,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
