package dispatch

import (
	"encoding/json"
)

// NormalizeArgs re-serializes JSON arguments into a canonical form: object
// keys sorted recursively (encoding/json sorts map keys), arrays kept in
// order. Semantically identical calls compare equal regardless of key order.
// Non-JSON input is returned verbatim so it still gets a stable key.
func NormalizeArgs(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(data)
}

// argString extracts a string field from raw JSON arguments.
func argString(raw json.RawMessage, key string) (string, bool) {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", false
	}
	s, ok := args[key].(string)
	return s, ok
}

// isFullRead reports whether read_file arguments request the whole file:
// a bare {"path": ...} with no offset/limit window.
func isFullRead(raw json.RawMessage) bool {
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return false
	}
	if _, ok := args["path"].(string); !ok {
		return false
	}
	for key := range args {
		if key != "path" {
			return false
		}
	}
	return true
}
