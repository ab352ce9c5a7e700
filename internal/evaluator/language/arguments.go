package language

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseArguments returns the compact JSON array of entry point arguments.
// Structured arguments win; a non-array value is a single argument.
// Otherwise input is read as a comma separated list of JSON values, so
// "[2,7,11,15], 9" yields two arguments.
func ParseArguments(input string, structured json.RawMessage) ([]byte, error) {
	if trimmed := bytes.TrimSpace(structured); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '[' {
			trimmed = append(append([]byte("["), trimmed...), ']')
		}
		return compactArray(trimmed)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return []byte("[]"), nil
	}
	return compactArray([]byte("[" + input + "]"))
}

func compactArray(raw []byte) ([]byte, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("test input is not a list of JSON values: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("test input is not a list of JSON values: %w", err)
	}
	return buf.Bytes(), nil
}
