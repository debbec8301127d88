package bullmq

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
)

// safeParseJSON decodes JSON while preserving numbers as json.Number.
// It mirrors json.Unmarshal by rejecting trailing non-whitespace data.
func safeParseJSON(data []byte, dest any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra JSON input")
	}
	return nil
}

// parseOptionalInt64 parses a hash field or decoded JSON value to int64.
// Handles string (including empty), json.Number, float64, int64, and int.
func parseOptionalInt64(field any) (int64, bool) {
	switch value := field.(type) {
	case string:
		if value == "" {
			return 0, false
		}
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed, true
		}
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case json.Number:
		return parseOptionalInt64(string(value))
	case float64:
		return int64(value), true
	case int64:
		return value, true
	case int:
		return int64(value), true
	}
	return 0, false
}

// hashInt64 reads an integer hash field, returning 0 when missing or malformed.
func hashInt64(fields map[string]string, name string) int64 {
	value, ok := fields[name]
	if !ok {
		return 0
	}
	parsed, _ := parseOptionalInt64(value)
	return parsed
}
