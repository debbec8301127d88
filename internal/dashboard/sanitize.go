package dashboard

import (
	"encoding/json"
	"strconv"
	"unicode/utf8"
)

const (
	maxPayloadBytes     = 100_000
	payloadPreviewBytes = 1000
)

type truncatedPayload struct {
	Truncated    bool   `json:"__truncated"`
	OriginalSize int    `json:"__originalSize"`
	Preview      string `json:"__preview"`
}

type unreadablePayload struct {
	Error string `json:"__error"`
	Type  string `json:"__type"`
}

// SanitizePayload bounds a stored JSON payload before it leaves the process.
// Empty input yields nil. Oversized payloads are replaced by a truncation marker and
// anything that is not valid JSON by an error marker.
func SanitizePayload(raw string) json.RawMessage {
	if raw == "" {
		return nil
	}
	if !json.Valid([]byte(raw)) {
		return mustMarshal(unreadablePayload{Error: "Failed to serialize job data", Type: "string"})
	}
	if len(raw) > maxPayloadBytes {
		return mustMarshal(truncatedPayload{
			Truncated:    true,
			OriginalSize: len(raw),
			Preview:      previewOf(raw) + "...",
		})
	}
	return json.RawMessage(raw)
}

// previewOf returns at most payloadPreviewBytes of raw without splitting a rune.
func previewOf(raw string) string {
	n := payloadPreviewBytes
	for n > 0 && !utf8.RuneStart(raw[n]) {
		n--
	}
	return raw[:n]
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(strconv.Quote(err.Error()))
	}
	return data
}
