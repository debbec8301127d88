package dashboard

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

// jsonPayloadOfSize builds a valid JSON string literal of exactly n bytes.
func jsonPayloadOfSize(n int) string {
	return `"` + strings.Repeat("a", n-2) + `"`
}

func TestSanitizePayload_AtLimitUnchanged(t *testing.T) {
	t.Parallel()

	payload := jsonPayloadOfSize(100_000)
	got := SanitizePayload(payload)
	if string(got) != payload {
		t.Fatalf("SanitizePayload(100000 bytes) changed the payload (len %d)", len(got))
	}
}

func TestSanitizePayload_OverLimitTruncated(t *testing.T) {
	t.Parallel()

	payload := jsonPayloadOfSize(100_001)
	got := SanitizePayload(payload)

	var marker struct {
		Truncated    bool   `json:"__truncated"`
		OriginalSize int    `json:"__originalSize"`
		Preview      string `json:"__preview"`
	}
	if err := json.Unmarshal(got, &marker); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if !marker.Truncated || marker.OriginalSize != 100_001 {
		t.Fatalf("marker = %+v, want truncated with original size 100001", marker)
	}
	if marker.Preview != payload[:1000]+"..." {
		t.Fatalf("preview has len %d, want first 1000 bytes plus ellipsis", len(marker.Preview))
	}
}

func TestSanitizePayload_PreviewKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	// "é" is two bytes; the rune spanning bytes 999 and 1000 must not be split.
	payload := `"` + strings.Repeat("é", 60_000) + `"`
	got := SanitizePayload(payload)

	var marker struct {
		Preview string `json:"__preview"`
	}
	if err := json.Unmarshal(got, &marker); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	preview := strings.TrimSuffix(marker.Preview, "...")
	if !utf8.ValidString(preview) || strings.ContainsRune(preview, utf8.RuneError) {
		t.Fatalf("preview contains a broken rune: %q", preview[len(preview)-8:])
	}
	if want := payload[:999]; preview != want {
		t.Fatalf("preview has len %d, want %d", len(preview), len(want))
	}
}

func TestSanitizePayload_InvalidAndEmpty(t *testing.T) {
	t.Parallel()

	if got := SanitizePayload(""); got != nil {
		t.Fatalf("SanitizePayload(\"\") = %s, want nil", got)
	}

	got := SanitizePayload("{not json")
	var marker map[string]string
	if err := json.Unmarshal(got, &marker); err != nil {
		t.Fatalf("json.Unmarshal() error: %v", err)
	}
	if marker["__error"] != "Failed to serialize job data" || marker["__type"] != "string" {
		t.Fatalf("marker = %v", marker)
	}

	if got := SanitizePayload(`{"to":"a@example.com"}`); string(got) != `{"to":"a@example.com"}` {
		t.Fatalf("SanitizePayload(small) = %s", got)
	}
}
