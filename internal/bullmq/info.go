package bullmq

import (
	"math"
	"strconv"
	"strings"
)

// ParseInfo converts a Redis INFO blob into a flat map.
// Numeric values become int64 (integral) or float64; everything else stays a string.
func ParseInfo(raw string) map[string]any {
	values := make(map[string]any)
	for line := range strings.SplitSeq(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		values[parts[0]] = infoValue(strings.TrimSpace(parts[1]))
	}
	return values
}

func infoValue(value string) any {
	if value == "" {
		return value
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return value
	}
	return f
}
