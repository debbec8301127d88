package bullmq

import "testing"

func TestParseInfo(t *testing.T) {
	t.Parallel()

	raw := "# Server\r\nredis_version:7.2.4\r\nuptime_in_seconds:3600\r\n\r\n# Memory\r\nused_memory:1048576\r\nused_memory_human:1.00M\r\nmem_fragmentation_ratio:1.25\r\nmaxmemory_policy:noeviction\r\nbroken line\r\n"

	info := ParseInfo(raw)

	tests := []struct {
		key  string
		want any
	}{
		{"redis_version", "7.2.4"},
		{"uptime_in_seconds", int64(3600)},
		{"used_memory", int64(1048576)},
		{"used_memory_human", "1.00M"},
		{"mem_fragmentation_ratio", 1.25},
		{"maxmemory_policy", "noeviction"},
	}
	for _, tt := range tests {
		if got := info[tt.key]; got != tt.want {
			t.Errorf("info[%q] = %#v, want %#v", tt.key, got, tt.want)
		}
	}

	if _, ok := info["# Server"]; ok {
		t.Error("section headers must be skipped")
	}
	if len(info) != len(tests) {
		t.Errorf("len(info) = %d, want %d", len(info), len(tests))
	}
}

func TestParseInfo_KeepsInfAsString(t *testing.T) {
	t.Parallel()

	info := ParseInfo("weird:inf\nempty:\n")
	if info["weird"] != "inf" {
		t.Fatalf("info[weird] = %#v, want \"inf\"", info["weird"])
	}
	if info["empty"] != "" {
		t.Fatalf("info[empty] = %#v, want empty string", info["empty"])
	}
}
