package envconfig

import (
	"testing"
)

func TestPrefetchDepth(t *testing.T) {
	cases := []struct {
		value string
		want  uint32
	}{
		{"", 3},
		{"2", 2},
		{"3", 3},
		{"0", 2},
		{"1", 2},
		{"7", 3},
		{"not-a-number", 3},
		{" 2 ", 2},
		{"\"3\"", 3},
	}

	for _, tt := range cases {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("PREFETCH_DEPTH", tt.value)
			if got := PrefetchDepth(); got != tt.want {
				t.Errorf("PrefetchDepth() with %q = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestDebug(t *testing.T) {
	t.Setenv("DEBUG", "")
	if Debug() {
		t.Error("Debug() = true with DEBUG unset")
	}

	t.Setenv("DEBUG", "1")
	if !Debug() {
		t.Error("Debug() = false with DEBUG=1")
	}
}
