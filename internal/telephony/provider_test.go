package telephony

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsChannelGone(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrChannelGone, true},
		{fmt.Errorf("play: %w", ErrChannelGone), true},
		{errors.New("Non-2XX response: 404 Not Found: Channel not found"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsChannelGone(tc.err); got != tc.want {
			t.Fatalf("IsChannelGone(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestCallVarsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, v := range CallVars {
		if seen[v] {
			t.Fatalf("duplicate variable %s", v)
		}
		seen[v] = true
	}
	if len(seen) != 8 {
		t.Fatalf("expected 8 call variables, got %d", len(seen))
	}
}
