package metrics

import "testing"

func TestStatusClass(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		201: "2xx",
		429: "4xx",
		503: "5xx",
		0:   "unknown",
	}
	for status, want := range cases {
		if got := statusClass(status); got != want {
			t.Fatalf("status %d: expected %s, got %s", status, want, got)
		}
	}
}

func TestRouteLabelCollapsesUnmatched(t *testing.T) {
	if got := routeLabel(""); got != "unmatched" {
		t.Fatalf("expected unmatched, got %s", got)
	}
	if got := routeLabel("/waitlist/join"); got != "/waitlist/join" {
		t.Fatalf("unexpected route %s", got)
	}
}
