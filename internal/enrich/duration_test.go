package enrich

import "testing"

func TestParseDuration(t *testing.T) {
	cases := map[string]int{
		"PT1H2M3S": 3723,
		"PT59S":    59,
		"PT1M":     60,
		"PT2H":     7200,
		"P1DT1S":   86401,
		"P2D":      172800,
		"PT0S":     0,
	}
	for token, want := range cases {
		got, ok := ParseDuration(token)
		if !ok {
			t.Errorf("%s: expected ok", token)
			continue
		}
		if got != want {
			t.Errorf("%s: expected %d, got %d", token, want, got)
		}
	}

	for _, bad := range []string{"", "P", "PT", "1H2M", "PT1.5S", "garbage"} {
		if _, ok := ParseDuration(bad); ok {
			t.Errorf("%q: expected parse failure", bad)
		}
	}
}

func TestIsShortDuration(t *testing.T) {
	if !IsShortDuration("PT59S") {
		t.Error("59s should be short")
	}
	if IsShortDuration("PT60S") || IsShortDuration("PT1M") {
		t.Error("60s should not be short")
	}
	if IsShortDuration("") || IsShortDuration("unknown") {
		t.Error("unparseable durations should not be short")
	}
}
