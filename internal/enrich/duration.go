package enrich

import (
	"regexp"
	"strconv"
)

// ShortFormLimit is the duration below which a video counts as short-form.
const ShortFormLimit = 60

var durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 duration token such as "PT1H2M3S" or
// "P1DT2H" into seconds. ok is false for empty or malformed tokens.
func ParseDuration(token string) (seconds int, ok bool) {
	m := durationPattern.FindStringSubmatch(token)
	if m == nil || token == "P" || token == "PT" {
		return 0, false
	}

	units := []int{86400, 3600, 60, 1}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		seconds += n * unit
	}
	return seconds, true
}

// IsShortDuration reports whether token parses to under ShortFormLimit
// seconds. Unparseable tokens are not short.
func IsShortDuration(token string) bool {
	s, ok := ParseDuration(token)
	return ok && s < ShortFormLimit
}
